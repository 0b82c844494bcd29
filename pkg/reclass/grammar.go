package reclass

import "strings"

// Sentinels configures the two parsers' delimiter tokens (spec.md §6):
// reference_sentinels, export_sentinels and escape_character.
type Sentinels struct {
	RefOpen     string
	RefClose    string
	InvOpen     string
	InvClose    string
	EscapeChar  byte
}

// DefaultSentinels matches spec.md §6's documented defaults.
func DefaultSentinels() Sentinels {
	return Sentinels{
		RefOpen:    "${",
		RefClose:   "}",
		InvOpen:    "$[",
		InvClose:   "]",
		EscapeChar: '\\',
	}
}

// FragmentKind tags a parsed piece of a reference-grammar string.
type FragmentKind int

const (
	// FragLiteral is plain text with no further meaning.
	FragLiteral FragmentKind = iota
	// FragReference is a `${...}` occurrence; Children holds the
	// (possibly itself-nested) fragments making up the reference path.
	FragReference
	// FragExport is a `$[...]` occurrence; exports do not nest, so
	// Expr carries the raw, unparsed text between the sentinels.
	FragExport
)

// Fragment is one element of the sequence a reference-grammar string
// parses into (spec.md §4.2).
type Fragment struct {
	Kind     FragmentKind
	Literal  string
	Children []Fragment
	Expr     string
}

// sentinelFirstBytes returns the set of bytes that open or close
// either grammar, used to decide what a single backslash may escape.
func sentinelFirstBytes(sn Sentinels) map[byte]bool {
	set := map[byte]bool{}
	for _, tok := range []string{sn.RefOpen, sn.RefClose, sn.InvOpen, sn.InvClose} {
		if tok != "" {
			set[tok[0]] = true
		}
	}
	return set
}

// ParseReferenceString parses a top-level string into a sequence of
// literal/reference/export fragments (spec.md §4.2). A single
// backslash escapes the very next sentinel-introducing character
// (turning it into a literal); two backslashes immediately preceding
// a sentinel character collapse to one literal backslash followed by
// the sentinel parsed normally; a backslash not touching a sentinel
// character is preserved verbatim, and so are two backslashes not
// touching one (design note ambiguity #2: this implementation keeps
// both in that case).
func ParseReferenceString(s string, sn Sentinels) ([]Fragment, error) {
	frags, pos, err := parseSequence(s, 0, sn, false, "")
	if err != nil {
		return nil, err
	}
	if pos != len(s) {
		return nil, NewParseError(s, pos, "trailing unparsed input")
	}
	return frags, nil
}

func parseSequence(s string, pos int, sn Sentinels, stopAtClose bool, closeTok string) ([]Fragment, int, error) {
	sentChars := sentinelFirstBytes(sn)
	var frags []Fragment
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			frags = append(frags, Fragment{Kind: FragLiteral, Literal: lit.String()})
			lit.Reset()
		}
	}

	for pos < len(s) {
		if stopAtClose && strings.HasPrefix(s[pos:], closeTok) {
			flush()
			return frags, pos + len(closeTok), nil
		}

		c := s[pos]

		if c == sn.EscapeChar {
			if pos+1 < len(s) && s[pos+1] == sn.EscapeChar {
				if pos+2 < len(s) && sentChars[s[pos+2]] {
					lit.WriteByte(sn.EscapeChar)
					pos += 2
					continue
				}
				lit.WriteByte(sn.EscapeChar)
				lit.WriteByte(sn.EscapeChar)
				pos += 2
				continue
			}
			if pos+1 < len(s) && sentChars[s[pos+1]] {
				lit.WriteByte(s[pos+1])
				pos += 2
				continue
			}
			lit.WriteByte(sn.EscapeChar)
			pos++
			continue
		}

		if sn.RefOpen != "" && strings.HasPrefix(s[pos:], sn.RefOpen) {
			flush()
			children, newPos, err := parseSequence(s, pos+len(sn.RefOpen), sn, true, sn.RefClose)
			if err != nil {
				return nil, 0, err
			}
			frags = append(frags, Fragment{Kind: FragReference, Children: children})
			pos = newPos
			continue
		}

		if sn.InvOpen != "" && strings.HasPrefix(s[pos:], sn.InvOpen) {
			flush()
			rest := s[pos+len(sn.InvOpen):]
			idx := strings.Index(rest, sn.InvClose)
			if idx < 0 {
				return nil, 0, NewParseError(s, pos, "unterminated export")
			}
			frags = append(frags, Fragment{Kind: FragExport, Expr: rest[:idx]})
			pos = pos + len(sn.InvOpen) + idx + len(sn.InvClose)
			continue
		}

		lit.WriteByte(c)
		pos++
	}

	if stopAtClose {
		return nil, 0, NewParseError(s, pos, "unterminated reference")
	}
	flush()
	return frags, pos, nil
}

// IsSimple reports whether frags is the fast-path shape described in
// spec.md §4.2: exactly one sentinel occurrence and no surrounding
// literal text, so the full grammar can be bypassed by callers that
// only need to know "is this the whole string a single reference (or
// export) with nothing else".
func IsSimple(frags []Fragment) (Fragment, bool) {
	if len(frags) == 1 && frags[0].Kind != FragLiteral {
		return frags[0], true
	}
	return Fragment{}, false
}
