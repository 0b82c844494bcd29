package reclass

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/Knetic/govaluate"
)

// QueryKind is one of the three inventory-query expression shapes
// described in spec.md §4.2.
type QueryKind int

const (
	// QueryValue is the `PATH` shape.
	QueryValue QueryKind = iota
	// QueryTest is the `PATH if PATH OP EXPR (AND|OR PATH OP EXPR)*` shape.
	QueryTest
	// QueryListTest is the `if PATH OP EXPR (AND|OR PATH OP EXPR)*` shape.
	QueryListTest
)

// LiteralKind tags the type of a comparison-expression literal.
type LiteralKind int

const (
	LiteralString LiteralKind = iota
	LiteralNumber
	LiteralBool
)

// Literal is a parsed EXPR operand of a TEST/LIST_TEST condition.
type Literal struct {
	Kind LiteralKind
	Str  string
	Num  float64
	Bool bool
}

// govaluateLiteral renders the literal the way govaluate expects it
// embedded in an expression string.
func (l Literal) govaluateLiteral() string {
	switch l.Kind {
	case LiteralString:
		return strconv.Quote(l.Str)
	case LiteralNumber:
		return strconv.FormatFloat(l.Num, 'f', -1, 64)
	case LiteralBool:
		return strconv.FormatBool(l.Bool)
	}
	return "null"
}

// Condition is one `PATH OP EXPR` clause of a TEST/LIST_TEST query,
// joined to the previous clause by Conjunction ("and"/"or"; empty for
// the first clause).
type Condition struct {
	PathStr     string
	Op          string
	Literal     Literal
	Conjunction string
}

// QueryExpr is a fully parsed inventory-query body.
type QueryExpr struct {
	Kind         QueryKind
	ValuePathStr string
	Conditions   []Condition
	IgnoreErrors bool
	AllEnvs      bool
}

// ParseQueryExpr parses the text between `$[` and `]` sentinels
// (spec.md §4.2 "Expression grammar").
func ParseQueryExpr(body string) (*QueryExpr, error) {
	toks, err := tokenizeExpr(body)
	if err != nil {
		return nil, err
	}

	q := &QueryExpr{}
	filtered := toks[:0:0]
	for _, t := range toks {
		switch t {
		case "+IgnoreErrors":
			q.IgnoreErrors = true
		case "+AllEnvs":
			q.AllEnvs = true
		default:
			filtered = append(filtered, t)
		}
	}
	toks = filtered

	if len(toks) == 0 {
		return nil, NewParseError(body, 0, "empty inventory-query expression")
	}

	if toks[0] == "if" {
		q.Kind = QueryListTest
		conds, err := parseConditions(toks[1:])
		if err != nil {
			return nil, err
		}
		q.Conditions = conds
		return q, nil
	}

	q.ValuePathStr = toks[0]
	if len(toks) == 1 {
		q.Kind = QueryValue
		return q, nil
	}
	if toks[1] != "if" {
		return nil, NewParseError(body, 0, fmt.Sprintf("unexpected token %q after path", toks[1]))
	}
	q.Kind = QueryTest
	conds, err := parseConditions(toks[2:])
	if err != nil {
		return nil, err
	}
	q.Conditions = conds
	return q, nil
}

func parseConditions(toks []string) ([]Condition, error) {
	if len(toks) == 0 {
		return nil, fmt.Errorf("expected at least one PATH OP EXPR clause")
	}
	var conds []Condition
	conj := ""
	i := 0
	for i < len(toks) {
		if i+2 >= len(toks) {
			return nil, fmt.Errorf("malformed condition near %q", strings.Join(toks[i:], " "))
		}
		path := toks[i]
		op := toks[i+1]
		if op != "==" && op != "!=" {
			return nil, fmt.Errorf("expected == or != , got %q", op)
		}
		lit := parseLiteral(toks[i+2])
		conds = append(conds, Condition{PathStr: path, Op: op, Literal: lit, Conjunction: conj})
		i += 3
		if i < len(toks) {
			next := strings.ToLower(toks[i])
			if next != "and" && next != "or" {
				return nil, fmt.Errorf("expected 'and' or 'or', got %q", toks[i])
			}
			conj = next
			i++
		}
	}
	return conds, nil
}

func parseLiteral(tok string) Literal {
	if strings.HasPrefix(tok, "\x00str\x00") {
		return Literal{Kind: LiteralString, Str: strings.TrimPrefix(tok, "\x00str\x00")}
	}
	switch tok {
	case "true":
		return Literal{Kind: LiteralBool, Bool: true}
	case "false":
		return Literal{Kind: LiteralBool, Bool: false}
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return Literal{Kind: LiteralNumber, Num: f}
	}
	return Literal{Kind: LiteralString, Str: tok}
}

// tokenizeExpr splits an expression body into whitespace-separated
// tokens, honoring quoted string literals (marked with a sentinel
// prefix so parseLiteral can distinguish `foo` from `"foo"`).
func tokenizeExpr(s string) ([]string, error) {
	var toks []string
	i := 0
	for i < len(s) {
		c := s[i]
		if unicode.IsSpace(rune(c)) {
			i++
			continue
		}
		if c == '"' || c == '\'' {
			quote := c
			j := i + 1
			var sb strings.Builder
			for j < len(s) && s[j] != quote {
				if s[j] == '\\' && j+1 < len(s) {
					sb.WriteByte(s[j+1])
					j += 2
					continue
				}
				sb.WriteByte(s[j])
				j++
			}
			if j >= len(s) {
				return nil, fmt.Errorf("unterminated string literal in %q", s)
			}
			toks = append(toks, "\x00str\x00"+sb.String())
			i = j + 1
			continue
		}
		if (c == '=' || c == '!') && i+1 < len(s) && s[i+1] == '=' {
			toks = append(toks, s[i:i+2])
			i += 2
			continue
		}
		j := i
		for j < len(s) && !unicode.IsSpace(rune(s[j])) &&
			!((s[j] == '=' || s[j] == '!') && j+1 < len(s) && s[j+1] == '=') {
			j++
		}
		toks = append(toks, s[i:j])
		i = j
	}
	return toks, nil
}

// resolvePathFunc looks up a `exports:`/`self:` prefixed path string
// against the current inventory row / node parameters.
type resolvePathFunc func(pathStr string) (interface{}, bool)

// Evaluate runs q's TEST/LIST_TEST conditions (using govaluate to
// back the ==, !=, and, or comparisons) against a single row's
// resolver. A QueryValue expression has no conditions and always
// passes.
func (q *QueryExpr) Evaluate(resolve resolvePathFunc) (bool, error) {
	if len(q.Conditions) == 0 {
		return true, nil
	}

	params := map[string]interface{}{}
	var exprStr strings.Builder
	for idx, c := range q.Conditions {
		val, ok := resolve(c.PathStr)
		if !ok {
			return false, nil
		}
		varName := fmt.Sprintf("v%d", idx)
		params[varName] = val
		if idx > 0 {
			if c.Conjunction == "or" {
				exprStr.WriteString(" || ")
			} else {
				exprStr.WriteString(" && ")
			}
		}
		fmt.Fprintf(&exprStr, "%s %s %s", varName, c.Op, c.Literal.govaluateLiteral())
	}

	expr, err := govaluate.NewEvaluableExpression(exprStr.String())
	if err != nil {
		return false, NewParseError(exprStr.String(), 0, err.Error())
	}
	result, err := expr.Evaluate(params)
	if err != nil {
		// A type mismatch between the stored value and the literal
		// (e.g. comparing a string to a number) means the condition
		// simply does not hold for this row.
		return false, nil
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not evaluate to a boolean", exprStr.String())
	}
	return b, nil
}
