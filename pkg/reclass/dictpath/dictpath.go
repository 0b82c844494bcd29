// Package dictpath implements DictPath: a delimiter-scoped sequence of
// key segments used to address values inside nested maps and lists
// (spec.md §4.1). It is adapted from the teacher's cursor/resolver/glob
// trio (internal/utils/tree in the graft teacher), generalized from a
// hardcoded "." delimiter to the configurable delimiter reclass-go
// settings expose, and with backslash-escaping of the delimiter added
// for reference-string parsing.
package dictpath

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultDelimiter is used when none is configured (spec.md §6 delimiter).
const DefaultDelimiter = ":"

// NotFoundError is returned when a path segment cannot be resolved
// against a given container.
type NotFoundError struct {
	Path []string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("`%s` could not be found in the data structure", strings.Join(e.Path, "."))
}

// TypeMismatchError is returned when a path segment indexes through a
// scalar, or a container of the wrong shape.
type TypeMismatchError struct {
	Path   []string
	Wanted string
	Got    string
}

func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("`%s`: wanted %s, got %s", strings.Join(e.Path, "."), e.Wanted, e.Got)
}

// DictPath is an ordered, hashable sequence of key segments.
type DictPath struct {
	segments  []string
	delimiter string
}

// New builds a DictPath from already-split segments.
func New(segments []string, delimiter string) *DictPath {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	cp := make([]string, len(segments))
	copy(cp, segments)
	return &DictPath{segments: cp, delimiter: delimiter}
}

// Parse splits a delimited string into a DictPath. A backslash escapes
// the delimiter character immediately following it so that a segment
// may itself contain the delimiter (spec.md §4.1).
func Parse(s, delimiter string) (*DictPath, error) {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	if delimiter == "" || len(delimiter) != 1 {
		return nil, fmt.Errorf("dictpath: delimiter must be exactly one character, got %q", delimiter)
	}
	delim := delimiter[0]

	var segments []string
	var cur strings.Builder
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			cur.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == delim:
			segments = append(segments, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if escaped {
		cur.WriteByte('\\')
	}
	segments = append(segments, cur.String())

	return &DictPath{segments: segments, delimiter: delimiter}, nil
}

// Segments returns a copy of the path's key segments.
func (p *DictPath) Segments() []string {
	cp := make([]string, len(p.segments))
	copy(cp, p.segments)
	return cp
}

// Delimiter returns the delimiter this path was built with.
func (p *DictPath) Delimiter() string {
	return p.delimiter
}

// String renders the path back into its delimited form, re-escaping
// any segment that itself contains the delimiter.
func (p *DictPath) String() string {
	parts := make([]string, len(p.segments))
	delim := p.delimiter
	for i, s := range p.segments {
		parts[i] = strings.ReplaceAll(s, delim, "\\"+delim)
	}
	return strings.Join(parts, delim)
}

// Key is the hashable, construction-independent form of the path;
// two DictPaths built differently (list vs. delimited string) but
// denoting the same segments compare equal under Key.
func (p *DictPath) Key() string {
	return strings.Join(p.segments, "\x00")
}

// Equal reports whether two paths denote the same segments.
func (p *DictPath) Equal(other *DictPath) bool {
	if other == nil {
		return false
	}
	return p.Key() == other.Key()
}

// Len returns the number of segments.
func (p *DictPath) Len() int {
	return len(p.segments)
}

// Copy returns an independent copy of the path.
func (p *DictPath) Copy() *DictPath {
	return New(p.segments, p.delimiter)
}

// Push appends a segment, returning a new path.
func (p *DictPath) Push(segment string) *DictPath {
	np := p.Copy()
	np.segments = append(np.segments, segment)
	return np
}

// DropFirst returns a new path with the first segment removed.
func (p *DictPath) DropFirst() *DictPath {
	if len(p.segments) == 0 {
		return p.Copy()
	}
	return New(p.segments[1:], p.delimiter)
}

// NewSubpath returns a new path consisting of this path's segments
// followed by other's segments.
func (p *DictPath) NewSubpath(other *DictPath) *DictPath {
	combined := append(append([]string{}, p.segments...), other.segments...)
	return New(combined, p.delimiter)
}

// IsAncestorOf reports whether p is a strict prefix of other.
func (p *DictPath) IsAncestorOf(other *DictPath) bool {
	if len(p.segments) >= len(other.segments) {
		return false
	}
	for i, s := range p.segments {
		if other.segments[i] != s {
			return false
		}
	}
	return true
}

// IsDescendantOf reports whether other is a strict prefix of p.
func (p *DictPath) IsDescendantOf(other *DictPath) bool {
	return other.IsAncestorOf(p)
}

// listFind searches a list for a map element whose "name"/"key"/"id"
// field matches key, mirroring the teacher's named-list-entry lookup.
var nameFields = []string{"name", "key", "id"}

func listFind(l []interface{}, key string) (interface{}, int, bool) {
	for _, field := range nameFields {
		for i, v := range l {
			if m, ok := v.(map[string]interface{}); ok {
				if val, ok := m[field]; ok {
					if s, ok := val.(string); ok && s == key {
						return v, i, true
					}
				}
			}
		}
	}
	return nil, 0, false
}

// GetValue resolves the path against a nested container of
// map[string]interface{} / []interface{} / scalars. A segment
// indexing a list is coerced to an integer when possible, and
// otherwise looked up by name/key/id among the list's map elements.
func (p *DictPath) GetValue(root interface{}) (interface{}, error) {
	o := root
	var seen []string
	for _, seg := range p.segments {
		seen = append(seen, seg)
		switch v := o.(type) {
		case map[string]interface{}:
			val, ok := v[seg]
			if !ok {
				return nil, NotFoundError{Path: seen}
			}
			o = val
		case []interface{}:
			if idx, err := strconv.Atoi(seg); err == nil {
				if idx < 0 || idx >= len(v) {
					return nil, NotFoundError{Path: seen}
				}
				o = v[idx]
				continue
			}
			found, _, ok := listFind(v, seg)
			if !ok {
				return nil, NotFoundError{Path: seen}
			}
			o = found
		default:
			return nil, TypeMismatchError{Path: seen[:len(seen)-1], Wanted: "a map or a list", Got: fmt.Sprintf("%T", o)}
		}
	}
	return o, nil
}

// ExistsIn reports whether GetValue would succeed against root.
func (p *DictPath) ExistsIn(root interface{}) bool {
	_, err := p.GetValue(root)
	return err == nil
}

// SetValue writes value at the path, creating intermediate
// map[string]interface{} containers as needed. List segments must
// already exist (lists are never auto-extended by SetValue).
func (p *DictPath) SetValue(root map[string]interface{}, value interface{}) error {
	if len(p.segments) == 0 {
		return fmt.Errorf("dictpath: cannot set the root")
	}
	cur := root
	for _, seg := range p.segments[:len(p.segments)-1] {
		next, ok := cur[seg]
		if !ok {
			nm := map[string]interface{}{}
			cur[seg] = nm
			cur = nm
			continue
		}
		switch nv := next.(type) {
		case map[string]interface{}:
			cur = nv
		default:
			return TypeMismatchError{Path: p.segments, Wanted: "a map", Got: fmt.Sprintf("%T", next)}
		}
	}
	cur[p.segments[len(p.segments)-1]] = value
	return nil
}

// Delete removes the value at the path from root, if present.
func (p *DictPath) Delete(root map[string]interface{}) error {
	if len(p.segments) == 0 {
		return fmt.Errorf("dictpath: cannot delete the root")
	}
	cur := root
	for _, seg := range p.segments[:len(p.segments)-1] {
		next, ok := cur[seg]
		if !ok {
			return nil
		}
		nv, ok := next.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = nv
	}
	delete(cur, p.segments[len(p.segments)-1])
	return nil
}
