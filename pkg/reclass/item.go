package reclass

import (
	"fmt"
	"strings"

	"github.com/reclass-go/reclass/pkg/reclass/dictpath"
)

// ItemKind tags the variant a parsed Item holds (spec.md §3 Item table).
type ItemKind int

const (
	ItemScalar ItemKind = iota
	ItemComposite
	ItemList
	ItemDict
	ItemReference
	ItemInventoryQuery
)

func (k ItemKind) String() string {
	switch k {
	case ItemScalar:
		return "scalar"
	case ItemComposite:
		return "composite"
	case ItemList:
		return "list"
	case ItemDict:
		return "dict"
	case ItemReference:
		return "reference"
	case ItemInventoryQuery:
		return "inventory-query"
	}
	return "unknown"
}

// RenderCtx is the ambient state available while rendering an Item:
// the owning node's (partially or fully resolved) parameter tree, the
// fleet-wide inventory for `$[...]` queries, and — for Exports
// rendering (spec.md §4.6) — a distinct "self" context to evaluate
// `self:` paths against.
type RenderCtx struct {
	Tree      map[string]interface{}
	Self      map[string]interface{}
	Inventory *Inventory
	Delimiter string
	Settings  *Settings
}

// Item is the common interface of every parsed value atom.
type Item interface {
	Kind() ItemKind
	// MergeOver merges this item (the new, "row" value) over under
	// (the existing, "column" value), per the table in spec.md §3.
	MergeOver(under Item, settings *Settings) (Item, error)
	// References returns the reference path-strings this item still
	// needs resolved, recursively. Fully-literal references return
	// their single target path; references whose own path is itself
	// composed of further references return those instead (spec.md
	// §4.3 assembleRefs, "second pass").
	References(sn Sentinels) []string
	// Render materializes a plain Go value against ctx.
	Render(ctx *RenderCtx) (interface{}, error)
}

// ScalarItem wraps a literal, already-final value (bool, number,
// string-with-no-sentinels, or nil).
type ScalarItem struct {
	Raw interface{}
}

func (ScalarItem) Kind() ItemKind { return ItemScalar }

func (s ScalarItem) MergeOver(under Item, settings *Settings) (Item, error) {
	switch under.Kind() {
	case ItemScalar, ItemComposite, ItemReference, ItemInventoryQuery:
		return s, nil
	case ItemList:
		if settings.AllowScalarOverList {
			return s, nil
		}
		return nil, NewTypeMergeError("", "scalar", "list")
	case ItemDict:
		if settings.AllowScalarOverDict {
			return s, nil
		}
		return nil, NewTypeMergeError("", "scalar", "dict")
	}
	return s, nil
}

func (ScalarItem) References(Sentinels) []string { return nil }

func (s ScalarItem) Render(*RenderCtx) (interface{}, error) { return s.Raw, nil }

// CompositeItem is a string containing a mix of literal text and one
// or more `${...}`/`$[...]` occurrences (spec.md §4.3).
type CompositeItem struct {
	Fragments []Fragment
}

func (CompositeItem) Kind() ItemKind { return ItemComposite }

func (c CompositeItem) MergeOver(under Item, settings *Settings) (Item, error) {
	switch under.Kind() {
	case ItemScalar, ItemComposite, ItemReference, ItemInventoryQuery:
		return c, nil
	case ItemList:
		if settings.AllowScalarOverList {
			return c, nil
		}
		return nil, NewTypeMergeError("", "scalar", "list")
	case ItemDict:
		if settings.AllowScalarOverDict {
			return c, nil
		}
		return nil, NewTypeMergeError("", "scalar", "dict")
	}
	return c, nil
}

func (c CompositeItem) References(sn Sentinels) []string {
	var refs []string
	for _, f := range c.Fragments {
		refs = append(refs, fragmentRefs(f, sn)...)
	}
	return refs
}

func (c CompositeItem) Render(ctx *RenderCtx) (interface{}, error) {
	var b strings.Builder
	for _, f := range c.Fragments {
		s, err := renderFragmentAsString(f, ctx)
		if err != nil {
			return nil, err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// ReferenceItem is a string that is *entirely* one `${...}` occurrence
// (spec.md §4.3). Its Fragments render to the target path string.
type ReferenceItem struct {
	Fragments []Fragment
}

func (ReferenceItem) Kind() ItemKind { return ItemReference }

func (r ReferenceItem) MergeOver(under Item, settings *Settings) (Item, error) {
	// References defer to their resolved type; until resolved they
	// behave like a scalar for merge-compatibility purposes (spec.md
	// §3 footnote 2).
	return ScalarItem{}.MergeOver(under, settings)
}

func (r ReferenceItem) References(sn Sentinels) []string {
	if path, ok := literalFragmentPath(r.Fragments); ok {
		return []string{path}
	}
	var refs []string
	for _, f := range r.Fragments {
		refs = append(refs, fragmentRefs(f, sn)...)
	}
	return refs
}

func (r ReferenceItem) Render(ctx *RenderCtx) (interface{}, error) {
	var path strings.Builder
	for _, f := range r.Fragments {
		s, err := renderFragmentAsString(f, ctx)
		if err != nil {
			return nil, err
		}
		path.WriteString(s)
	}
	dp, err := dictpath.Parse(path.String(), ctx.Delimiter)
	if err != nil {
		return nil, NewParseError(path.String(), 0, err.Error())
	}
	v, err := dp.GetValue(toIface(ctx.Tree))
	if err != nil {
		e := NewResolveError(path.String())
		return nil, e
	}
	// Deep-copy container results: a reference may expand into a dict
	// or list that subsequently participates in further merges at the
	// destination, which must not mutate the source subtree (spec.md
	// §5, §9 "copies subtrees on read").
	return deepCopyValue(v), nil
}

// InventoryQueryItem is a string that is entirely one `$[...]` occurrence.
type InventoryQueryItem struct {
	Query *QueryExpr
	Raw   string
}

func (InventoryQueryItem) Kind() ItemKind { return ItemInventoryQuery }

func (q InventoryQueryItem) MergeOver(under Item, settings *Settings) (Item, error) {
	return ScalarItem{}.MergeOver(under, settings)
}

func (InventoryQueryItem) References(Sentinels) []string { return nil }

func (q InventoryQueryItem) Render(ctx *RenderCtx) (interface{}, error) {
	if ctx.Inventory == nil {
		return nil, fmt.Errorf("inventory-query %q evaluated with no inventory available", q.Raw)
	}
	return ctx.Inventory.Evaluate(q.Query, ctx.Self, ctx.Delimiter)
}

// ListItem is a sequence of Values (spec.md §3).
type ListItem struct {
	Elements []*Value
}

func (ListItem) Kind() ItemKind { return ItemList }

func (l ListItem) MergeOver(under Item, settings *Settings) (Item, error) {
	switch u := under.(type) {
	case ListItem:
		merged := make([]*Value, 0, len(u.Elements)+len(l.Elements))
		merged = append(merged, u.Elements...)
		merged = append(merged, l.Elements...)
		return ListItem{Elements: merged}, nil
	case ScalarItem, CompositeItem, ReferenceItem, InventoryQueryItem:
		if settings.AllowListOverScalar {
			return l, nil
		}
		return nil, NewTypeMergeError("", "list", "scalar")
	case *DictItem:
		return nil, NewTypeMergeError("", "list", "dict")
	}
	return l, nil
}

func (l ListItem) References(sn Sentinels) []string {
	var refs []string
	for _, v := range l.Elements {
		refs = append(refs, v.References(sn)...)
	}
	return refs
}

func (l ListItem) Render(ctx *RenderCtx) (interface{}, error) {
	out := make([]interface{}, 0, len(l.Elements))
	for _, v := range l.Elements {
		rv, err := v.Render(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, nil
}

// DictItem is a live, eagerly key-merged nested mapping (spec.md §3, §4.4).
type DictItem struct {
	Entries map[string]*Slot
}

func NewDictItem() *DictItem {
	return &DictItem{Entries: map[string]*Slot{}}
}

func (*DictItem) Kind() ItemKind { return ItemDict }

func (d *DictItem) MergeOver(under Item, settings *Settings) (Item, error) {
	switch u := under.(type) {
	case *DictItem:
		for k, s := range d.Entries {
			cur, ok := u.Entries[k]
			if !ok {
				u.Entries[k] = s
				continue
			}
			if err := mergeSlot(cur, s, settings); err != nil {
				return nil, err
			}
		}
		return u, nil
	case ScalarItem, CompositeItem, ReferenceItem, InventoryQueryItem:
		if settings.AllowDictOverScalar {
			return d, nil
		}
		return nil, NewTypeMergeError("", "dict", "scalar")
	case ListItem:
		return nil, NewTypeMergeError("", "dict", "list")
	}
	return d, nil
}

func (d *DictItem) References(sn Sentinels) []string {
	var refs []string
	for _, s := range d.Entries {
		refs = append(refs, s.References(sn)...)
	}
	return refs
}

func (d *DictItem) Render(ctx *RenderCtx) (interface{}, error) {
	out := make(map[string]interface{}, len(d.Entries))
	for k, s := range d.Entries {
		rv, err := s.Render(ctx)
		if err != nil {
			return nil, &ReclassError{Kind: ResolveErrorKind, Message: err.Error(), Path: k}
		}
		out[k] = rv
	}
	return out, nil
}

// --- fragment helpers ---

func literalFragmentPath(frags []Fragment) (string, bool) {
	var b strings.Builder
	for _, f := range frags {
		if f.Kind != FragLiteral {
			return "", false
		}
		b.WriteString(f.Literal)
	}
	return b.String(), true
}

func fragmentRefs(f Fragment, sn Sentinels) []string {
	switch f.Kind {
	case FragLiteral:
		return nil
	case FragReference:
		if path, ok := literalFragmentPath(f.Children); ok {
			return []string{path}
		}
		var refs []string
		for _, c := range f.Children {
			refs = append(refs, fragmentRefs(c, sn)...)
		}
		return refs
	case FragExport:
		return nil
	}
	return nil
}

func renderFragmentAsString(f Fragment, ctx *RenderCtx) (string, error) {
	switch f.Kind {
	case FragLiteral:
		return f.Literal, nil
	case FragReference:
		item := ReferenceItem{Fragments: f.Children}
		v, err := item.Render(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%v", v), nil
	case FragExport:
		q, err := ParseQueryExpr(f.Expr)
		if err != nil {
			return "", err
		}
		item := InventoryQueryItem{Query: q, Raw: f.Expr}
		v, err := item.Render(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%v", v), nil
	}
	return "", nil
}

func toIface(m map[string]interface{}) interface{} {
	return interface{}(m)
}

// deepCopyValue recursively copies maps and slices so that a value
// borrowed via reference expansion can be merged elsewhere without
// aliasing its source (spec.md §5, §9).
func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, cv := range t {
			out[k] = deepCopyValue(cv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, cv := range t {
			out[i] = deepCopyValue(cv)
		}
		return out
	default:
		return v
	}
}
