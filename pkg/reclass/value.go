package reclass

import (
	"fmt"
	"strings"

	"github.com/reclass-go/reclass/log"
)

// Value wraps a single parsed Item together with its provenance and
// merge flags (spec.md §3 "Value").
type Value struct {
	Item        Item
	URI         string
	Overwrite   bool
	Constant    bool
	ParseString bool
}

// References delegates to the wrapped Item.
func (v *Value) References(sn Sentinels) []string {
	if v == nil || v.Item == nil {
		return nil
	}
	return v.Item.References(sn)
}

// Render delegates to the wrapped Item.
func (v *Value) Render(ctx *RenderCtx) (interface{}, error) {
	if v == nil || v.Item == nil {
		return nil, nil
	}
	return v.Item.Render(ctx)
}

// ValueList chains Values contributed to the same key across
// successive merges (spec.md §3 "ValueList", §4.4).
type ValueList struct {
	Values []*Value
}

// Append adds v to the end of the chain, honoring the constant guard
// (spec.md invariant 2 / scenario 4): a prior Constant member may not
// be followed by another member unless strict_constant_parameters is
// disabled.
func (vl *ValueList) Append(v *Value, settings *Settings) error {
	if len(vl.Values) > 0 && settings.StrictConstantParameters {
		last := vl.Values[len(vl.Values)-1]
		if last.Constant {
			return &ReclassError{
				Kind:    ChangedConstantErrorKind,
				Message: fmt.Sprintf("constant set at %s cannot be overwritten by %s", last.URI, v.URI),
			}
		}
	}
	if v.Overwrite {
		vl.Values = []*Value{v}
		return nil
	}
	vl.Values = append(vl.Values, v)
	return nil
}

// IsComplex reports whether this chain must be kept distinct through
// interpolation rather than folded eagerly during flatten (spec.md
// §3 "ValueList is complex iff..."): any member is itself complex
// (carries unresolved references/inventory-queries), constant, forces
// overwrite, or members differ in item-type.
func (vl *ValueList) IsComplex() bool {
	if len(vl.Values) <= 1 {
		if len(vl.Values) == 1 {
			return isComplexItem(vl.Values[0].Item) || vl.Values[0].Constant
		}
		return false
	}
	kind := vl.Values[0].Item.Kind()
	for _, v := range vl.Values {
		if isComplexItem(v.Item) || v.Constant || v.Overwrite {
			return true
		}
		if v.Item.Kind() != kind {
			return true
		}
	}
	return false
}

func isComplexItem(it Item) bool {
	switch it.Kind() {
	case ItemReference, ItemInventoryQuery:
		return true
	case ItemComposite:
		c := it.(CompositeItem)
		for _, f := range c.Fragments {
			if f.Kind != FragLiteral {
				return true
			}
		}
		return false
	case ItemList:
		l := it.(ListItem)
		for _, v := range l.Elements {
			if isComplexItem(v.Item) {
				return true
			}
		}
		return false
	case ItemDict:
		d := it.(*DictItem)
		for _, s := range d.Entries {
			if s.Dict != nil {
				return true
			}
			if s.Leaf != nil && s.Leaf.IsComplex() {
				return true
			}
		}
		return false
	}
	return false
}

// Fold collapses a non-complex chain into its single resulting Item
// by pairwise MergeOver in chronological order (spec.md §4.5 Phase A).
func (vl *ValueList) Fold(settings *Settings) (*Value, error) {
	if len(vl.Values) == 0 {
		return nil, fmt.Errorf("cannot fold an empty ValueList")
	}
	acc := vl.Values[0]
	for _, next := range vl.Values[1:] {
		merged, err := next.Item.MergeOver(acc.Item, settings)
		if err != nil {
			return nil, err
		}
		acc = &Value{Item: merged, URI: next.URI, Overwrite: next.Overwrite, Constant: next.Constant, ParseString: next.ParseString}
	}
	return acc, nil
}

// References gathers the reference path-strings across every member
// of the chain.
func (vl *ValueList) References(sn Sentinels) []string {
	var refs []string
	for _, v := range vl.Values {
		refs = append(refs, v.References(sn)...)
	}
	return refs
}

// Slot is one position in the Parameters tree: either a live,
// eagerly-merged DictItem, or a lazily-folded chain of non-dict
// Values (spec.md §4.4 design rationale: dicts recurse immediately;
// scalars/lists/references/queries accumulate and fold at interpolation
// time, since settings are fixed for the whole run and folding order
// cannot change the outcome).
type Slot struct {
	Dict *DictItem
	Leaf *ValueList
	URI  string
}

// References gathers reference path-strings from whichever branch is active.
func (s *Slot) References(sn Sentinels) []string {
	if s == nil {
		return nil
	}
	if s.Dict != nil {
		return s.Dict.References(sn)
	}
	if s.Leaf != nil {
		return s.Leaf.References(sn)
	}
	return nil
}

// Render materializes the slot's current value.
func (s *Slot) Render(ctx *RenderCtx) (interface{}, error) {
	if s == nil {
		return nil, nil
	}
	if s.Dict != nil {
		return s.Dict.Render(ctx)
	}
	if s.Leaf != nil {
		settings := ctx.Settings
		if settings == nil {
			settings = DefaultSettings()
		}
		if !s.Leaf.IsComplex() {
			v, err := s.Leaf.Fold(settings)
			if err != nil {
				return nil, err
			}
			return v.Render(ctx)
		}
		return renderComplexChain(s.Leaf, ctx)
	}
	return nil, nil
}

// renderComplexChain renders a still-complex ValueList by folding it
// with MergeOver using each member's *rendered* item type once known,
// honoring ignore_overwritten_missing_references tolerance (spec.md
// §4.5): intermediate members that fail to render are dropped (with a
// warning) provided a later member renders successfully; a failing
// final member is fatal. Once a constant member has been folded in, a
// latch suppresses every later member instead of merging over it
// (spec.md §8 scenario 4; grounded on the original reclass's
// ValueList.render, which sets `constant = True` after a constant
// member and `continue`s past everything after it, raising
// ChangedConstantError instead when strict_constant_parameters holds).
func renderComplexChain(vl *ValueList, ctx *RenderCtx) (interface{}, error) {
	settings := ctx.Settings
	if settings == nil {
		settings = DefaultSettings()
	}
	type rendered struct {
		value *Value
		out    interface{}
		err    error
	}
	results := make([]rendered, len(vl.Values))
	for i, v := range vl.Values {
		out, err := v.Render(ctx)
		results[i] = rendered{value: v, out: out, err: err}
	}

	tolerate := ctx.ignoreOverwrittenMissing()

	var acc *Value
	var accOut interface{}
	haveAcc := false
	constant := false
	for i, r := range results {
		isLast := i == len(results)-1
		if r.err != nil {
			if tolerate && !isLast {
				log.WARN("dropping overwritten value from %s that failed to render: %v", r.value.URI, r.err)
				continue
			}
			return nil, r.err
		}

		if constant {
			if settings.StrictConstantParameters {
				return nil, &ReclassError{
					Kind:    ChangedConstantErrorKind,
					Message: fmt.Sprintf("constant set at %s cannot be overwritten by %s", results[i-1].value.URI, r.value.URI),
				}
			}
			continue
		}

		if !haveAcc {
			acc = r.value
			accOut = r.out
			haveAcc = true
		} else {
			merged, err := r.value.Item.MergeOver(acc.Item, settings)
			if err != nil {
				return nil, err
			}
			acc = &Value{Item: merged, URI: r.value.URI}
			mv, err := merged.Render(ctx)
			if err != nil {
				return nil, err
			}
			accOut = mv
		}

		if r.value.Constant {
			constant = true
		}
	}
	if !haveAcc {
		return nil, fmt.Errorf("all members of value chain failed to render")
	}
	return accOut, nil
}

func (ctx *RenderCtx) ignoreOverwrittenMissing() bool {
	if ctx.Settings == nil {
		return true
	}
	return ctx.Settings.IgnoreOverwrittenMissingReferences
}

// mergeSlot merges new (a freshly-parsed slot) into cur (an existing,
// possibly-already-populated slot) in place, applying spec.md §4.4's
// dict-recurses/leaf-chains rule.
func mergeSlot(cur, new *Slot, settings *Settings) error {
	cur.URI = new.URI
	switch {
	case new.Dict != nil && cur.Dict != nil:
		for k, ns := range new.Dict.Entries {
			cs, ok := cur.Dict.Entries[k]
			if !ok {
				cur.Dict.Entries[k] = ns
				continue
			}
			if err := mergeSlot(cs, ns, settings); err != nil {
				return err
			}
		}
		return nil

	case new.Dict != nil && cur.Dict == nil && cur.Leaf == nil:
		cur.Dict = new.Dict
		return nil

	case new.Dict != nil && cur.Leaf != nil:
		// type conflict between an existing leaf chain and an
		// incoming dict (spec.md §4.4 step 2: "the type conflict
		// surfaces at render time" — here immediately, since
		// settings cannot change mid-run).
		return NewTypeMergeError("", "dict", "scalar-or-list")

	default:
		// new carries a leaf ValueList (possibly of length 1).
		if cur.Leaf == nil {
			if cur.Dict != nil {
				if !settings.AllowScalarOverDict || new.Leaf.Values[0].Item.Kind() == ItemList {
					return NewTypeMergeError("", "scalar-or-list", "dict")
				}
				cur.Dict = nil
			}
			cur.Leaf = &ValueList{}
		}
		for _, v := range new.Leaf.Values {
			if err := cur.Leaf.Append(v, settings); err != nil {
				return err
			}
		}
		return nil
	}
}

// ParseValue converts a single scalar leaf (string/bool/number/nil)
// into a Value, parsing its reference-grammar if it is a string
// (unless ParseString is false, per spec.md §3 Value flags).
func ParseValue(raw interface{}, uri string, flags ValueFlags, sn Sentinels) (*Value, error) {
	v := &Value{URI: uri, Overwrite: flags.Overwrite, Constant: flags.Constant, ParseString: flags.ParseString}

	s, isString := raw.(string)
	if !isString || !flags.ParseString {
		v.Item = ScalarItem{Raw: raw}
		return v, nil
	}

	frags, err := ParseReferenceString(s, sn)
	if err != nil {
		return nil, err
	}
	switch {
	case len(frags) == 0:
		v.Item = ScalarItem{Raw: ""}
	case len(frags) == 1 && frags[0].Kind == FragLiteral:
		v.Item = ScalarItem{Raw: frags[0].Literal}
	case len(frags) == 1 && frags[0].Kind == FragReference:
		v.Item = ReferenceItem{Fragments: frags[0].Children}
	case len(frags) == 1 && frags[0].Kind == FragExport:
		q, err := ParseQueryExpr(frags[0].Expr)
		if err != nil {
			return nil, err
		}
		v.Item = InventoryQueryItem{Query: q, Raw: frags[0].Expr}
	default:
		v.Item = CompositeItem{Fragments: frags}
	}
	return v, nil
}

// ValueFlags are the control-prefix-derived merge flags for a Value
// (spec.md §3 "Value flags and lifecycle").
type ValueFlags struct {
	Overwrite   bool
	Constant    bool
	ParseString bool
}

// ParseSlot converts an arbitrary raw YAML/JSON value (scalar, list,
// or map) at the given uri into a Slot, recursively parsing nested
// dicts into DictItems and lists into ListItems (spec.md §4.4 step 1).
// Control prefixes on dict keys (`~`, `=`) are stripped here, via
// stripControlPrefix, and passed as the child value's ValueFlags when
// recursing; flags is the set derived from the enclosing key.
func ParseSlot(raw interface{}, uri string, flags ValueFlags, settings *Settings) (*Slot, error) {
	switch v := raw.(type) {
	case map[string]interface{}:
		d := NewDictItem()
		for k, child := range v {
			key, childFlags := stripControlPrefix(k, settings)
			childSlot, err := ParseSlot(child, uri, childFlags, settings)
			if err != nil {
				return nil, err
			}
			d.Entries[key] = childSlot
		}
		return &Slot{Dict: d, URI: uri}, nil

	case []interface{}:
		elems := make([]*Value, 0, len(v))
		for _, child := range v {
			cv, err := valueOfRaw(child, uri, settings)
			if err != nil {
				return nil, err
			}
			elems = append(elems, cv)
		}
		return &Slot{Leaf: &ValueList{Values: []*Value{{Item: ListItem{Elements: elems}, URI: uri, Overwrite: flags.Overwrite, Constant: flags.Constant}}}, URI: uri}, nil

	default:
		val, err := ParseValue(v, uri, flags, settings.Sentinels())
		if err != nil {
			return nil, err
		}
		return &Slot{Leaf: &ValueList{Values: []*Value{val}}, URI: uri}, nil
	}
}

// valueOfRaw parses a single list element (itself possibly a nested
// dict or list) into a Value.
func valueOfRaw(raw interface{}, uri string, settings *Settings) (*Value, error) {
	switch v := raw.(type) {
	case map[string]interface{}:
		slot, err := ParseSlot(v, uri, ValueFlags{ParseString: true}, settings)
		if err != nil {
			return nil, err
		}
		return &Value{Item: slot.Dict, URI: uri}, nil
	case []interface{}:
		slot, err := ParseSlot(v, uri, ValueFlags{ParseString: true}, settings)
		if err != nil {
			return nil, err
		}
		return slot.Leaf.Values[0], nil
	default:
		return ParseValue(v, uri, ValueFlags{ParseString: true}, settings.Sentinels())
	}
}

// stripControlPrefix removes the `~`/`=` control prefixes from a dict
// key (spec.md §3 invariant 1, §4.4 step 1) and returns the resulting
// flags.
func stripControlPrefix(key string, settings *Settings) (string, ValueFlags) {
	flags := ValueFlags{ParseString: true}
	for {
		switch {
		case strings.HasPrefix(key, settings.DictKeyOverridePrefix) && settings.DictKeyOverridePrefix != "":
			key = key[len(settings.DictKeyOverridePrefix):]
			flags.Overwrite = true
			continue
		case strings.HasPrefix(key, settings.DictKeyConstantPrefix) && settings.DictKeyConstantPrefix != "":
			key = key[len(settings.DictKeyConstantPrefix):]
			flags.Constant = true
			continue
		}
		break
	}
	return key, flags
}
