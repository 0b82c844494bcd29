package reclass

import (
	"fmt"

	"github.com/reclass-go/reclass/pkg/reclass/dictpath"
)

// Parameters is a dictionary of Values implementing deep merge and
// the fixed-point interpolator (spec.md §3, §4.4, §4.5).
type Parameters struct {
	root     *DictItem
	settings *Settings
}

// NewParameters returns an empty Parameters tree.
func NewParameters(settings *Settings) *Parameters {
	return &Parameters{root: NewDictItem(), settings: settings}
}

// MergeRaw parses raw (a decoded YAML/JSON mapping) as originating
// from uri and merges it into the tree (spec.md §4.4).
func (p *Parameters) MergeRaw(raw map[string]interface{}, uri string) error {
	slot, err := ParseSlot(raw, uri, ValueFlags{ParseString: true}, p.settings)
	if err != nil {
		return err
	}
	if slot.Dict == nil {
		return fmt.Errorf("parameters document at %s must be a mapping", uri)
	}
	cur := &Slot{Dict: p.root}
	return mergeSlot(cur, slot, p.settings)
}

// Merge merges other's tree into p's (later writer wins; spec.md §5
// "Parameter merging is left-fold").
func (p *Parameters) Merge(other *Parameters) error {
	cur := &Slot{Dict: p.root}
	incoming := &Slot{Dict: other.root}
	return mergeSlot(cur, incoming, p.settings)
}

// pendingMarker records a still-unresolved leaf discovered while
// building the mixed tree (spec.md §4.5 Phase A).
type pendingMarker struct {
	dp   *dictpath.DictPath
	slot *Slot
}

// mixedTree is the Phase-A/B working tree: a map[string]interface{}
// whose resolved leaves hold plain Go values and whose still-pending
// leaves hold a *pendingMarker sentinel.
type mixedTree = map[string]interface{}

func (p *Parameters) buildMixed() (mixedTree, []*pendingMarker, error) {
	return buildMixedDict(p.root, dictpath.New(nil, p.settings.Delimiter), p.settings)
}

func buildMixedDict(d *DictItem, prefix *dictpath.DictPath, settings *Settings) (mixedTree, []*pendingMarker, error) {
	out := mixedTree{}
	var markers []*pendingMarker
	for k, s := range d.Entries {
		childPath := prefix.Push(k)
		if s.Dict != nil {
			childMap, childMarkers, err := buildMixedDict(s.Dict, childPath, settings)
			if err != nil {
				return nil, nil, err
			}
			out[k] = childMap
			markers = append(markers, childMarkers...)
			continue
		}
		if s.Leaf == nil {
			out[k] = nil
			continue
		}
		if !s.Leaf.IsComplex() {
			v, err := s.Leaf.Fold(settings)
			if err != nil {
				return nil, nil, err
			}
			rv, err := v.Render(&RenderCtx{Settings: settings, Delimiter: settings.Delimiter})
			if err != nil {
				return nil, nil, err
			}
			out[k] = rv
			continue
		}
		out[k] = nil
		markers = append(markers, &pendingMarker{dp: childPath, slot: s})
	}
	return out, markers, nil
}

func setAtPath(tree mixedTree, dp *dictpath.DictPath, value interface{}) {
	segs := dp.Segments()
	cur := tree
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(mixedTree)
		if !ok {
			next = mixedTree{}
			cur[seg] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = value
}

type markerStatus int

const (
	statusPending markerStatus = iota
	statusInProgress
	statusDone
)

// resolver drives the fixed-point interpolation of a single
// Parameters tree (spec.md §4.5 Phase B).
type resolver struct {
	settings *Settings
	tree     mixedTree
	byKey    map[string]*pendingMarker
	status   map[string]markerStatus
	errs     *ResolveErrorList
	inv      *Inventory
	self     map[string]interface{}
}

// Interpolate resolves every reference and inventory-query in p,
// returning the fully rendered tree as a new map (spec.md §4.5); p
// itself is not modified. inv may be nil when no inventory-query is
// present. `self:`-rooted paths inside inventory queries resolve
// against p's own rendered-so-far tree.
func (p *Parameters) Interpolate(inv *Inventory) (map[string]interface{}, error) {
	mixed, markers, err := p.buildMixed()
	if err != nil {
		return nil, err
	}

	r := &resolver{
		settings: p.settings,
		tree:     mixed,
		byKey:    map[string]*pendingMarker{},
		status:   map[string]markerStatus{},
		errs:     &ResolveErrorList{},
		inv:      inv,
		self:     mixed,
	}
	for _, m := range markers {
		r.byKey[m.dp.Key()] = m
		r.status[m.dp.Key()] = statusPending
	}

	for _, m := range markers {
		if r.status[m.dp.Key()] == statusDone {
			continue
		}
		if err := r.resolve(m); err != nil {
			if p.settings.GroupErrors {
				r.errs.Append(err)
				continue
			}
			return nil, err
		}
	}

	if !p.settings.GroupErrors {
		return toPlainTree(r.tree), nil
	}
	if err := r.errs.AsError(); err != nil {
		return toPlainTree(r.tree), err
	}
	return toPlainTree(r.tree), nil
}

// toPlainTree converts the internal mixedTree alias back to an
// ordinary map[string]interface{} (they are the same underlying type;
// this documents the transition from "may still contain nil
// placeholders" to "fully rendered").
func toPlainTree(t mixedTree) map[string]interface{} {
	return map[string]interface{}(t)
}

func (r *resolver) resolve(m *pendingMarker) error {
	key := m.dp.Key()
	switch r.status[key] {
	case statusDone:
		return nil
	case statusInProgress:
		return NewInfiniteRecursionError(m.dp.String())
	}
	r.status[key] = statusInProgress

	refs := m.slot.References(r.settings.Sentinels())
	for _, ref := range refs {
		if err := r.resolveAncestors(ref); err != nil {
			return err
		}
	}

	ctx := &RenderCtx{
		Tree:      r.tree,
		Self:      r.self,
		Inventory: r.inv,
		Delimiter: r.settings.Delimiter,
		Settings:  r.settings,
	}
	rv, err := m.slot.Render(ctx)
	if err != nil {
		e := wrapResolveError(err, m.dp.String())
		r.status[key] = statusDone
		setAtPath(r.tree, m.dp, nil)
		return e
	}
	setAtPath(r.tree, m.dp, rv)
	r.status[key] = statusDone
	return nil
}

// resolveAncestors ensures every pending marker along ref's path
// (including ref itself), plus every pending marker nested underneath
// it, is resolved before the caller renders. This covers "the
// reference target is itself pending", "an ancestor of the reference
// target is a reference that must expand into a dict first", and
// "the reference target is a container whose own leaves are still
// pending" (spec.md §4.5 Phase B step 2; §4.5 step 4's "if the result
// is itself a container, flatten recursively, adding any new pending
// paths to U"; §9's reference-into-a-container-of-references case).
func (r *resolver) resolveAncestors(ref string) error {
	dp, err := dictpath.Parse(ref, r.settings.Delimiter)
	if err != nil {
		return NewParseError(ref, 0, err.Error())
	}
	segs := dp.Segments()
	for i := 1; i <= len(segs); i++ {
		prefix := dictpath.New(segs[:i], r.settings.Delimiter)
		if m, ok := r.byKey[prefix.Key()]; ok && r.status[prefix.Key()] != statusDone {
			if err := r.resolve(m); err != nil {
				return err
			}
		}
	}
	return r.resolveDescendants(dp)
}

// resolveDescendants resolves every still-pending marker strictly
// nested under target. Without this, a reference expanding into a
// container (`ReferenceItem.Render` reads and deep-copies the subtree
// directly out of the shared mixedTree) could copy out a sibling leaf
// that simply hadn't been visited yet by the top-level resolve loop,
// producing a result that depends on Go's map iteration order instead
// of always being fully resolved.
func (r *resolver) resolveDescendants(target *dictpath.DictPath) error {
	for key, m := range r.byKey {
		if r.status[key] == statusDone {
			continue
		}
		if m.dp.IsDescendantOf(target) {
			if err := r.resolve(m); err != nil {
				return err
			}
		}
	}
	return nil
}

func wrapResolveError(err error, path string) error {
	if re, ok := err.(*ReclassError); ok {
		return re.WithBreadcrumb("", path, "")
	}
	return &ReclassError{Kind: ResolveErrorKind, Message: err.Error(), Path: path}
}
