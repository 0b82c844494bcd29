package reclass

// Exports is a Parameters tree rendered against an *external* context
// — the owning node's own parameters, not itself — and contributed to
// the fleet-wide inventory (spec.md §3 "Exports", §4.6).
//
// Structurally an Exports tree merges exactly like Parameters (same
// `~` overwrite / `=` constant control prefixes); only the rendering
// context differs, so Exports embeds a Parameters and adds the
// alternate-context render entry point.
type Exports struct {
	Parameters
}

// NewExports returns an empty Exports tree.
func NewExports(settings *Settings) *Exports {
	return &Exports{Parameters: Parameters{root: NewDictItem(), settings: settings}}
}

// MergeRaw parses raw (the `exports:` key of a class/node document) as
// originating from uri and merges it in (spec.md §4.4, applied to exports).
func (e *Exports) MergeRaw(raw map[string]interface{}, uri string) error {
	return e.Parameters.MergeRaw(raw, uri)
}

// Merge merges other's tree into e's.
func (e *Exports) Merge(other *Exports) error {
	return e.Parameters.Merge(&other.Parameters)
}

// Render renders e against selfParams — the owning node's own
// (possibly not yet fully interpolated) parameter tree — rather than
// against e's own tree (spec.md §3 "rendered against the parameters of
// the same node"). inv is threaded through for any `$[...]` occurring
// inside an exports value.
func (e *Exports) Render(selfParams map[string]interface{}, inv *Inventory) (map[string]interface{}, error) {
	mixed, markers, err := e.Parameters.buildMixed()
	if err != nil {
		return nil, err
	}
	r := &resolver{
		settings: e.Parameters.settings,
		tree:     mixed,
		byKey:    map[string]*pendingMarker{},
		status:   map[string]markerStatus{},
		errs:     &ResolveErrorList{},
		inv:      inv,
		self:     selfParams,
	}
	for _, m := range markers {
		r.byKey[m.dp.Key()] = m
		r.status[m.dp.Key()] = statusPending
	}
	for _, m := range markers {
		if r.status[m.dp.Key()] == statusDone {
			continue
		}
		// Exports are rendered against selfParams, not r.tree, for
		// reference lookups: override the render context's Tree per
		// call since resolver.resolve always threads r.tree through.
		if err := r.resolveExport(m, selfParams); err != nil {
			if e.Parameters.settings.GroupErrors {
				r.errs.Append(err)
				continue
			}
			return nil, err
		}
	}
	if err := r.errs.AsError(); err != nil {
		return toPlainTree(r.tree), err
	}
	return toPlainTree(r.tree), nil
}

// resolveExport is resolver.resolve specialized to render against an
// external context (selfParams) instead of the exports tree itself —
// this is the one respect in which Exports differs from Parameters
// (spec.md §3 "Exports").
func (r *resolver) resolveExport(m *pendingMarker, selfParams map[string]interface{}) error {
	key := m.dp.Key()
	switch r.status[key] {
	case statusDone:
		return nil
	case statusInProgress:
		return NewInfiniteRecursionError(m.dp.String())
	}
	r.status[key] = statusInProgress

	ctx := &RenderCtx{
		Tree:      selfParams,
		Self:      selfParams,
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
