package reclass

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/reclass-go/reclass/pkg/reclass/dictpath"
)

// Storage is the document source Core compiles against (spec.md §6
// "Storage API"). Concrete backends (filesystem, git, the memcache
// proxy wrapping either) live in internal/storage and satisfy this
// interface structurally — pkg/reclass never imports internal/storage,
// avoiding an import cycle with the Entity/Settings types that package
// consumes.
type Storage interface {
	GetNode(name string, settings *Settings) (*Entity, error)
	GetClass(name, environment string, settings *Settings) (*Entity, error)
	EnumerateNodes() ([]string, error)
}

// classNotFoundSignal lets a Storage implementation mark an error as
// specifically "class not found" (as opposed to any other I/O or
// parse failure) without pkg/reclass importing the concrete error type.
type classNotFoundSignal interface {
	IsClassNotFound() bool
}

func isClassNotFound(err error) bool {
	s, ok := err.(classNotFoundSignal)
	return ok && s.IsClassNotFound()
}

// ClassMapping is one rule of the "class mappings" base-Entity source
// (spec.md §4.6 step 1a): nodes whose name matches Pattern (a glob, or
// a `/regex/`-delimited regular expression) are prepended Classes.
// Regex capture groups back-substitute into class name templates using
// Go's `$1`/`${1}` ReplaceAllString syntax.
type ClassMapping struct {
	Pattern string
	Classes []string
}

func (m ClassMapping) isRegex() bool {
	return len(m.Pattern) >= 2 && strings.HasPrefix(m.Pattern, "/") && strings.HasSuffix(m.Pattern, "/")
}

func (m ClassMapping) match(nodeName string) ([]string, bool, error) {
	if m.isRegex() {
		re, err := regexp.Compile(m.Pattern[1 : len(m.Pattern)-1])
		if err != nil {
			return nil, false, fmt.Errorf("class mapping pattern %q: %w", m.Pattern, err)
		}
		loc := re.FindStringSubmatchIndex(nodeName)
		if loc == nil {
			return nil, false, nil
		}
		classes := make([]string, len(m.Classes))
		for i, tmpl := range m.Classes {
			classes[i] = string(re.ExpandString(nil, tmpl, nodeName, loc))
		}
		return classes, true, nil
	}
	ok, err := pathMatch(m.Pattern, nodeName)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return append([]string{}, m.Classes...), true, nil
}

// pathMatch is a glob match over the whole node name (not path
// segments), so a pattern like "web-*" matches "web-01".
func pathMatch(pattern, name string) (bool, error) {
	ok, err := matchGlobRunes([]rune(pattern), []rune(name))
	if err != nil {
		return false, err
	}
	return ok, nil
}

// matchGlobRunes implements '*' (any run) and '?' (one rune) glob
// matching without filepath.Match's path-separator semantics, which
// don't apply to node names.
func matchGlobRunes(pattern, name []rune) (bool, error) {
	var matchHere func(p, n []rune) bool
	matchHere = func(p, n []rune) bool {
		for len(p) > 0 {
			switch p[0] {
			case '*':
				for i := 0; i <= len(n); i++ {
					if matchHere(p[1:], n[i:]) {
						return true
					}
				}
				return false
			case '?':
				if len(n) == 0 {
					return false
				}
				p, n = p[1:], n[1:]
			default:
				if len(n) == 0 || p[0] != n[0] {
					return false
				}
				p, n = p[1:], n[1:]
			}
		}
		return len(n) == 0
	}
	return matchHere(pattern, name), nil
}

// Core orchestrates per-node class expansion, Entity assembly, and
// fleet-wide inventory rendering (spec.md §4.6, §4.7).
type Core struct {
	storage       Storage
	settings      *Settings
	classMappings []ClassMapping
	inputData     map[string]*Entity
}

// NewCore returns a Core compiling against storage under settings.
func NewCore(storage Storage, settings *Settings) *Core {
	return &Core{storage: storage, settings: settings, inputData: map[string]*Entity{}}
}

// AddClassMapping registers a class-mapping rule (spec.md §4.6 step 1a).
func (c *Core) AddClassMapping(pattern string, classes []string) {
	c.classMappings = append(c.classMappings, ClassMapping{Pattern: pattern, Classes: classes})
}

// SetInputData registers externally supplied parameters for a node
// (e.g. a host pillar; spec.md §4.6 step 1b).
func (c *Core) SetInputData(nodeName string, e *Entity) {
	c.inputData[nodeName] = e
}

func (c *Core) matchClassMappings(nodeName string) ([]string, error) {
	var out []string
	for _, m := range c.classMappings {
		classes, ok, err := m.match(nodeName)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, classes...)
		}
	}
	return out, nil
}

// automaticParameters builds the `_reclass_` block injected when
// automatic_parameters is enabled (spec.md §4.6 step 1c).
func (c *Core) automaticParameters(nodeName, environment string) map[string]interface{} {
	full := nodeName
	short := nodeName
	if c.settings.ComposeNodeName {
		if i := strings.IndexByte(full, '.'); i >= 0 {
			short = full[:i]
		}
	}
	return map[string]interface{}{
		"_reclass_": map[string]interface{}{
			"name": map[string]interface{}{
				"full":  full,
				"short": short,
			},
			"environment": environment,
		},
	}
}

// renderClassName resolves `${...}` occurrences inside a class-name
// template against acc's parameters merged so far (spec.md §4.6 step
// 3 "resolve embedded references against the partially merged base").
// A class name with no sentinels is returned unchanged without
// touching acc at all (the common case).
func (c *Core) renderClassName(name string, acc *Entity) (string, error) {
	sn := c.settings.Sentinels()
	frags, err := ParseReferenceString(name, sn)
	if err != nil {
		return "", err
	}
	if lit, ok := literalFragmentPath(frags); ok {
		return lit, nil
	}
	mixed, _, err := buildMixedDict(acc.Parameters.root, dictpath.New(nil, c.settings.Delimiter), c.settings)
	if err != nil {
		return "", err
	}
	ctx := &RenderCtx{Tree: mixed, Self: mixed, Delimiter: c.settings.Delimiter, Settings: c.settings}
	var b strings.Builder
	for _, f := range frags {
		s, err := renderFragmentAsString(f, ctx)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// expandClasses recursively expands names into acc, in declared
// order, skipping names already in seen (spec.md §4.6 steps 3-5).
func (c *Core) expandClasses(names []string, acc *Entity, environment string, seen map[string]bool) error {
	for _, raw := range names {
		name, err := c.renderClassName(raw, acc)
		if err != nil {
			return err
		}
		if seen[name] {
			continue
		}
		seen[name] = true

		classEntity, err := c.storage.GetClass(name, environment, c.settings)
		if err != nil {
			if isClassNotFound(err) {
				ignore := c.settings.IgnoreClassNotfound
				if ignore && c.settings.IgnoreClassNotfoundRegexp != "" {
					ok, rerr := regexp.MatchString(c.settings.IgnoreClassNotfoundRegexp, name)
					ignore = rerr == nil && ok
				}
				if ignore {
					if c.settings.IgnoreClassNotfoundWarning {
						warnClassNotFound(name, environment)
					}
					continue
				}
			}
			return NewClassNotFoundError(name, environment)
		}

		if err := c.expandClasses(classEntity.Classes, acc, environment, seen); err != nil {
			return err
		}

		// Record this class's own contribution directly rather than via
		// acc.Merge(classEntity): classEntity.Classes names classEntity's
		// own parents, already recursed above, and re-appending them here
		// would double them up in the output class list.
		acc.Classes = append(acc.Classes, name)
		acc.Applications = append(acc.Applications, classEntity.Applications...)
		if err := acc.Parameters.Merge(classEntity.Parameters); err != nil {
			return err
		}
		if err := acc.Exports.Merge(classEntity.Exports); err != nil {
			return err
		}
		if classEntity.Environment != "" {
			acc.Environment = classEntity.Environment
		}
	}
	return nil
}

// BuildEntity assembles node's complete, merged-but-uninterpolated
// Entity (spec.md §4.6). environment, when empty, defaults to the
// node's own declared environment, then settings.DefaultEnvironment.
func (c *Core) BuildEntity(nodeName, environment string) (*Entity, error) {
	nodeEntity, err := c.storage.GetNode(nodeName, c.settings)
	if err != nil {
		return nil, err
	}
	if environment == "" {
		environment = nodeEntity.Environment
	}
	if environment == "" {
		environment = c.settings.DefaultEnvironment
	}

	acc := NewEntity(nodeEntity.URI, c.settings)
	acc.Name = nodeName
	acc.Environment = environment

	mapped, err := c.matchClassMappings(nodeName)
	if err != nil {
		return nil, err
	}
	acc.Classes = append(acc.Classes, mapped...)

	if id, ok := c.inputData[nodeName]; ok {
		if err := acc.Merge(id); err != nil {
			return nil, err
		}
	}
	if c.settings.AutomaticParameters {
		auto := c.automaticParameters(nodeName, environment)
		if err := acc.Parameters.MergeRaw(auto, "<automatic>"); err != nil {
			return nil, err
		}
	}

	seen := map[string]bool{}
	allClasses := append(append([]string{}, acc.Classes...), nodeEntity.Classes...)
	acc.Classes = nil
	if err := c.expandClasses(allClasses, acc, environment, seen); err != nil {
		return nil, err
	}

	// The node's own document is merged last (spec.md §4.6 step 6); its
	// classes were already recorded as visits above, so only its
	// applications/parameters/exports/environment are folded in here.
	acc.Applications = append(acc.Applications, nodeEntity.Applications...)
	if err := acc.Parameters.Merge(nodeEntity.Parameters); err != nil {
		return nil, err
	}
	if err := acc.Exports.Merge(nodeEntity.Exports); err != nil {
		return nil, err
	}
	acc.Name = nodeName
	acc.Environment = environment
	return acc, nil
}

// BuildInventory produces the fleet-wide node → exports-row mapping
// (spec.md §4.7): every node's Entity is assembled but parameters are
// only flattened, not fixed-pointed, and only the exports tree is
// rendered, against the node's own still-unresolved parameters.
func (c *Core) BuildInventory() (*Inventory, error) {
	names, err := c.storage.EnumerateNodes()
	if err != nil {
		return nil, err
	}
	inv := NewInventory()
	for _, name := range names {
		entity, err := c.BuildEntity(name, "")
		if err != nil {
			if c.settings.InventoryIgnoreFailedNode {
				inv.Add(&InventoryRow{Name: name, Failed: err})
				continue
			}
			return nil, err
		}
		selfSnapshot, _, err := buildMixedDict(entity.Parameters.root, dictpath.New(nil, c.settings.Delimiter), c.settings)
		if err != nil {
			if c.settings.InventoryIgnoreFailedRender {
				inv.Add(&InventoryRow{Name: name, Environment: entity.Environment, Failed: err})
				continue
			}
			return nil, err
		}
		rendered, err := entity.Exports.Render(selfSnapshot, nil)
		if err != nil {
			if c.settings.InventoryIgnoreFailedRender {
				inv.Add(&InventoryRow{Name: name, Environment: entity.Environment, Failed: err})
				continue
			}
			return nil, err
		}
		inv.Add(&InventoryRow{
			Name:         name,
			Environment:  entity.Environment,
			Classes:      entity.Classes,
			Applications: entity.Applications,
			Exports:      rendered,
			Parameters:   selfSnapshot,
		})
	}
	return inv, nil
}

// CompileResult is the output of compiling a single node (spec.md §6
// "nodeinfo").
type CompileResult struct {
	Entity     *Entity
	Parameters map[string]interface{}
	Exports    map[string]interface{}
	Inventory  *Inventory
}

// CompileNode builds nodeName's Entity, computes the fleet inventory
// (needed for any `$[...]` occurring in its parameters), runs the
// fixed-point interpolation, and re-renders its exports against the
// now fully-resolved parameters (spec.md §4.5, §4.7, §9 ordering notes).
func (c *Core) CompileNode(nodeName, environment string) (*CompileResult, error) {
	entity, err := c.BuildEntity(nodeName, environment)
	if err != nil {
		return nil, err
	}
	inv, err := c.BuildInventory()
	if err != nil {
		return nil, err
	}
	rendered, err := entity.Parameters.Interpolate(inv)
	if err != nil {
		return &CompileResult{Entity: entity, Parameters: rendered, Inventory: inv}, err
	}
	exports, err := entity.Exports.Render(rendered, inv)
	if err != nil {
		return &CompileResult{Entity: entity, Parameters: rendered, Inventory: inv}, err
	}
	return &CompileResult{Entity: entity, Parameters: rendered, Exports: exports, Inventory: inv}, nil
}

// BuildNodeInfoDocument shapes a CompileResult into the nodeinfo
// output document (spec.md §6).
func BuildNodeInfoDocument(r *CompileResult, timestamp string) map[string]interface{} {
	e := r.Entity
	return map[string]interface{}{
		"__reclass__": map[string]interface{}{
			"node":        e.Name,
			"name":        e.Name,
			"uri":         e.URI,
			"environment": e.Environment,
			"timestamp":   timestamp,
		},
		"classes":      e.Classes,
		"applications": e.Applications,
		"parameters":   r.Parameters,
		"exports":      r.Exports,
		"environment":  e.Environment,
	}
}

// BuildInventoryDocument shapes a built Inventory into the inventory
// output document (spec.md §6): `classes`/`applications` map each
// declared name to the list of nodes that declare it.
func BuildInventoryDocument(inv *Inventory, timestamp string) map[string]interface{} {
	classes := map[string][]string{}
	applications := map[string][]string{}
	nodes := map[string]interface{}{}
	for _, name := range inv.sortedNames() {
		row := inv.Rows[name]
		nodes[name] = row.Exports
		for _, cl := range row.Classes {
			classes[cl] = append(classes[cl], name)
		}
		for _, app := range row.Applications {
			applications[app] = append(applications[app], name)
		}
	}
	return map[string]interface{}{
		"__reclass__": map[string]interface{}{
			"timestamp": timestamp,
		},
		"nodes":        nodes,
		"classes":      classes,
		"applications": applications,
	}
}
