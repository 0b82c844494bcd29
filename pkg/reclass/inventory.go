package reclass

import (
	"sort"
	"strings"

	"github.com/reclass-go/reclass/pkg/reclass/dictpath"
)

// InventoryRow is one node's contribution to the fleet-wide inventory:
// its rendered exports and (when available) its rendered parameters,
// keyed by node name (spec.md §4.7).
type InventoryRow struct {
	Name         string
	Environment  string
	Classes      []string
	Applications []string
	Exports      map[string]interface{}
	Parameters   map[string]interface{}
	Failed       error
}

// Inventory is the fleet-wide table an inventory-query ($[...]) is
// evaluated against (spec.md §4.2, §4.7).
type Inventory struct {
	Rows map[string]*InventoryRow
}

// NewInventory returns an empty inventory.
func NewInventory() *Inventory {
	return &Inventory{Rows: map[string]*InventoryRow{}}
}

// Add registers or replaces a node's row.
func (inv *Inventory) Add(row *InventoryRow) {
	inv.Rows[row.Name] = row
}

func (inv *Inventory) sortedNames() []string {
	names := make([]string, 0, len(inv.Rows))
	for n := range inv.Rows {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// splitRoot separates a query path's leading `exports:`/`self:` root
// from the rest of the path (spec.md §4.2). A path with neither root
// defaults to `exports:`.
func splitRoot(pathStr, delimiter string) (root, rest string) {
	parts := strings.SplitN(pathStr, delimiter, 2)
	if len(parts) == 2 && (parts[0] == "exports" || parts[0] == "self") {
		return parts[0], parts[1]
	}
	return "exports", pathStr
}

func resolveAgainst(pathStr, delimiter string, exports, self map[string]interface{}) (interface{}, bool) {
	root, rest := splitRoot(pathStr, delimiter)
	var base map[string]interface{}
	switch root {
	case "self":
		base = self
	default:
		base = exports
	}
	if base == nil || rest == "" {
		return nil, false
	}
	dp, err := dictpath.Parse(rest, delimiter)
	if err != nil {
		return nil, false
	}
	v, err := dp.GetValue(interface{}(base))
	if err != nil {
		return nil, false
	}
	return v, true
}

// Evaluate runs q against every node in the inventory, in the manner
// described by spec.md §4.2/§4.3's three query shapes:
//   - QueryValue:    returns {node: value} for every node where PATH exists.
//   - QueryTest:     returns {node: value} for every node whose
//     Conditions hold and where PATH exists.
//   - QueryListTest: returns the list of node names whose Conditions
//     hold.
//
// self is the evaluating node's own (possibly still-interpolating)
// parameter tree, used for `self:`-rooted conditions/paths.
func (inv *Inventory) Evaluate(q *QueryExpr, self map[string]interface{}, delimiter string) (interface{}, error) {
	var names []string

	rows := map[string]interface{}{}
	for _, name := range inv.sortedNames() {
		row := inv.Rows[name]
		if row.Failed != nil {
			if q.IgnoreErrors {
				continue
			}
			return nil, row.Failed
		}

		resolve := func(pathStr string) (interface{}, bool) {
			return resolveAgainst(pathStr, delimiter, row.Exports, self)
		}

		ok, err := q.Evaluate(resolve)
		if err != nil {
			if q.IgnoreErrors {
				continue
			}
			return nil, err
		}
		if !ok {
			continue
		}

		switch q.Kind {
		case QueryListTest:
			names = append(names, name)
		default:
			v, found := resolve(q.ValuePathStr)
			if !found {
				continue
			}
			rows[name] = v
		}
	}

	if q.Kind == QueryListTest {
		if names == nil {
			names = []string{}
		}
		out := make([]interface{}, len(names))
		for i, n := range names {
			out[i] = n
		}
		return out, nil
	}
	return rows, nil
}
