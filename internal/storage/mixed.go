package storage

import "github.com/reclass-go/reclass/pkg/reclass"

// MixedBackend layers two independently-configured backends behind one
// Storage API: nodes are always read from one backend, while classes
// may be read from a different backend per environment, falling back
// to a single default classes backend when no environment-specific
// override is configured (grounded on the original reclass's
// storage/mixed/__init__.py ExternalNodeStorage, which resolves
// get_node against its own nodes storage and get_class against either
// an env_overrides entry or the default classes storage).
type MixedBackend struct {
	nodes          Backend
	defaultClasses Backend
	classesByEnv   map[string]Backend
}

// NewMixedBackend returns a MixedBackend reading nodes from nodes,
// classes from defaultClasses unless environment names a key in
// classesByEnv, in which case that backend is used instead.
// classesByEnv may be nil or empty.
func NewMixedBackend(nodes, defaultClasses Backend, classesByEnv map[string]Backend) *MixedBackend {
	return &MixedBackend{nodes: nodes, defaultClasses: defaultClasses, classesByEnv: classesByEnv}
}

func (m *MixedBackend) Name() string { return "mixed" }

func (m *MixedBackend) GetNode(name string, settings *reclass.Settings) (*reclass.Entity, error) {
	return m.nodes.GetNode(name, settings)
}

func (m *MixedBackend) GetClass(name, environment string, settings *reclass.Settings) (*reclass.Entity, error) {
	backend := m.defaultClasses
	if b, ok := m.classesByEnv[environment]; ok {
		backend = b
	}
	return backend.GetClass(name, environment, settings)
}

func (m *MixedBackend) EnumerateNodes() ([]string, error) {
	return m.nodes.EnumerateNodes()
}
