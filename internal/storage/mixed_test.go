package storage

import (
	"testing"

	"github.com/reclass-go/reclass/pkg/reclass"
)

type namedStubBackend struct {
	name string
}

func (b *namedStubBackend) Name() string { return b.name }

func (b *namedStubBackend) GetNode(name string, settings *reclass.Settings) (*reclass.Entity, error) {
	e := reclass.NewEntity(b.name+"/nodes/"+name, settings)
	e.Name = b.name
	return e, nil
}

func (b *namedStubBackend) GetClass(name, environment string, settings *reclass.Settings) (*reclass.Entity, error) {
	e := reclass.NewEntity(b.name+"/classes/"+name, settings)
	e.Name = b.name
	return e, nil
}

func (b *namedStubBackend) EnumerateNodes() ([]string, error) { return []string{"n1"}, nil }

func TestMixedBackendReadsNodesFromNodesBackend(t *testing.T) {
	nodes := &namedStubBackend{name: "nodes-backend"}
	classes := &namedStubBackend{name: "default-classes-backend"}
	m := NewMixedBackend(nodes, classes, nil)

	e, err := m.GetNode("web-01", reclass.DefaultSettings())
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if e.Name != "nodes-backend" {
		t.Errorf("expected the node to come from the nodes backend, got %q", e.Name)
	}
}

func TestMixedBackendFallsBackToDefaultClasses(t *testing.T) {
	nodes := &namedStubBackend{name: "nodes-backend"}
	defaultClasses := &namedStubBackend{name: "default-classes-backend"}
	prodClasses := &namedStubBackend{name: "prod-classes-backend"}
	m := NewMixedBackend(nodes, defaultClasses, map[string]Backend{"prod": prodClasses})

	e, err := m.GetClass("role.web", "staging", reclass.DefaultSettings())
	if err != nil {
		t.Fatalf("GetClass: %v", err)
	}
	if e.Name != "default-classes-backend" {
		t.Errorf("expected an environment with no override to use the default classes backend, got %q", e.Name)
	}
}

func TestMixedBackendUsesPerEnvironmentClassesOverride(t *testing.T) {
	nodes := &namedStubBackend{name: "nodes-backend"}
	defaultClasses := &namedStubBackend{name: "default-classes-backend"}
	prodClasses := &namedStubBackend{name: "prod-classes-backend"}
	m := NewMixedBackend(nodes, defaultClasses, map[string]Backend{"prod": prodClasses})

	e, err := m.GetClass("role.web", "prod", reclass.DefaultSettings())
	if err != nil {
		t.Fatalf("GetClass: %v", err)
	}
	if e.Name != "prod-classes-backend" {
		t.Errorf("expected the prod environment override to be used, got %q", e.Name)
	}
}

func TestMixedBackendEnumerateNodesDelegatesToNodesBackend(t *testing.T) {
	nodes := &namedStubBackend{name: "nodes-backend"}
	classes := &namedStubBackend{name: "default-classes-backend"}
	m := NewMixedBackend(nodes, classes, nil)

	names, err := m.EnumerateNodes()
	if err != nil {
		t.Fatalf("EnumerateNodes: %v", err)
	}
	if len(names) != 1 || names[0] != "n1" {
		t.Errorf("unexpected names: %v", names)
	}
}
