package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/reclass-go/reclass/pkg/reclass"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestTree(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "nodes", "web-01.yml"), "parameters:\n  hostname: web-01\n")
	writeFile(t, filepath.Join(base, "classes", "role", "web.yml"), "parameters:\n  port: 80\n")
	writeFile(t, filepath.Join(base, "classes", "role", "init.yml"), "parameters:\n  managed: true\n")
	return base
}

func TestFilesystemBackendGetNode(t *testing.T) {
	base := newTestTree(t)
	fb, err := NewFilesystemBackend(base, "nodes", "classes", false)
	if err != nil {
		t.Fatalf("NewFilesystemBackend: %v", err)
	}
	settings := reclass.DefaultSettings()
	e, err := fb.GetNode("web-01", settings)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if e.Name != "web-01" {
		t.Errorf("expected name 'web-01', got %q", e.Name)
	}
}

func TestFilesystemBackendGetClassWithInitIndex(t *testing.T) {
	base := newTestTree(t)
	fb, err := NewFilesystemBackend(base, "nodes", "classes", false)
	if err != nil {
		t.Fatalf("NewFilesystemBackend: %v", err)
	}
	settings := reclass.DefaultSettings()
	if _, err := fb.GetClass("role.web", "base", settings); err != nil {
		t.Errorf("GetClass role.web: %v", err)
	}
	if _, err := fb.GetClass("role", "base", settings); err != nil {
		t.Errorf("GetClass role (init.yml index): %v", err)
	}
}

func TestFilesystemBackendNodeNotFound(t *testing.T) {
	base := newTestTree(t)
	fb, err := NewFilesystemBackend(base, "nodes", "classes", false)
	if err != nil {
		t.Fatalf("NewFilesystemBackend: %v", err)
	}
	_, err = fb.GetNode("does-not-exist", reclass.DefaultSettings())
	if err == nil {
		t.Fatal("expected an error for a missing node")
	}
	nf, ok := err.(*NotFoundError)
	if !ok {
		t.Fatalf("expected *NotFoundError, got %T", err)
	}
	if nf.IsClassNotFound() {
		t.Error("a missing node must not report IsClassNotFound")
	}
}

func TestFilesystemBackendRejectsOverlappingURIs(t *testing.T) {
	base := t.TempDir()
	if _, err := NewFilesystemBackend(base, "data", "data", false); err == nil {
		t.Fatal("expected nodes_uri == classes_uri to be rejected")
	}
	if _, err := NewFilesystemBackend(base, "data", "data/classes", false); err == nil {
		t.Fatal("expected a nested classes_uri under nodes_uri to be rejected")
	}
}

func TestFilesystemBackendEnumerateNodes(t *testing.T) {
	base := newTestTree(t)
	writeFile(t, filepath.Join(base, "nodes", "web-02.yml"), "parameters: {}\n")
	fb, err := NewFilesystemBackend(base, "nodes", "classes", false)
	if err != nil {
		t.Fatalf("NewFilesystemBackend: %v", err)
	}
	names, err := fb.EnumerateNodes()
	if err != nil {
		t.Fatalf("EnumerateNodes: %v", err)
	}
	found := map[string]bool{}
	for _, n := range names {
		found[n] = true
	}
	if !found["web-01"] || !found["web-02"] {
		t.Errorf("expected both nodes enumerated, got %v", names)
	}
}
