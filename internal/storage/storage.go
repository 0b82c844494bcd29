// Package storage implements the Storage API consumed by the
// compiler (spec.md §6): get_node/get_class/enumerate_nodes, a
// write-once memcache proxy, a filesystem backend, and a git-backed
// backend built on the filesystem backend plus a repository checkout.
package storage

import (
	"fmt"

	"github.com/reclass-go/reclass/pkg/reclass"
)

// Backend is the Storage API a compiler core consumes (spec.md §6).
type Backend interface {
	Name() string
	GetNode(name string, settings *reclass.Settings) (*reclass.Entity, error)
	GetClass(name, environment string, settings *reclass.Settings) (*reclass.Entity, error)
	EnumerateNodes() ([]string, error)
}

// NotFoundError reports a missing node or class document.
type NotFoundError struct {
	StorageName string
	Kind        string // "node" or "class"
	EntityName  string
	URI         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s %q not found under %s", e.StorageName, e.Kind, e.EntityName, e.URI)
}

// IsClassNotFound reports whether this miss was a class lookup, so
// callers can apply ignore_class_notfound tolerance without importing
// this package (see reclass.Core's classNotFoundSignal).
func (e *NotFoundError) IsClassNotFound() bool {
	return e.Kind == "class"
}

// DuplicateURIError reports nodes_uri and classes_uri resolving to the
// identical path (spec.md §7 "Config / DuplicateUri / UriOverlap").
type DuplicateURIError struct {
	NodesURI, ClassesURI string
}

func (e *DuplicateURIError) Error() string {
	return fmt.Sprintf("nodes_uri and classes_uri must differ, both resolved to %q", e.NodesURI)
}

// UriOverlapError reports one of nodes_uri/classes_uri nested inside the other.
type UriOverlapError struct {
	NodesURI, ClassesURI string
}

func (e *UriOverlapError) Error() string {
	return fmt.Sprintf("nodes_uri %q and classes_uri %q must not overlap", e.NodesURI, e.ClassesURI)
}

// DuplicateNodeNameError reports two documents mangling to the same name.
type DuplicateNodeNameError struct {
	StorageName, EntityName, FirstURI, SecondURI string
}

func (e *DuplicateNodeNameError) Error() string {
	return fmt.Sprintf("%s: name %q is declared twice, at %s and %s", e.StorageName, e.EntityName, e.FirstURI, e.SecondURI)
}

// NameMangler derives a (relative-path, name) pair from a document's
// directory and filename, per spec.md's "compose_node_name" setting
// and the class `init.yml`-as-directory-index convention (grounded on
// the original reclass storage.common.NameMangler).
type NameMangler func(relpath, name string) (string, string)

// PlainNodeNameMangler uses only the basename (no directory composition).
func PlainNodeNameMangler(relpath, name string) (string, string) { return relpath, name }

// ComposedNodeNameMangler joins the directory path and basename with
// '.' unless the top path segment starts with '_'.
func ComposedNodeNameMangler(relpath, name string) (string, string) {
	if relpath == "." || relpath == "" {
		return "", name
	}
	parts := splitPath(relpath)
	if len(parts) > 0 && hasUnderscorePrefix(parts[0]) {
		return relpath, name
	}
	parts = append(parts, name)
	return relpath, joinDotted(parts)
}

// ClassNameMangler joins directory path segments with '.', treating a
// file named "init" as the directory's own index (so "foo/init.yml"
// names class "foo", not "foo.init").
func ClassNameMangler(relpath, name string) (string, string) {
	if relpath == "." || relpath == "" {
		return "", name
	}
	parts := splitPath(relpath)
	if name != "init" {
		parts = append(parts, name)
	}
	return relpath, joinDotted(parts)
}

func splitPath(p string) []string {
	var parts []string
	cur := ""
	for _, r := range p {
		if r == '/' {
			if cur != "" {
				parts = append(parts, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		parts = append(parts, cur)
	}
	return parts
}

func joinDotted(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "."
		}
		out += p
	}
	return out
}

func hasUnderscorePrefix(s string) bool { return len(s) > 0 && s[0] == '_' }
