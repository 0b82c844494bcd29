package reclass

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// ErrorKind categorizes the errors raised by the merge/interpolation
// engine (spec.md §7).
type ErrorKind string

const (
	// ParseErrorKind is raised for a malformed reference/expression string.
	ParseErrorKind ErrorKind = "parse_error"
	// ResolveErrorKind is raised when a reference path is not present in its context.
	ResolveErrorKind ErrorKind = "resolve_error"
	// InfiniteRecursionErrorKind is raised when interpolation detects a cycle.
	InfiniteRecursionErrorKind ErrorKind = "infinite_recursion"
	// BadReferencesErrorKind is raised when references remain unresolved after the fixed point stabilizes.
	BadReferencesErrorKind ErrorKind = "bad_references"
	// TypeMergeErrorKind is raised for incompatible types across a ValueList render.
	TypeMergeErrorKind ErrorKind = "type_merge_error"
	// ChangedConstantErrorKind is raised on an attempted overwrite of a constant value.
	ChangedConstantErrorKind ErrorKind = "changed_constant"
	// ClassNotFoundErrorKind is raised when storage cannot satisfy a class lookup.
	ClassNotFoundErrorKind ErrorKind = "class_not_found"
	// ClassNameResolveErrorKind is raised when a class-mapping regex back-substitution fails.
	ClassNameResolveErrorKind ErrorKind = "class_name_resolve_error"
	// InvQueryClassNotFoundErrorKind wraps ClassNotFound when it arises inside an inventory pass.
	InvQueryClassNotFoundErrorKind ErrorKind = "inv_query_class_not_found"
	// NameErrorKind covers general inventory-integrity naming violations.
	NameErrorKind ErrorKind = "name_error"
	// DuplicateNodeNameErrorKind is raised when two nodes in the inventory share a name.
	DuplicateNodeNameErrorKind ErrorKind = "duplicate_node_name"
	// InvalidClassnameErrorKind is raised for a malformed class name.
	InvalidClassnameErrorKind ErrorKind = "invalid_classname"
	// ConfigErrorKind covers storage/settings misconfiguration.
	ConfigErrorKind ErrorKind = "config_error"
	// DuplicateURIErrorKind is raised when two storage paths collide.
	DuplicateURIErrorKind ErrorKind = "duplicate_uri"
	// UriOverlapErrorKind is raised when storage paths overlap ambiguously.
	UriOverlapErrorKind ErrorKind = "uri_overlap"
)

// ReclassError is the structured error type produced across the
// engine; it carries the (nodename, context-path, uri) breadcrumb
// trail described in spec.md §7.
type ReclassError struct {
	Kind     ErrorKind
	Message  string
	NodeName string
	Path     string
	URI      string
	Cause    error
}

func (e *ReclassError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.NodeName != "" {
		fmt.Fprintf(&b, " [node=%s]", e.NodeName)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " at %s", e.Path)
	}
	if e.URI != "" {
		fmt.Fprintf(&b, " (%s)", e.URI)
	}
	fmt.Fprintf(&b, ": %s", e.Message)
	return b.String()
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *ReclassError) Unwrap() error {
	return e.Cause
}

// WithBreadcrumb returns a copy of e annotated with the given node,
// path and uri, filling in only the fields that are still empty so
// that the innermost failure keeps its original context as it
// propagates outward.
func (e *ReclassError) WithBreadcrumb(node, path, uri string) *ReclassError {
	cp := *e
	if cp.NodeName == "" {
		cp.NodeName = node
	}
	if cp.Path == "" {
		cp.Path = path
	}
	if cp.URI == "" {
		cp.URI = uri
	}
	return &cp
}

func newError(kind ErrorKind, format string, args ...interface{}) *ReclassError {
	return &ReclassError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewParseError builds a ParseErrorKind error with the offending text and position.
func NewParseError(text string, pos int, message string) *ReclassError {
	return newError(ParseErrorKind, "%s (at offset %d in %q)", message, pos, text)
}

// NewResolveError builds a ResolveErrorKind error for a missing path.
func NewResolveError(path string) *ReclassError {
	e := newError(ResolveErrorKind, "path not found")
	e.Path = path
	return e
}

// NewInfiniteRecursionError builds an InfiniteRecursionErrorKind error.
func NewInfiniteRecursionError(path string) *ReclassError {
	e := newError(InfiniteRecursionErrorKind, "cycle detected while resolving")
	e.Path = path
	return e
}

// NewBadReferencesError builds a BadReferencesErrorKind error.
func NewBadReferencesError(path string, unresolved []string) *ReclassError {
	e := newError(BadReferencesErrorKind, "references remain unresolved: %s", strings.Join(unresolved, ", "))
	e.Path = path
	return e
}

// NewTypeMergeError builds a TypeMergeErrorKind error.
func NewTypeMergeError(path, over, under string) *ReclassError {
	e := newError(TypeMergeErrorKind, "cannot merge %s over %s", over, under)
	e.Path = path
	return e
}

// NewChangedConstantError builds a ChangedConstantErrorKind error naming both URIs involved.
func NewChangedConstantError(path, firstURI, secondURI string) *ReclassError {
	e := newError(ChangedConstantErrorKind, "constant set at %s cannot be overwritten by %s", firstURI, secondURI)
	e.Path = path
	return e
}

// NewClassNotFoundError builds a ClassNotFoundErrorKind error.
func NewClassNotFoundError(class, environment string) *ReclassError {
	return newError(ClassNotFoundErrorKind, "class %q not found in environment %q", class, environment)
}

// ResolveErrorList aggregates sibling Resolve errors for group_errors
// mode (spec.md §4.5, §7). It is backed by hashicorp/go-multierror,
// sorting the rendered messages the way the teacher's MultiError does,
// so independent interpolation failures across a tree are reported
// together instead of surfacing only the first one encountered.
type ResolveErrorList struct {
	merr *multierror.Error
}

// Append adds err to the list, flattening nested ResolveErrorLists.
func (l *ResolveErrorList) Append(err error) {
	if err == nil {
		return
	}
	if nested, ok := err.(*ResolveErrorList); ok {
		if nested.merr != nil {
			l.merr = multierror.Append(l.merr, nested.merr.Errors...)
		}
		return
	}
	l.merr = multierror.Append(l.merr, err)
}

// Count returns the number of collected errors.
func (l *ResolveErrorList) Count() int {
	if l.merr == nil {
		return 0
	}
	return len(l.merr.Errors)
}

// Empty reports whether the list has no errors, in which case it
// should not be raised.
func (l *ResolveErrorList) Empty() bool {
	return l.Count() == 0
}

func (l *ResolveErrorList) Error() string {
	if l.merr == nil {
		return "0 error(s) detected"
	}
	msgs := make([]string, 0, len(l.merr.Errors))
	for _, err := range l.merr.Errors {
		msgs = append(msgs, " - "+err.Error())
	}
	sort.Strings(msgs)
	return fmt.Sprintf("%d error(s) detected:\n%s", len(msgs), strings.Join(msgs, "\n"))
}

// AsError returns nil if the list is empty, itself otherwise; for use
// as the tail return value of functions that accumulate into a
// ResolveErrorList across a pass.
func (l *ResolveErrorList) AsError() error {
	if l.Empty() {
		return nil
	}
	return l
}

// Unwrap exposes the underlying errors for errors.Is/As across the list.
func (l *ResolveErrorList) Unwrap() []error {
	if l.merr == nil {
		return nil
	}
	return l.merr.Errors
}
