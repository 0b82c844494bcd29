package reclass

import "fmt"

// Entity aggregates everything one class or node document contributes:
// its declared classes and applications, its parameter and export
// trees, and identifying metadata (spec.md §3 "Entity", §4.6).
type Entity struct {
	Name        string
	URI         string
	Environment string

	Classes      []string
	Applications []string

	Parameters *Parameters
	Exports    *Exports
}

// NewEntity returns an empty Entity bound to the given uri/settings.
func NewEntity(uri string, settings *Settings) *Entity {
	return &Entity{
		URI:        uri,
		Parameters: NewParameters(settings),
		Exports:    NewExports(settings),
	}
}

// Document is the decoded shape of one input YAML/JSON document
// (spec.md §6 "Input file format"): `classes`, `applications`,
// `parameters`, `exports`, `environment`.
type Document struct {
	Classes      []string
	Applications []string
	Parameters   map[string]interface{}
	Exports      map[string]interface{}
	Environment  string
}

// ParseDocument decodes a raw YAML-unmarshaled mapping into a Document,
// tolerating absent optional keys.
func ParseDocument(raw map[string]interface{}) (*Document, error) {
	d := &Document{}
	if v, ok := raw["classes"]; ok {
		list, err := toStringList(v)
		if err != nil {
			return nil, fmt.Errorf("classes: %w", err)
		}
		d.Classes = list
	}
	if v, ok := raw["applications"]; ok {
		list, err := toStringList(v)
		if err != nil {
			return nil, fmt.Errorf("applications: %w", err)
		}
		d.Applications = list
	}
	if v, ok := raw["parameters"]; ok {
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("parameters: expected a mapping")
		}
		d.Parameters = m
	}
	if v, ok := raw["exports"]; ok {
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("exports: expected a mapping")
		}
		d.Exports = m
	}
	if v, ok := raw["environment"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("environment: expected a string")
		}
		d.Environment = s
	}
	return d, nil
}

func toStringList(v interface{}) ([]string, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a sequence")
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		s, ok := e.(string)
		if !ok {
			return nil, fmt.Errorf("expected a sequence of strings")
		}
		out = append(out, s)
	}
	return out, nil
}

// EntityFromDocument builds an Entity from a decoded Document, parsing
// its parameters/exports trees under settings.
func EntityFromDocument(name, uri string, doc *Document, settings *Settings) (*Entity, error) {
	e := NewEntity(uri, settings)
	e.Name = name
	e.Environment = doc.Environment
	e.Classes = doc.Classes
	e.Applications = doc.Applications
	if doc.Parameters != nil {
		if err := e.Parameters.MergeRaw(doc.Parameters, uri); err != nil {
			return nil, err
		}
	}
	if doc.Exports != nil {
		if err := e.Exports.MergeRaw(doc.Exports, uri); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Merge merges other into e in place: classes and applications are
// concatenated in declaration order (dedup is the class-expansion
// driver's responsibility, spec.md §4.6 step 4), parameter and export
// trees deep-merge (spec.md §4.4), and identifying metadata is
// overwritten to other's values — "the node's own Entity merged last
// is how node-local overrides beat inherited ones" (spec.md §4.6 step 6).
func (e *Entity) Merge(other *Entity) error {
	e.Classes = append(e.Classes, other.Classes...)
	e.Applications = append(e.Applications, other.Applications...)
	if err := e.Parameters.Merge(other.Parameters); err != nil {
		return err
	}
	if err := e.Exports.Merge(other.Exports); err != nil {
		return err
	}
	if other.Name != "" {
		e.Name = other.Name
	}
	if other.URI != "" {
		e.URI = other.URI
	}
	if other.Environment != "" {
		e.Environment = other.Environment
	}
	return nil
}
