package reclass

import "testing"

func TestParseDocumentFullShape(t *testing.T) {
	raw := map[string]interface{}{
		"classes":      []interface{}{"role.web", "role.base"},
		"applications": []interface{}{"nginx"},
		"parameters":   map[string]interface{}{"port": 80},
		"exports":      map[string]interface{}{"role": "web"},
		"environment":  "prod",
	}
	doc, err := ParseDocument(raw)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	if len(doc.Classes) != 2 || doc.Classes[0] != "role.web" {
		t.Errorf("unexpected classes: %v", doc.Classes)
	}
	if len(doc.Applications) != 1 || doc.Applications[0] != "nginx" {
		t.Errorf("unexpected applications: %v", doc.Applications)
	}
	if doc.Parameters["port"] != 80 {
		t.Errorf("unexpected parameters: %v", doc.Parameters)
	}
	if doc.Exports["role"] != "web" {
		t.Errorf("unexpected exports: %v", doc.Exports)
	}
	if doc.Environment != "prod" {
		t.Errorf("unexpected environment: %q", doc.Environment)
	}
}

func TestParseDocumentToleratesMissingKeys(t *testing.T) {
	doc, err := ParseDocument(map[string]interface{}{})
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	if doc.Classes != nil || doc.Parameters != nil {
		t.Errorf("expected zero-value Document for an empty raw mapping, got %+v", doc)
	}
}

func TestParseDocumentRejectsWrongShapes(t *testing.T) {
	cases := map[string]map[string]interface{}{
		"classes not a list":      {"classes": "role.web"},
		"classes of non-strings":  {"classes": []interface{}{1, 2}},
		"parameters not a map":    {"parameters": []interface{}{1}},
		"environment not a string": {"environment": 5},
	}
	for name, raw := range cases {
		if _, err := ParseDocument(raw); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestEntityFromDocumentParsesNestedTrees(t *testing.T) {
	doc := &Document{
		Classes:     []string{"role.web"},
		Environment: "prod",
		Parameters:  map[string]interface{}{"port": 80},
		Exports:     map[string]interface{}{"role": "web"},
	}
	e, err := EntityFromDocument("web-01", "node://web-01", doc, DefaultSettings())
	if err != nil {
		t.Fatalf("EntityFromDocument: %v", err)
	}
	if e.Name != "web-01" || e.Environment != "prod" {
		t.Errorf("unexpected identity fields: %+v", e)
	}
	rendered, err := e.Parameters.Interpolate(nil)
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}
	if rendered["port"] != 80 {
		t.Errorf("expected parameters to carry through, got %v", rendered)
	}
}

func TestEntityMergeConcatenatesClassesInOrder(t *testing.T) {
	a := NewEntity("class://base", DefaultSettings())
	a.Classes = []string{"base"}
	b := NewEntity("class://web", DefaultSettings())
	b.Classes = []string{"web"}

	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(a.Classes) != 2 || a.Classes[0] != "base" || a.Classes[1] != "web" {
		t.Errorf("expected classes to concatenate in merge order, got %v", a.Classes)
	}
}

func TestEntityMergeNodeOwnOverridesWin(t *testing.T) {
	settings := DefaultSettings()
	cls := NewEntity("class://base", settings)
	if err := cls.Parameters.MergeRaw(map[string]interface{}{"port": 80}, "class://base"); err != nil {
		t.Fatal(err)
	}
	node := NewEntity("node://web-01", settings)
	node.Name = "web-01"
	if err := node.Parameters.MergeRaw(map[string]interface{}{"port": 8080}, "node://web-01"); err != nil {
		t.Fatal(err)
	}

	if err := cls.Merge(node); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if cls.Name != "web-01" {
		t.Errorf("expected the node's own name to win the merge, got %q", cls.Name)
	}
	rendered, err := cls.Parameters.Interpolate(nil)
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}
	if rendered["port"] != 8080 {
		t.Errorf("expected the node's own port to override the class's, got %v", rendered["port"])
	}
}

func TestEntityMergePreservesEmptyIdentityFields(t *testing.T) {
	a := NewEntity("class://base", DefaultSettings())
	a.Name = "kept"
	b := NewEntity("", DefaultSettings())
	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if a.Name != "kept" {
		t.Errorf("expected an empty incoming Name not to overwrite, got %q", a.Name)
	}
}
