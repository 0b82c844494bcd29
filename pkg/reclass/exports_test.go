package reclass

import "testing"

func TestExportsRenderAgainstExternalSelf(t *testing.T) {
	e := NewExports(DefaultSettings())
	if err := e.MergeRaw(map[string]interface{}{
		"role": "${my_role}",
	}, "node://web-01"); err != nil {
		t.Fatalf("MergeRaw: %v", err)
	}

	selfParams := map[string]interface{}{"my_role": "web"}
	rendered, err := e.Render(selfParams, nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if rendered["role"] != "web" {
		t.Errorf("expected the export to resolve against selfParams, got %v", rendered["role"])
	}
}

func TestExportsDoNotResolveAgainstOwnTree(t *testing.T) {
	e := NewExports(DefaultSettings())
	if err := e.MergeRaw(map[string]interface{}{
		"my_role": "db",
		"role":    "${my_role}",
	}, "node://web-01"); err != nil {
		t.Fatalf("MergeRaw: %v", err)
	}

	// selfParams deliberately omits my_role, so if Render consulted its
	// own tree instead of selfParams this would resolve to "db".
	_, err := e.Render(map[string]interface{}{}, nil)
	if err == nil {
		t.Error("expected resolution to fail when selfParams lacks the referenced key")
	}
}

func TestExportsMergeConcatenatesLikeParameters(t *testing.T) {
	a := NewExports(DefaultSettings())
	if err := a.MergeRaw(map[string]interface{}{"tags": []interface{}{"x"}}, "class://a"); err != nil {
		t.Fatal(err)
	}
	b := NewExports(DefaultSettings())
	if err := b.MergeRaw(map[string]interface{}{"tags": []interface{}{"y"}}, "class://b"); err != nil {
		t.Fatal(err)
	}
	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	rendered, err := a.Render(map[string]interface{}{}, nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	tags := rendered["tags"].([]interface{})
	if len(tags) != 2 || tags[0] != "x" || tags[1] != "y" {
		t.Errorf("expected tags to concatenate ['x','y'], got %v", tags)
	}
}
