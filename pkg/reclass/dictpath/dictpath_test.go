package dictpath

import "testing"

func TestParseSplitsOnDelimiter(t *testing.T) {
	p, err := Parse("a:b:c", ":")
	if err != nil {
		t.Fatal(err)
	}
	if got := p.Segments(); len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("unexpected segments: %v", got)
	}
}

func TestParseHandlesEscapedDelimiter(t *testing.T) {
	p, err := Parse(`a\:b:c`, ":")
	if err != nil {
		t.Fatal(err)
	}
	got := p.Segments()
	if len(got) != 2 || got[0] != "a:b" || got[1] != "c" {
		t.Errorf("expected the escaped delimiter to stay inside one segment, got %v", got)
	}
}

func TestStringReEscapesDelimiter(t *testing.T) {
	p := New([]string{"a:b", "c"}, ":")
	if got := p.String(); got != `a\:b:c` {
		t.Errorf("expected round-trip escaping, got %q", got)
	}
}

func TestKeyIsConstructionIndependent(t *testing.T) {
	a, err := Parse("a:b", ":")
	if err != nil {
		t.Fatal(err)
	}
	b := New([]string{"a", "b"}, ":")
	if a.Key() != b.Key() {
		t.Errorf("expected equal segments to produce equal keys: %q vs %q", a.Key(), b.Key())
	}
}

func TestPushAppendsWithoutMutatingOriginal(t *testing.T) {
	p := New([]string{"a"}, ":")
	child := p.Push("b")
	if p.Len() != 1 {
		t.Errorf("expected Push not to mutate the receiver, got len %d", p.Len())
	}
	if child.Len() != 2 {
		t.Errorf("expected the child to have 2 segments, got %d", child.Len())
	}
}

func TestIsAncestorOf(t *testing.T) {
	a := New([]string{"a"}, ":")
	ab := New([]string{"a", "b"}, ":")
	if !a.IsAncestorOf(ab) {
		t.Error("expected 'a' to be an ancestor of 'a:b'")
	}
	if ab.IsAncestorOf(a) {
		t.Error("did not expect 'a:b' to be an ancestor of 'a'")
	}
	if a.IsAncestorOf(a) {
		t.Error("a path must not be its own ancestor")
	}
}

func TestGetValueWalksMapsAndLists(t *testing.T) {
	root := map[string]interface{}{
		"servers": []interface{}{
			map[string]interface{}{"name": "web-01", "port": 80},
			map[string]interface{}{"name": "web-02", "port": 81},
		},
	}
	p := New([]string{"servers", "web-02", "port"}, ":")
	v, err := p.GetValue(root)
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if v != 81 {
		t.Errorf("expected 81, got %v", v)
	}
}

func TestGetValueByListIndex(t *testing.T) {
	root := map[string]interface{}{"items": []interface{}{"a", "b", "c"}}
	p := New([]string{"items", "1"}, ":")
	v, err := p.GetValue(root)
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if v != "b" {
		t.Errorf("expected 'b', got %v", v)
	}
}

func TestGetValueMissingKeyIsNotFoundError(t *testing.T) {
	root := map[string]interface{}{"a": 1}
	p := New([]string{"b"}, ":")
	_, err := p.GetValue(root)
	if _, ok := err.(NotFoundError); !ok {
		t.Fatalf("expected NotFoundError, got %T (%v)", err, err)
	}
}

func TestGetValueThroughScalarIsTypeMismatch(t *testing.T) {
	root := map[string]interface{}{"a": 1}
	p := New([]string{"a", "b"}, ":")
	_, err := p.GetValue(root)
	if _, ok := err.(TypeMismatchError); !ok {
		t.Fatalf("expected TypeMismatchError, got %T (%v)", err, err)
	}
}

func TestSetValueCreatesIntermediateMaps(t *testing.T) {
	root := map[string]interface{}{}
	p := New([]string{"a", "b", "c"}, ":")
	if err := p.SetValue(root, 42); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	v, err := p.GetValue(root)
	if err != nil {
		t.Fatalf("GetValue after SetValue: %v", err)
	}
	if v != 42 {
		t.Errorf("expected 42, got %v", v)
	}
}

func TestDeleteRemovesLeaf(t *testing.T) {
	root := map[string]interface{}{"a": map[string]interface{}{"b": 1}}
	p := New([]string{"a", "b"}, ":")
	if err := p.Delete(root); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := root["a"].(map[string]interface{})["b"]; ok {
		t.Error("expected 'b' to be removed")
	}
}
