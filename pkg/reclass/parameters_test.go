package reclass

import "testing"

func mergeRawOrFatal(t *testing.T, p *Parameters, raw map[string]interface{}, uri string) {
	t.Helper()
	if err := p.MergeRaw(raw, uri); err != nil {
		t.Fatalf("MergeRaw(%s): %v", uri, err)
	}
}

func TestParametersDeepMergeOrder(t *testing.T) {
	p := NewParameters(DefaultSettings())
	mergeRawOrFatal(t, p, map[string]interface{}{
		"db": map[string]interface{}{"host": "a", "port": 5432},
	}, "class://base")
	mergeRawOrFatal(t, p, map[string]interface{}{
		"db": map[string]interface{}{"host": "b"},
	}, "class://override")

	rendered, err := p.Interpolate(nil)
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}
	db := rendered["db"].(map[string]interface{})
	if db["host"] != "b" {
		t.Errorf("expected last writer to win on host, got %v", db["host"])
	}
	if db["port"] != 5432 {
		t.Errorf("expected port to survive untouched, got %v", db["port"])
	}
}

func TestParametersResolvesChainedReferences(t *testing.T) {
	p := NewParameters(DefaultSettings())
	mergeRawOrFatal(t, p, map[string]interface{}{
		"base_port": 8080,
		"port":      "${base_port}",
		"url":       "http://host:${port}/",
	}, "class://base")

	rendered, err := p.Interpolate(nil)
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}
	if rendered["port"] != 8080 {
		t.Errorf("expected port to resolve to 8080, got %v", rendered["port"])
	}
	if rendered["url"] != "http://host:8080/" {
		t.Errorf("expected a fully-resolved URL, got %v", rendered["url"])
	}
}

func TestParametersResolvesNestedReferences(t *testing.T) {
	p := NewParameters(DefaultSettings())
	mergeRawOrFatal(t, p, map[string]interface{}{
		"env":     "prod",
		"profile": "${${env}_profile}",
		"prod_profile": "heavy",
	}, "class://base")

	rendered, err := p.Interpolate(nil)
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}
	if rendered["profile"] != "heavy" {
		t.Errorf("expected the nested reference to resolve to 'heavy', got %v", rendered["profile"])
	}
}

func TestParametersReferenceIntoContainerReflattensNestedReferences(t *testing.T) {
	for i := 0; i < 20; i++ {
		p := NewParameters(DefaultSettings())
		mergeRawOrFatal(t, p, map[string]interface{}{
			"alias": "${base}",
			"base":  map[string]interface{}{"host": "${fqdn}"},
			"fqdn":  "h1",
		}, "class://base")

		rendered, err := p.Interpolate(nil)
		if err != nil {
			t.Fatalf("Interpolate (run %d): %v", i, err)
		}
		alias, ok := rendered["alias"].(map[string]interface{})
		if !ok {
			t.Fatalf("run %d: expected alias to resolve to a map, got %#v", i, rendered["alias"])
		}
		if alias["host"] != "h1" {
			t.Fatalf("run %d: expected alias.host to pick up the nested reference's resolved value, got %v", i, alias["host"])
		}
	}
}

func TestParametersDetectsDirectCycle(t *testing.T) {
	settings := DefaultSettings()
	settings.GroupErrors = false
	p := NewParameters(settings)
	mergeRawOrFatal(t, p, map[string]interface{}{
		"a": "${b}",
		"b": "${a}",
	}, "class://base")

	_, err := p.Interpolate(nil)
	if err == nil {
		t.Fatal("expected a cycle to be detected")
	}
	re, ok := err.(*ReclassError)
	if !ok || re.Kind != InfiniteRecursionErrorKind {
		t.Fatalf("expected InfiniteRecursionErrorKind, got %#v", err)
	}
}

func TestParametersGroupErrorsAggregatesIndependentFailures(t *testing.T) {
	settings := DefaultSettings()
	settings.GroupErrors = true
	p := NewParameters(settings)
	mergeRawOrFatal(t, p, map[string]interface{}{
		"a": "${missing_one}",
		"b": "${missing_two}",
	}, "class://base")

	_, err := p.Interpolate(nil)
	if err == nil {
		t.Fatal("expected both unresolved references to surface as errors")
	}
	rel, ok := err.(*ResolveErrorList)
	if !ok {
		t.Fatalf("expected a *ResolveErrorList, got %T", err)
	}
	if rel.Count() != 2 {
		t.Errorf("expected 2 aggregated errors, got %d: %v", rel.Count(), rel)
	}
}

func TestParametersSingleErrorModeStopsAtFirstFailure(t *testing.T) {
	settings := DefaultSettings()
	settings.GroupErrors = false
	p := NewParameters(settings)
	mergeRawOrFatal(t, p, map[string]interface{}{
		"a": "${missing_one}",
		"b": "${missing_two}",
	}, "class://base")

	_, err := p.Interpolate(nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := err.(*ResolveErrorList); ok {
		t.Error("expected a single error, not an aggregated list, in non-grouped mode")
	}
}

func TestParametersConstantSurvivesLaterMerge(t *testing.T) {
	p := NewParameters(DefaultSettings())
	mergeRawOrFatal(t, p, map[string]interface{}{"=region": "us-east-1"}, "class://base")
	if err := p.MergeRaw(map[string]interface{}{"region": "eu-west-1"}, "class://override"); err == nil {
		t.Fatal("expected merging over a constant to fail")
	}
}

func TestParametersNonStrictConstantSurvivesAllLaterMerges(t *testing.T) {
	settings := DefaultSettings()
	settings.StrictConstantParameters = false
	p := NewParameters(settings)
	mergeRawOrFatal(t, p, map[string]interface{}{"one": map[string]interface{}{"a": 1}}, "class://one")
	mergeRawOrFatal(t, p, map[string]interface{}{"one": map[string]interface{}{"=a": 2}}, "class://two")
	mergeRawOrFatal(t, p, map[string]interface{}{"one": map[string]interface{}{"a": 3}}, "class://three")

	rendered, err := p.Interpolate(nil)
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}
	one := rendered["one"].(map[string]interface{})
	if one["a"] != 2 {
		t.Errorf("expected the constant value to survive every later merge, got %v", one["a"])
	}
}
