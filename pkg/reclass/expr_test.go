package reclass

import "testing"

func TestParseQueryExprValueShape(t *testing.T) {
	q, err := ParseQueryExpr("exports:role")
	if err != nil {
		t.Fatal(err)
	}
	if q.Kind != QueryValue {
		t.Fatalf("expected QueryValue, got %v", q.Kind)
	}
	if q.ValuePathStr != "exports:role" {
		t.Errorf("unexpected value path %q", q.ValuePathStr)
	}
}

func TestParseQueryExprTestShape(t *testing.T) {
	q, err := ParseQueryExpr(`exports:role if exports:env == "prod"`)
	if err != nil {
		t.Fatal(err)
	}
	if q.Kind != QueryTest {
		t.Fatalf("expected QueryTest, got %v", q.Kind)
	}
	if len(q.Conditions) != 1 || q.Conditions[0].Op != "==" {
		t.Fatalf("unexpected conditions: %+v", q.Conditions)
	}
}

func TestParseQueryExprListTestShape(t *testing.T) {
	q, err := ParseQueryExpr(`if exports:env == "prod" and exports:role != "db"`)
	if err != nil {
		t.Fatal(err)
	}
	if q.Kind != QueryListTest {
		t.Fatalf("expected QueryListTest, got %v", q.Kind)
	}
	if len(q.Conditions) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(q.Conditions))
	}
	if q.Conditions[1].Conjunction != "and" {
		t.Errorf("expected the second condition joined by 'and', got %q", q.Conditions[1].Conjunction)
	}
}

func TestParseQueryExprFlags(t *testing.T) {
	q, err := ParseQueryExpr("exports:role +IgnoreErrors +AllEnvs")
	if err != nil {
		t.Fatal(err)
	}
	if !q.IgnoreErrors || !q.AllEnvs {
		t.Errorf("expected both flags set, got %+v", q)
	}
	if q.ValuePathStr != "exports:role" {
		t.Errorf("unexpected value path %q", q.ValuePathStr)
	}
}

func TestQueryExprEvaluateStringComparison(t *testing.T) {
	q, err := ParseQueryExpr(`exports:role if exports:env == "prod"`)
	if err != nil {
		t.Fatal(err)
	}
	row := map[string]interface{}{"env": "prod", "role": "web"}
	resolve := func(pathStr string) (interface{}, bool) {
		v, ok := row[pathStr[len("exports:"):]]
		return v, ok
	}
	ok, err := q.Evaluate(resolve)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("expected the condition to hold for env=prod")
	}

	row["env"] = "staging"
	ok, err = q.Evaluate(resolve)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected the condition not to hold for env=staging")
	}
}

func TestQueryExprEvaluateMissingPathFails(t *testing.T) {
	q, err := ParseQueryExpr(`exports:role if exports:env == "prod"`)
	if err != nil {
		t.Fatal(err)
	}
	resolve := func(pathStr string) (interface{}, bool) { return nil, false }
	ok, err := q.Evaluate(resolve)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected a missing condition path to make the row fail")
	}
}

func TestParseQueryExprRejectsEmptyBody(t *testing.T) {
	if _, err := ParseQueryExpr("   "); err == nil {
		t.Error("expected an error for an empty query body")
	}
}

func TestParseQueryExprRejectsBadOperator(t *testing.T) {
	if _, err := ParseQueryExpr(`exports:role if exports:env >< "prod"`); err == nil {
		t.Error("expected an error for an unsupported operator")
	}
}
