package ruler

import (
	"errors"
	"testing"
)

func contains(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}

func TestAddRuleAndMatch(t *testing.T) {
	r, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.AddRule("big-order", []byte(`{"total": [{"numeric": [">", 1000]}]}`)); err != nil {
		t.Fatal(err)
	}

	names, err := r.RulesForJSONEvent([]byte(`{"total": 1500, "currency": "USD"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !contains(names, "big-order") {
		t.Fatalf("RulesForJSONEvent = %v, want big-order", names)
	}

	names, err = r.RulesForJSONEvent([]byte(`{"total": 5}`))
	if err != nil {
		t.Fatal(err)
	}
	if contains(names, "big-order") {
		t.Fatalf("RulesForJSONEvent = %v, want no big-order", names)
	}
}

func TestAddRuleInvalidJSONReturnsWrappedError(t *testing.T) {
	r, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	err = r.AddRule("bad", []byte(`not json`))
	if !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("AddRule error = %v, want ErrInvalidRule", err)
	}
}

func TestRulesForJSONEventInvalidEvent(t *testing.T) {
	r, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.RulesForJSONEvent([]byte(`[1,2,3]`))
	if !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("RulesForJSONEvent error = %v, want ErrInvalidEvent", err)
	}
}

func TestAddRuleDuplicateReturnsWrappedError(t *testing.T) {
	r, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.AddRule("r1", []byte(`{"a": ["1"]}`)); err != nil {
		t.Fatal(err)
	}
	err = r.AddRule("r1", []byte(`{"a": ["2"]}`))
	if !errors.Is(err, ErrDuplicateRule) {
		t.Fatalf("AddRule duplicate error = %v, want ErrDuplicateRule", err)
	}
}

func TestAddRuleOverridingConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RuleOverriding = true
	r, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.AddRule("r1", []byte(`{"a": ["1"]}`)); err != nil {
		t.Fatal(err)
	}
	if err := r.AddRule("r1", []byte(`{"a": ["2"]}`)); err != nil {
		t.Fatal(err)
	}

	names, _ := r.RulesForJSONEvent([]byte(`{"a": "1"}`))
	if contains(names, "r1") {
		t.Fatalf("RulesForJSONEvent = %v, want no r1 for superseded value", names)
	}
	names, _ = r.RulesForJSONEvent([]byte(`{"a": "2"}`))
	if !contains(names, "r1") {
		t.Fatalf("RulesForJSONEvent = %v, want r1 for new value", names)
	}
}

func TestDeleteRuleThenStats(t *testing.T) {
	r, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.AddRule("r1", []byte(`{"a": ["1"]}`)); err != nil {
		t.Fatal(err)
	}
	r.DeleteRule("r1")

	names, _ := r.RulesForJSONEvent([]byte(`{"a": "1"}`))
	if contains(names, "r1") {
		t.Fatalf("RulesForJSONEvent = %v, want no r1 after delete", names)
	}
	if s := r.Stats(); s.RuleCount != 0 {
		t.Fatalf("Stats.RuleCount = %d, want 0", s.RuleCount)
	}
}

func TestRulesForJSONEventIgnoresFieldsNoRuleReferences(t *testing.T) {
	r, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.AddRule("r1", []byte(`{"color": ["red"]}`)); err != nil {
		t.Fatal(err)
	}

	names, err := r.RulesForJSONEvent([]byte(`{"color": "red", "noise": {"deeply": ["nested", 1, true, null]}}`))
	if err != nil {
		t.Fatal(err)
	}
	if !contains(names, "r1") {
		t.Fatalf("RulesForJSONEvent = %v, want r1 unaffected by an unreferenced field", names)
	}

	if r.machine.IsFieldUsed("noise.deeply") {
		t.Fatalf("IsFieldUsed(noise.deeply) = true, want false: no rule references it")
	}
}

func TestComplexityExceededReturnsWrappedError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxComplexity = 1
	r, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.AddRule("r1", []byte(`{"a": [{"wildcard": "x*"}]}`)); err != nil {
		t.Fatal(err)
	}
	err = r.AddRule("r2", []byte(`{"b": [{"wildcard": "y*"}, {"wildcard": "z*"}]}`))
	if !errors.Is(err, ErrComplexityExceeded) {
		t.Fatalf("AddRule error = %v, want ErrComplexityExceeded", err)
	}
}
