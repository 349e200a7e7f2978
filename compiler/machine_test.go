package compiler

import (
	"testing"

	"github.com/coregx/ruler/event"
	"github.com/coregx/ruler/pattern"
)

func mustRule(t *testing.T, m *Machine, name string, ruleJSON string) {
	t.Helper()
	conjs, err := pattern.ParseRule([]byte(ruleJSON))
	if err != nil {
		t.Fatalf("ParseRule(%s): %v", name, err)
	}
	if err := m.AddRule(name, conjs); err != nil {
		t.Fatalf("AddRule(%s): %v", name, err)
	}
}

func mustFind(t *testing.T, m *Machine, eventJSON string) []string {
	t.Helper()
	fields, err := event.Load([]byte(eventJSON), event.UseAllFields)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m.Find(fields)
}

func contains(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}

func TestAddRuleAndFindExactMatch(t *testing.T) {
	m, err := NewMachine(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	mustRule(t, m, "r1", `{"color": ["red"]}`)

	got := mustFind(t, m, `{"color": "red", "size": "xl"}`)
	if !contains(got, "r1") {
		t.Fatalf("Find = %v, want r1", got)
	}

	got = mustFind(t, m, `{"color": "blue"}`)
	if contains(got, "r1") {
		t.Fatalf("Find = %v, want no r1", got)
	}
}

func TestFindRequiresAllFieldsOfAConjunction(t *testing.T) {
	m, err := NewMachine(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	mustRule(t, m, "r1", `{"color": ["red"], "size": ["xl"]}`)

	if got := mustFind(t, m, `{"color": "red"}`); contains(got, "r1") {
		t.Fatalf("Find = %v, want no r1 (size missing)", got)
	}
	if got := mustFind(t, m, `{"color": "red", "size": "xl"}`); !contains(got, "r1") {
		t.Fatalf("Find = %v, want r1", got)
	}
}

func TestFindOrExpandsIntoSubRules(t *testing.T) {
	m, err := NewMachine(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	mustRule(t, m, "r1", `{"color": ["red", "blue"]}`)

	for _, c := range []string{"red", "blue"} {
		if got := mustFind(t, m, `{"color": "`+c+`"}`); !contains(got, "r1") {
			t.Fatalf("Find(color=%s) = %v, want r1", c, got)
		}
	}
	if got := mustFind(t, m, `{"color": "green"}`); contains(got, "r1") {
		t.Fatalf("Find(color=green) = %v, want no r1", got)
	}
}

func TestDeleteRuleRemovesMatches(t *testing.T) {
	m, err := NewMachine(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	mustRule(t, m, "r1", `{"color": ["red"]}`)
	if got := mustFind(t, m, `{"color": "red"}`); !contains(got, "r1") {
		t.Fatalf("Find = %v, want r1 before delete", got)
	}

	m.DeleteRule("r1")
	if got := mustFind(t, m, `{"color": "red"}`); contains(got, "r1") {
		t.Fatalf("Find = %v, want no r1 after delete", got)
	}
	if s := m.Stats(); s.RuleCount != 0 || s.SubRuleCount != 0 {
		t.Fatalf("Stats = %+v, want zeroed counters", s)
	}
}

func TestAddRuleDuplicateNameRejectedByDefault(t *testing.T) {
	m, err := NewMachine(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	mustRule(t, m, "r1", `{"color": ["red"]}`)

	conjs, _ := pattern.ParseRule([]byte(`{"color": ["blue"]}`))
	err = m.AddRule("r1", conjs)
	if _, ok := err.(*DuplicateRuleError); !ok {
		t.Fatalf("AddRule duplicate = %v, want *DuplicateRuleError", err)
	}
	if got := mustFind(t, m, `{"color": "red"}`); !contains(got, "r1") {
		t.Fatalf("Find = %v, want r1 unaffected by rejected duplicate", got)
	}
}

func TestAddRuleOverridingReplacesSubRules(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RuleOverriding = true
	m, err := NewMachine(cfg)
	if err != nil {
		t.Fatal(err)
	}
	mustRule(t, m, "r1", `{"color": ["red"]}`)
	mustRule(t, m, "r1", `{"color": ["blue"]}`)

	if got := mustFind(t, m, `{"color": "red"}`); contains(got, "r1") {
		t.Fatalf("Find = %v, want no r1 for superseded pattern", got)
	}
	if got := mustFind(t, m, `{"color": "blue"}`); !contains(got, "r1") {
		t.Fatalf("Find = %v, want r1 for new pattern", got)
	}
}

func TestAddRuleComplexityExceededLeavesMachineUnchanged(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxComplexity = 1
	m, err := NewMachine(cfg)
	if err != nil {
		t.Fatal(err)
	}
	mustRule(t, m, "r1", `{"color": [{"wildcard": "re*"}]}`)

	conjs, _ := pattern.ParseRule([]byte(`{"size": [{"wildcard": "x*"}, {"wildcard": "y*"}]}`))
	err = m.AddRule("r2", conjs)
	if _, ok := err.(*ComplexityExceededError); !ok {
		t.Fatalf("AddRule over-complex = %v, want *ComplexityExceededError", err)
	}

	if got := mustFind(t, m, `{"size": "xl"}`); contains(got, "r2") {
		t.Fatalf("Find = %v, want no r2 after rejected rule", got)
	}
	if s := m.Stats(); s.RuleCount != 1 {
		t.Fatalf("Stats.RuleCount = %d, want 1 (only r1 committed)", s.RuleCount)
	}
}

func TestFindNumericRange(t *testing.T) {
	m, err := NewMachine(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	mustRule(t, m, "r1", `{"age": [{"numeric": [">=", 18, "<", 65]}]}`)

	if got := mustFind(t, m, `{"age": 30}`); !contains(got, "r1") {
		t.Fatalf("Find(age=30) = %v, want r1", got)
	}
	if got := mustFind(t, m, `{"age": 65}`); contains(got, "r1") {
		t.Fatalf("Find(age=65) = %v, want no r1 (open upper bound)", got)
	}
	if got := mustFind(t, m, `{"age": 10}`); contains(got, "r1") {
		t.Fatalf("Find(age=10) = %v, want no r1", got)
	}
}

func TestFindAnythingBut(t *testing.T) {
	m, err := NewMachine(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	mustRule(t, m, "r1", `{"status": [{"anything-but": ["closed", "archived"]}]}`)

	if got := mustFind(t, m, `{"status": "open"}`); !contains(got, "r1") {
		t.Fatalf("Find(status=open) = %v, want r1", got)
	}
	if got := mustFind(t, m, `{"status": "closed"}`); contains(got, "r1") {
		t.Fatalf("Find(status=closed) = %v, want no r1", got)
	}
}

func TestFindAbsentField(t *testing.T) {
	m, err := NewMachine(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	mustRule(t, m, "r1", `{"optional": [{"exists": false}]}`)

	if got := mustFind(t, m, `{"color": "red"}`); !contains(got, "r1") {
		t.Fatalf("Find without optional = %v, want r1", got)
	}
	if got := mustFind(t, m, `{"color": "red", "optional": "set"}`); contains(got, "r1") {
		t.Fatalf("Find with optional present = %v, want no r1", got)
	}
}

func TestFindArrayConsistency(t *testing.T) {
	m, err := NewMachine(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	mustRule(t, m, "r1", `{"items.name": ["shirt"], "items.color": ["red"]}`)

	consistent := `{"items": [{"name": "shirt", "color": "red"}]}`
	if got := mustFind(t, m, consistent); !contains(got, "r1") {
		t.Fatalf("Find(same element) = %v, want r1", got)
	}

	inconsistent := `{"items": [{"name": "shirt", "color": "blue"}, {"name": "pants", "color": "red"}]}`
	if got := mustFind(t, m, inconsistent); contains(got, "r1") {
		t.Fatalf("Find(different elements) = %v, want no r1 (array-consistency violated)", got)
	}
}
