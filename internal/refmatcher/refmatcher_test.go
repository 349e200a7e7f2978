package refmatcher

import (
	"sort"
	"testing"

	"github.com/coregx/ruler/compiler"
	"github.com/coregx/ruler/event"
	"github.com/coregx/ruler/pattern"
)

type ruleDef struct {
	name string
	json string
}

func buildBoth(t *testing.T, defs []ruleDef) (*compiler.Machine, map[string][]pattern.Conjunction) {
	t.Helper()
	m, err := compiler.NewMachine(compiler.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	ref := make(map[string][]pattern.Conjunction, len(defs))
	for _, d := range defs {
		conjs, err := pattern.ParseRule([]byte(d.json))
		if err != nil {
			t.Fatalf("ParseRule(%s): %v", d.name, err)
		}
		if err := m.AddRule(d.name, conjs); err != nil {
			t.Fatalf("AddRule(%s): %v", d.name, err)
		}
		ref[d.name] = conjs
	}
	return m, ref
}

func checkAgree(t *testing.T, m *compiler.Machine, ref map[string][]pattern.Conjunction, eventJSON string) {
	t.Helper()
	fields, err := event.Load([]byte(eventJSON), event.UseAllFields)
	if err != nil {
		t.Fatalf("Load(%s): %v", eventJSON, err)
	}
	got := m.Find(fields)
	want := RulesForEvent(ref, fields)
	sort.Strings(got)
	sort.Strings(want)
	if !equal(got, want) {
		t.Fatalf("event %s: compiled Find = %v, refmatcher = %v", eventJSON, got, want)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDifferentialBasicRules(t *testing.T) {
	defs := []ruleDef{
		{"exact", `{"color": ["red", "blue"]}`},
		{"prefix", `{"path": [{"prefix": "/api/"}]}`},
		{"numeric", `{"age": [{"numeric": [">=", 18, "<", 65]}]}`},
		{"anythingbut", `{"status": [{"anything-but": ["closed"]}]}`},
		{"absent", `{"optional": [{"exists": false}]}`},
		{"multi", `{"color": ["red"], "size": ["xl"]}`},
		{"or", `{"$or": [{"color": ["green"]}, {"size": ["s"]}]}`},
		{"arr", `{"items.name": ["shirt"], "items.color": ["red"]}`},
	}
	m, ref := buildBoth(t, defs)

	events := []string{
		`{"color": "red", "path": "/api/v1", "age": 30, "status": "open"}`,
		`{"color": "green", "size": "s"}`,
		`{"color": "purple", "size": "m", "optional": "present"}`,
		`{"age": 64, "status": "closed"}`,
		`{"items": [{"name": "shirt", "color": "red"}]}`,
		`{"items": [{"name": "shirt", "color": "blue"}, {"name": "pants", "color": "red"}]}`,
		`{}`,
	}
	for _, e := range events {
		checkAgree(t, m, ref, e)
	}
}

func TestDifferentialDeletedRuleAgrees(t *testing.T) {
	defs := []ruleDef{
		{"a", `{"x": ["1"]}`},
		{"b", `{"x": ["2"]}`},
	}
	m, ref := buildBoth(t, defs)
	m.DeleteRule("a")
	delete(ref, "a")

	checkAgree(t, m, ref, `{"x": "1"}`)
	checkAgree(t, m, ref, `{"x": "2"}`)
}
