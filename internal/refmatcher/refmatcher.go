// Package refmatcher is a brute-force, unoptimized reference
// implementation of rule matching, used only by tests as an independent
// oracle to cross-check the compiled namefsm/bytevm/compiler matcher
// against (spec.md §8's required differential-testing property). It does
// not touch namefsm or bytevm at all: every pattern is evaluated directly
// against event values via pattern.Pattern.Matches.
package refmatcher

import (
	"sort"

	"github.com/coregx/ruler/event"
	"github.com/coregx/ruler/membership"
	"github.com/coregx/ruler/pattern"
)

// RulesForEvent returns every rule name in rules with at least one
// sub-rule (conjunction) satisfied by fields, evaluated by exhaustive
// backtracking rather than a compiled automaton.
func RulesForEvent(rules map[string][]pattern.Conjunction, fields []event.Field) []string {
	byPath := make(map[string][]event.Field, len(fields))
	for _, f := range fields {
		byPath[f.Path] = append(byPath[f.Path], f)
	}

	var names []string
	for name, conjs := range rules {
		for _, conj := range conjs {
			if satisfies(conj, byPath) {
				names = append(names, name)
				break
			}
		}
	}
	sort.Strings(names)
	return names
}

func satisfies(conj pattern.Conjunction, byPath map[string][]event.Field) bool {
	fieldNames := make([]string, 0, len(conj))
	for f := range conj {
		fieldNames = append(fieldNames, f)
	}
	sort.Strings(fieldNames)
	return combine(conj, fieldNames, 0, membership.None, byPath)
}

// combine tries every occurrence of fieldNames[idx] in turn (backtracking
// on array-consistency conflicts), recursing once a consistent membership
// is found, until every field name has been accounted for.
func combine(conj pattern.Conjunction, fieldNames []string, idx int, mem membership.Membership, byPath map[string][]event.Field) bool {
	if idx == len(fieldNames) {
		return true
	}
	name := fieldNames[idx]
	patterns := conj[name]

	if isAbsent(patterns) {
		if !fieldPresent(name, mem, byPath) {
			return combine(conj, fieldNames, idx+1, mem, byPath)
		}
		return false
	}

	for _, occ := range byPath[name] {
		if !matchesAny(patterns, occ.Value) {
			continue
		}
		newMem, ok := membership.Merge(mem, occ.Membership)
		if !ok {
			continue
		}
		if combine(conj, fieldNames, idx+1, newMem, byPath) {
			return true
		}
	}
	return false
}

func isAbsent(patterns []pattern.Pattern) bool {
	return len(patterns) == 1 && patterns[0].Kind() == pattern.Absent
}

// fieldPresent reports whether name occurs in the event in a way
// consistent with mem -- the only condition under which an ABSENT
// constraint on name is not satisfied.
func fieldPresent(name string, mem membership.Membership, byPath map[string][]event.Field) bool {
	for _, occ := range byPath[name] {
		if _, ok := membership.Merge(mem, occ.Membership); ok {
			return true
		}
	}
	return false
}

func matchesAny(patterns []pattern.Pattern, v pattern.Value) bool {
	for _, p := range patterns {
		if p.Matches(v) {
			return true
		}
	}
	return false
}
