package compiler

import "github.com/coregx/ruler/namefsm"

// IsFieldUsed reports whether path is referenced by at least one compiled
// sub-rule anywhere in the name machine, as either a value transition or
// an ABSENT edge. This is the predicate root package ruler's
// RulesForJSONEvent wires into event.Load (event.FieldUsed, spec.md §6:
// "only field names referenced by at least one compiled rule are
// materialised"), so that an event carrying fields no rule cares about
// costs proportional to the rule set, not to the event.
func (m *Machine) IsFieldUsed(path string) bool {
	return fieldUsedFrom(m.root, path, make(map[*namefsm.NameState]bool))
}

// fieldUsedFrom walks the name machine reachable from state, using
// NameState.Fields/AbsentEdges/NextStatesFor -- the same graph-walk
// primitives the complexity evaluator uses -- guarding against revisiting
// a state two different paths converge on (StepOrCreate/AddAbsentEdge's
// structural sharing can make the graph a DAG rather than a tree).
func fieldUsedFrom(state *namefsm.NameState, path string, seen map[*namefsm.NameState]bool) bool {
	if seen[state] {
		return false
	}
	seen[state] = true

	fields := state.Fields()
	for _, f := range fields {
		if f == path {
			return true
		}
	}
	absentEdges := state.AbsentEdges()
	for _, e := range absentEdges {
		if e.AbsentField() == path {
			return true
		}
	}

	for _, f := range fields {
		for _, next := range state.NextStatesFor(f) {
			if fieldUsedFrom(next, path, seen) {
				return true
			}
		}
	}
	for _, e := range absentEdges {
		if fieldUsedFrom(e.Next(), path, seen) {
			return true
		}
	}
	return false
}
