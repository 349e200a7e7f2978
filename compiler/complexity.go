package compiler

import "github.com/coregx/ruler/namefsm"

// ComplexityEvaluator estimates the worst-case number of wildcard
// patterns a single input value could cause to be simultaneously live
// during traversal (spec.md §4.7), used to refuse rule additions that
// would degrade match-time cost.
//
// The exact algorithm spec.md describes walks bytevm's NFA-internal
// live-state sets to find the true worst-case count. bytevm deliberately
// does not expose that internal state outside the package (ByteMap and
// the Transition algebra are package-private), so this evaluator computes
// a sound upper bound instead: the total number of WILDCARD patterns
// reachable from a NameState via any path, summed without attempting to
// model which ones can be simultaneously live for one input. Every real
// input's live-wildcard count is bounded by this figure, so capping on it
// never admits a rule whose true worst case exceeds MaxComplexity; it may
// reject some rules an exact evaluator would accept.
type ComplexityEvaluator struct {
	// MaxComplexity caps the traversal; once the running total exceeds
	// it, Evaluate returns early (the exact value beyond the cap is not
	// meaningful, only "exceeded" is).
	MaxComplexity int
}

// Evaluate returns the upper-bound wildcard complexity reachable from
// root. visited prevents double-counting a NameState reached via more
// than one path (structural sharing means this is common).
func (e ComplexityEvaluator) Evaluate(root *namefsm.NameState) int {
	visited := make(map[*namefsm.NameState]bool)
	return e.walk(root, visited, 0)
}

func (e ComplexityEvaluator) walk(state *namefsm.NameState, visited map[*namefsm.NameState]bool, acc int) int {
	if visited[state] || (e.MaxComplexity > 0 && acc > e.MaxComplexity) {
		return acc
	}
	visited[state] = true

	for _, field := range state.Fields() {
		bm := state.TransitionOn(field)
		if bm == nil {
			continue
		}
		acc += bm.WildcardPatternCount()
		for _, next := range state.NextStatesFor(field) {
			acc = e.walk(next, visited, acc)
		}
	}
	for _, edge := range state.AbsentEdges() {
		acc = e.walk(edge.Next(), visited, acc)
	}
	return acc
}
