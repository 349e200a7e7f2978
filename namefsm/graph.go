// Package namefsm implements the name machine (spec.md §4.4): the outer
// automaton whose nodes are keyed by event field name rather than by
// byte, with a per-field bytevm.Machine embedded on each outgoing edge.
//
// A NameState is reached either by a bytevm.ByteMatch's Target (set when
// package compiler installs a field pattern) or by an absentEdge (for
// ABSENT, which has no byte machine at all since it fires on a field's
// non-appearance). Both store a direct *NameState rather than an
// arena index: Go's garbage collector reclaims reference cycles on its
// own, so the teacher's StateID-into-a-slice indirection (needed in a
// language without a tracing collector) buys nothing here and would only
// complicate rule deletion, which wants states that are no longer
// reachable to simply become collectible.
package namefsm

import (
	"sync/atomic"

	"github.com/coregx/ruler/bytevm"
	"github.com/coregx/ruler/internal/subrule"
	"github.com/coregx/ruler/pattern"
)

// absentEdge is one ABSENT transition: if field is not present in the
// event, the traversal may follow next.
type absentEdge struct {
	field string
	next  *NameState
}

// nameStateData is the immutable snapshot a NameState publishes. Writers
// (serialized by package compiler's single-writer lock) build a modified
// copy and swap it in; readers load the current snapshot once per access
// and never observe a partially-built map.
type nameStateData struct {
	valueTransitions    map[string]*bytevm.Machine
	absentEdges         []absentEdge
	terminalSubRules    map[string]subrule.Set // keyed by pattern.Pattern.Key()
	nonTerminalSubRules map[string]subrule.Set
	fieldPatternTargets map[string]fieldTarget // keyed by field+"\x00"+pattern.Key()+"\x00"+scope, for structural sharing during compilation
}

// fieldTarget is what a (field, pattern) pair installed on a NameState
// resolves to: the downstream state reached and the ByteMatch (nil for
// ABSENT, which has no byte machine) that fires it.
type fieldTarget struct {
	state *NameState
	match *bytevm.ByteMatch
}

func emptyData() *nameStateData {
	return &nameStateData{
		valueTransitions:    map[string]*bytevm.Machine{},
		terminalSubRules:    map[string]subrule.Set{},
		nonTerminalSubRules: map[string]subrule.Set{},
		fieldPatternTargets: map[string]fieldTarget{},
	}
}

// NameState is one node of the name machine.
type NameState struct {
	data atomic.Pointer[nameStateData]
}

// NewState returns a freshly allocated, empty NameState. Package compiler
// calls this both for the graph's root and for every state created while
// installing a rule's field path.
func NewState() *NameState {
	ns := &NameState{}
	ns.data.Store(emptyData())
	return ns
}

func (ns *NameState) snapshot() *nameStateData { return ns.data.Load() }

// TransitionOn returns the byte machine installed for field, or nil.
func (ns *NameState) TransitionOn(field string) *bytevm.Machine {
	return ns.snapshot().valueTransitions[field]
}

// AbsentEdges returns every ABSENT transition registered on this state.
func (ns *NameState) AbsentEdges() []absentEdge { return ns.snapshot().absentEdges }

// Fields returns every field name with an outgoing byte-machine edge on
// this state, used by package compiler's complexity evaluator to walk
// the name machine without needing to know which fields a given rule set
// installed.
func (ns *NameState) Fields() []string {
	d := ns.snapshot()
	out := make([]string, 0, len(d.valueTransitions))
	for f := range d.valueTransitions {
		out = append(out, f)
	}
	return out
}

// NextStatesFor returns every distinct downstream NameState reachable
// from this state via field, across every pattern registered on it.
func (ns *NameState) NextStatesFor(field string) []*NameState {
	d := ns.snapshot()
	seen := make(map[*NameState]bool)
	var out []*NameState
	prefix := field + "\x00"
	for k, t := range d.fieldPatternTargets {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix && !seen[t.state] {
			seen[t.state] = true
			out = append(out, t.state)
		}
	}
	return out
}

// AbsentField returns the field name an absentEdge is keyed on.
func (e absentEdge) AbsentField() string { return e.field }

// Next returns the state an absentEdge leads to.
func (e absentEdge) Next() *NameState { return e.next }

// TerminalSubRules returns the sub-rules that complete on entering this
// state via p.
func (ns *NameState) TerminalSubRules(p pattern.Pattern) subrule.Set {
	return ns.snapshot().terminalSubRules[p.Key()]
}

// NonTerminalSubRules returns the sub-rules that merely pass through this
// state via p, continuing to a later field.
func (ns *NameState) NonTerminalSubRules(p pattern.Pattern) subrule.Set {
	return ns.snapshot().nonTerminalSubRules[p.Key()]
}

// withData clones the current snapshot's maps (shallow -- only the top
// level map is copied, entries are shared) and publishes the result.
// mutate is called with the clone before it is stored.
func (ns *NameState) withData(mutate func(*nameStateData)) {
	cur := ns.snapshot()
	next := &nameStateData{
		valueTransitions:    cloneMachines(cur.valueTransitions),
		absentEdges:         append([]absentEdge(nil), cur.absentEdges...),
		terminalSubRules:    cloneSubRuleSets(cur.terminalSubRules),
		nonTerminalSubRules: cloneSubRuleSets(cur.nonTerminalSubRules),
		fieldPatternTargets: cloneTargets(cur.fieldPatternTargets),
	}
	mutate(next)
	ns.data.Store(next)
}

func cloneMachines(m map[string]*bytevm.Machine) map[string]*bytevm.Machine {
	out := make(map[string]*bytevm.Machine, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneSubRuleSets(m map[string]subrule.Set) map[string]subrule.Set {
	out := make(map[string]subrule.Set, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneTargets(m map[string]fieldTarget) map[string]fieldTarget {
	out := make(map[string]fieldTarget, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
