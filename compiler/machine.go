// Package compiler implements the rule compiler and traversal engine
// (spec.md §4.5-§4.7): staged/transactional rule addition and deletion
// over a namefsm.Graph, and rulesForEvent's step-queue traversal with
// candidate sub-rule intersection and array-consistency checking.
package compiler

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/coregx/ruler/internal/subrule"
	"github.com/coregx/ruler/namefsm"
	"github.com/coregx/ruler/pattern"
)

// Machine is the compiled matcher: the name-machine graph plus the
// bookkeeping needed to add and remove rules by name. AddRule/DeleteRule
// are serialized by mu (spec.md §5's single-writer rule); Find takes no
// lock, relying entirely on namefsm/bytevm's atomic-pointer publication
// for lock-free reads.
type Machine struct {
	cfg  Config
	root *namefsm.NameState

	mu     sync.Mutex // serializes AddRule/DeleteRule
	nextID atomic.Uint64
	stats  statsCounters

	// owners maps a sub-rule ID to its rule name. Published via
	// atomic.Pointer so Find never takes mu: every mutation builds a
	// replacement map and swaps it in, the same discipline bytevm and
	// namefsm use one level down.
	owners atomic.Pointer[map[subrule.ID]string]

	// ruleSteps records, per rule name, enough information to undo every
	// sub-rule's compilation during DeleteRule: the exact path of
	// (source, target, field, pattern, terminal) steps taken while
	// installing it. Only the writer (under mu) touches this.
	ruleSteps map[string][]compiledSubRule
}

type compiledSubRule struct {
	id    subrule.ID
	steps []subRuleStep
}

type subRuleStep struct {
	source   *namefsm.NameState
	target   *namefsm.NameState
	field    string
	pattern  pattern.Pattern
	terminal bool
}

// NewMachine returns an empty Machine governed by cfg.
func NewMachine(cfg Config) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Machine{
		cfg:       cfg,
		root:      namefsm.NewState(),
		ruleSteps: make(map[string][]compiledSubRule),
	}
	empty := map[subrule.ID]string{}
	m.owners.Store(&empty)
	return m, nil
}

// Stats returns a point-in-time snapshot of the machine's counters.
func (m *Machine) Stats() Stats { return m.stats.snapshot() }

// Root exposes the name machine's root state, used by Find and by tests
// that want to drive traversal directly.
func (m *Machine) Root() *namefsm.NameState { return m.root }

// scopeFor returns the structural-sharing scope string StepOrCreate and
// AddAbsentEdge should use for a given sub-rule ID, honoring
// Config.AdditionalNameStateReuse.
func (m *Machine) scopeFor(id subrule.ID) string {
	if m.cfg.AdditionalNameStateReuse {
		return ""
	}
	return fmt.Sprintf("%d", id)
}

// AddRule compiles every sub-rule (disjunct) in conjunctions and installs
// it under name. If name already exists, behavior depends on
// Config.RuleOverriding: replace the rule's sub-rules, or report
// DuplicateRuleError leaving the machine unchanged.
//
// Compilation is staged: every namefsm mutation for every sub-rule is
// performed optimistically, but only after every sub-rule has been
// validated (complexity checked) is the rule considered committed; on any
// validation failure the already-installed structural edges are left in
// place (they are pure additions, harmless until referenced) and the
// partially built compiledSubRule records are unwound via the same
// deletion path DeleteRule uses, so the observable rule set is unchanged.
func (m *Machine) AddRule(name string, conjunctions []pattern.Conjunction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.ruleSteps[name]
	if exists && !m.cfg.RuleOverriding {
		return &DuplicateRuleError{Name: name}
	}

	var compiled []compiledSubRule
	for _, conj := range conjunctions {
		id := subrule.ID(m.nextID.Add(1))
		steps := m.compileSubRule(id, conj)
		compiled = append(compiled, compiledSubRule{id: id, steps: steps})
	}

	if m.cfg.MaxComplexity > 0 {
		got := (ComplexityEvaluator{MaxComplexity: m.cfg.MaxComplexity}).Evaluate(m.root)
		if got > m.cfg.MaxComplexity {
			for _, cr := range compiled {
				m.unwindSubRule(cr)
			}
			return &ComplexityExceededError{Name: name, Complexity: got, Max: m.cfg.MaxComplexity}
		}
	}

	if exists {
		m.deleteRuleLocked(name)
	}
	m.ruleSteps[name] = compiled
	m.publishOwner(name, compiled)
	m.stats.ruleCount.Add(1)
	m.stats.subRuleCount.Add(uint64(len(compiled)))
	return nil
}

func (m *Machine) publishOwner(name string, compiled []compiledSubRule) {
	cur := *m.owners.Load()
	next := make(map[subrule.ID]string, len(cur)+len(compiled))
	for k, v := range cur {
		next[k] = v
	}
	for _, cr := range compiled {
		next[cr.id] = name
	}
	m.owners.Store(&next)
}

func (m *Machine) unpublishOwners(ids []subrule.ID) {
	cur := *m.owners.Load()
	next := make(map[subrule.ID]string, len(cur))
	for k, v := range cur {
		next[k] = v
	}
	for _, id := range ids {
		delete(next, id)
	}
	m.owners.Store(&next)
}

// compileSubRule walks conjunction's sorted field names from the root,
// installing every OR'd pattern per field, marking the destination state
// terminal (last field) or non-terminal (otherwise), per spec.md §4.6.
func (m *Machine) compileSubRule(id subrule.ID, conj pattern.Conjunction) []subRuleStep {
	fields := make([]string, 0, len(conj))
	for f := range conj {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var steps []subRuleStep
	m.compileField(id, conj, fields, 0, m.root, &steps)
	return steps
}

func (m *Machine) compileField(id subrule.ID, conj pattern.Conjunction, fields []string, idx int, state *namefsm.NameState, steps *[]subRuleStep) {
	field := fields[idx]
	terminal := idx == len(fields)-1
	scope := m.scopeFor(id)

	for _, p := range conj[field] {
		var target *namefsm.NameState
		if p.Kind() == pattern.Absent {
			target, _ = state.AddAbsentEdge(field, scope)
		} else {
			target, _, _ = state.StepOrCreate(field, p, scope)
		}

		if terminal {
			target.MarkTerminal(p, id)
		} else {
			target.MarkNonTerminal(p, id)
		}
		*steps = append(*steps, subRuleStep{source: state, target: target, field: field, pattern: p, terminal: terminal})

		if !terminal {
			m.compileField(id, conj, fields, idx+1, target, steps)
		}
	}
}

// DeleteRule removes every sub-rule registered for name, undoing exactly
// the mutations AddRule made. Deleting an unknown name is a no-op.
func (m *Machine) DeleteRule(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteRuleLocked(name)
}

func (m *Machine) deleteRuleLocked(name string) {
	compiled, ok := m.ruleSteps[name]
	if !ok {
		return
	}
	ids := make([]subrule.ID, 0, len(compiled))
	for _, cr := range compiled {
		m.unwindSubRule(cr)
		ids = append(ids, cr.id)
	}
	delete(m.ruleSteps, name)
	m.unpublishOwners(ids)
	m.stats.ruleCount.Add(^uint64(0))                        // -1
	m.stats.subRuleCount.Add(^uint64(len(compiled) - 1)) // -len(compiled)
}

// unwindSubRule removes one sub-rule's registrations, tearing down any
// (field, pattern) edge that becomes unreferenced as a result -- the
// "prune patterns whose sub-rule sets became empty" step of spec.md
// §4.6's deleteRule. A NameState that loses its last incoming edge simply
// becomes unreachable and is reclaimed by the garbage collector; no
// separate "prune empty states" pass is needed.
func (m *Machine) unwindSubRule(cr compiledSubRule) {
	scope := m.scopeFor(cr.id)
	for _, st := range cr.steps {
		var orphaned bool
		if st.terminal {
			orphaned = st.target.UnmarkTerminal(st.pattern, cr.id)
		} else {
			orphaned = st.target.UnmarkNonTerminal(st.pattern, cr.id)
		}
		if orphaned {
			st.source.RemoveFieldPattern(st.field, st.pattern, scope)
		}
	}
}

// OwnerOf returns the rule name that registered sub-rule id, and whether
// it is still live.
func (m *Machine) OwnerOf(id subrule.ID) (string, bool) {
	name, ok := (*m.owners.Load())[id]
	return name, ok
}
