package namefsm

import (
	"github.com/coregx/ruler/bytevm"
	"github.com/coregx/ruler/internal/subrule"
	"github.com/coregx/ruler/pattern"
)

// InstallField finds or creates the byte machine for field on ns and
// returns it, creating an empty one on first use. Callers must hold
// whatever serializes writers across the whole name machine (package
// compiler's single-writer lock); NameState itself only guarantees that
// concurrent readers never observe a half-built map.
func (ns *NameState) InstallField(field string) *bytevm.Machine {
	if bm := ns.TransitionOn(field); bm != nil {
		return bm
	}
	bm := bytevm.NewMachine()
	ns.withData(func(d *nameStateData) {
		if _, exists := d.valueTransitions[field]; !exists {
			d.valueTransitions[field] = bm
		}
	})
	return ns.TransitionOn(field)
}

// StepOrCreate installs pattern p for field on ns, reusing a previously
// installed identical (field, pattern, scope) transition's target state
// and ByteMatch when one exists -- the structural sharing that lets
// unrelated rules with a common field+pattern prefix converge on the same
// downstream state. scope partitions this reuse: pass "" to allow sharing
// across every caller (package compiler's AdditionalNameStateReuse mode),
// or a caller-specific scope (e.g. the sub-rule ID) to force a private
// path. It reports whether a new target state was created.
func (ns *NameState) StepOrCreate(field string, p pattern.Pattern, scope string) (target *NameState, match *bytevm.ByteMatch, created bool) {
	key := targetKey(field, p.Key()) + "\x00" + scope
	if existing, ok := ns.snapshot().fieldPatternTargets[key]; ok {
		return existing.state, existing.match, false
	}

	bm := ns.InstallField(field)
	next := NewState()
	m, err := bm.Add(p, next)
	if err != nil {
		// ABSENT never reaches here: compiler routes it through
		// AddAbsentEdge instead, which never touches a byte machine.
		panic("namefsm: " + err.Error())
	}
	ns.withData(func(d *nameStateData) {
		d.fieldPatternTargets[key] = fieldTarget{state: next, match: m}
	})
	return next, m, true
}

// AddAbsentEdge installs an ABSENT transition for field on ns, reusing a
// previously created target when this exact (field, ABSENT, scope)
// combination was already installed. See StepOrCreate for scope's
// meaning.
func (ns *NameState) AddAbsentEdge(field, scope string) (target *NameState, created bool) {
	key := targetKey(field, pattern.NewAbsent().Key()) + "\x00" + scope
	if existing, ok := ns.snapshot().fieldPatternTargets[key]; ok {
		return existing.state, false
	}
	next := NewState()
	ns.withData(func(d *nameStateData) {
		d.absentEdges = append(d.absentEdges, absentEdge{field: field, next: next})
		d.fieldPatternTargets[key] = fieldTarget{state: next}
	})
	return next, true
}

// MarkTerminal records that sub-rule id completes on entering ns via p.
func (ns *NameState) MarkTerminal(p pattern.Pattern, id subrule.ID) {
	ns.withData(func(d *nameStateData) {
		d.terminalSubRules[p.Key()] = d.terminalSubRules[p.Key()].Add(id)
	})
}

// MarkNonTerminal records that sub-rule id merely passes through ns via p,
// continuing on to a later field.
func (ns *NameState) MarkNonTerminal(p pattern.Pattern, id subrule.ID) {
	ns.withData(func(d *nameStateData) {
		d.nonTerminalSubRules[p.Key()] = d.nonTerminalSubRules[p.Key()].Add(id)
	})
}

// UnmarkTerminal removes id from the terminal set registered for p,
// pruning the entry entirely once it empties out. It reports whether the
// (field, p) transition installed on ns has no remaining referents at all
// (terminal and non-terminal both empty), meaning the caller may tear
// down the underlying ByteMatch/absent edge.
func (ns *NameState) UnmarkTerminal(p pattern.Pattern, id subrule.ID) (orphaned bool) {
	ns.withData(func(d *nameStateData) {
		if s := d.terminalSubRules[p.Key()].Remove(id); len(s) == 0 {
			delete(d.terminalSubRules, p.Key())
		} else {
			d.terminalSubRules[p.Key()] = s
		}
	})
	d := ns.snapshot()
	return len(d.terminalSubRules[p.Key()]) == 0 && len(d.nonTerminalSubRules[p.Key()]) == 0
}

// UnmarkNonTerminal is UnmarkTerminal's counterpart for the non-terminal set.
func (ns *NameState) UnmarkNonTerminal(p pattern.Pattern, id subrule.ID) (orphaned bool) {
	ns.withData(func(d *nameStateData) {
		if s := d.nonTerminalSubRules[p.Key()].Remove(id); len(s) == 0 {
			delete(d.nonTerminalSubRules, p.Key())
		} else {
			d.nonTerminalSubRules[p.Key()] = s
		}
	})
	d := ns.snapshot()
	return len(d.terminalSubRules[p.Key()]) == 0 && len(d.nonTerminalSubRules[p.Key()]) == 0
}

// RemoveFieldPattern tombstones the ByteMatch (if any) installed for
// (field, p, scope) on ns and drops the bookkeeping entry, once the
// caller has established via UnmarkTerminal/UnmarkNonTerminal that
// nothing else references it.
func (ns *NameState) RemoveFieldPattern(field string, p pattern.Pattern, scope string) {
	key := targetKey(field, p.Key()) + "\x00" + scope
	target, ok := ns.snapshot().fieldPatternTargets[key]
	if !ok {
		return
	}
	if target.match != nil {
		if bm := ns.TransitionOn(field); bm != nil {
			bm.Remove(target.match)
		}
	}
	ns.withData(func(d *nameStateData) {
		delete(d.fieldPatternTargets, key)
		if target.match == nil {
			filtered := d.absentEdges[:0]
			for _, e := range d.absentEdges {
				if !(e.field == field && e.next == target.state) {
					filtered = append(filtered, e)
				}
			}
			d.absentEdges = filtered
		}
	})
}

func targetKey(field, patternKey string) string {
	return field + "\x00" + patternKey
}
