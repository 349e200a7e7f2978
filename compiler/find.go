package compiler

import (
	"fmt"
	"net/netip"
	"sort"
	"strconv"
	"strings"

	"github.com/coregx/ruler/bytevm"
	"github.com/coregx/ruler/event"
	"github.com/coregx/ruler/internal/subrule"
	"github.com/coregx/ruler/membership"
	"github.com/coregx/ruler/namefsm"
	"github.com/coregx/ruler/number"
	"github.com/coregx/ruler/pattern"
)

// Find runs the traversal engine (spec.md §4.5) over fields and returns
// every rule name with at least one satisfied sub-rule. fields must
// already be sorted by Path (package event's Load does this).
func (m *Machine) Find(fields []event.Field) []string {
	m.stats.traversals.Add(1)

	presence := make(map[string][]membership.Membership, len(fields))
	for _, f := range fields {
		presence[f.Path] = append(presence[f.Path], f.Membership)
	}

	f := &finder{
		machine:  m,
		fields:   fields,
		presence: presence,
		visited:  make(map[string]bool),
		results:  make(map[string]bool),
	}
	f.step(0, m.root, nil, membership.None)

	names := make([]string, 0, len(f.results))
	for n := range f.results {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type finder struct {
	machine  *Machine
	fields   []event.Field
	presence map[string][]membership.Membership
	visited  map[string]bool
	results  map[string]bool
}

// step explores every way to satisfy sub-rules from state, considering
// event fields at index >= idx, given the sub-rules still possibly
// matching (cand; nil means "no narrowing yet") and the array membership
// accumulated so far along this path.
func (f *finder) step(idx int, state *namefsm.NameState, cand subrule.Set, mem membership.Membership) {
	f.machine.stats.stepsEvaluated.Add(1)

	fp := fingerprint(idx, state, cand, mem)
	if f.visited[fp] {
		return
	}
	f.visited[fp] = true

	absent := pattern.NewAbsent()
	for _, edge := range state.AbsentEdges() {
		if f.cancelsAbsence(edge.AbsentField(), mem) {
			continue
		}
		target := edge.Next()
		f.collect(intersectOrTake(cand, target.TerminalSubRules(absent)))
		nextCand, narrowed := intersectOrTakeReport(cand, target.NonTerminalSubRules(absent))
		if narrowed && len(nextCand) == 0 {
			f.machine.stats.candidatePrunes.Add(1)
			continue
		}
		f.step(idx, target, nextCand, mem)
	}

	for i := idx; i < len(f.fields); i++ {
		field := f.fields[i]
		bm := state.TransitionOn(field.Path)
		if bm == nil {
			continue
		}

		seen := make(map[*bytevm.ByteMatch]bool)
		for _, in := range valueInputs(field.Value) {
			for _, bmatch := range bm.Match(in) {
				if bmatch.IsRemoved() || seen[bmatch] {
					continue
				}
				seen[bmatch] = true

				target, ok := bmatch.Target.(*namefsm.NameState)
				if !ok {
					continue
				}
				newMem, ok := membership.Merge(mem, field.Membership)
				if !ok {
					f.machine.stats.candidatePrunes.Add(1)
					continue
				}

				p := bmatch.Pattern
				f.collect(intersectOrTake(cand, target.TerminalSubRules(p)))

				nextCand, narrowed := intersectOrTakeReport(cand, target.NonTerminalSubRules(p))
				if narrowed && len(nextCand) == 0 {
					f.machine.stats.candidatePrunes.Add(1)
					continue
				}
				f.step(i+1, target, nextCand, newMem)
			}
		}
	}
}

// cancelsAbsence reports whether path is present in the event in a way
// consistent with mem -- the only way an ABSENT transition does not fire
// (spec.md §4.5's array-consistency-aware absence handling).
func (f *finder) cancelsAbsence(path string, mem membership.Membership) bool {
	for _, fm := range f.presence[path] {
		if _, ok := membership.Merge(mem, fm); ok {
			return true
		}
	}
	return false
}

func (f *finder) collect(ids subrule.Set) {
	for _, id := range ids {
		if name, ok := f.machine.OwnerOf(id); ok {
			f.results[name] = true
		}
	}
}

// intersectOrTake narrows cand by ids, or simply adopts ids when cand is
// the unset "no candidates yet" sentinel (the first step of a traversal).
func intersectOrTake(cand, ids subrule.Set) subrule.Set {
	if cand == nil {
		return ids
	}
	return subrule.Intersect(cand, ids)
}

// intersectOrTakeReport is intersectOrTake plus whether narrowing
// actually occurred (cand was non-nil), which matters for distinguishing
// "genuinely empty at the very first step" from "pruned by intersection".
func intersectOrTakeReport(cand, ids subrule.Set) (subrule.Set, bool) {
	if cand == nil {
		return ids, false
	}
	return subrule.Intersect(cand, ids), true
}

// valueInputs returns every byte-level encoding of v worth walking the
// field's byte machine with. A field's machine may hold patterns of more
// than one kind (a string EXACT pattern and a "cidr" NUMERIC_RANGE
// pattern can both target the same field name), and each kind compiles
// its operand into a distinct byte alphabet (quoted-string bytes,
// number.ComparableNumber bytes, number.CIDRBound bytes), so more than
// one walk may be needed to find every match a single value satisfies.
func valueInputs(v pattern.Value) []bytevm.Input {
	out := make([]bytevm.Input, 0, 2)
	if v.IsNumber {
		if enc, err := number.Encode(v.Number); err == nil {
			out = append(out, bytevm.Input{Raw: enc.Bytes(), IsString: false})
		}
	}
	if v.IsString {
		if s, err := strconv.Unquote(v.Raw); err == nil {
			if addr, err := netip.ParseAddr(s); err == nil {
				if bound, err := number.EncodeIP(addr); err == nil {
					out = append(out, bytevm.Input{Raw: bound.Bytes(), IsString: false})
				}
			}
		}
	}
	out = append(out, bytevm.Input{Raw: []byte(v.Raw), IsString: v.IsString})
	return out
}

// fingerprint builds a dedup key for (idx, state, cand, mem). Exact
// duplicate continuations are common when several sub-rules share a
// structural prefix; this trades a bit of string-building for never
// reprocessing an identical (position, state, candidate-set, membership)
// combination twice within one Find call.
func fingerprint(idx int, state *namefsm.NameState, cand subrule.Set, mem membership.Membership) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%p|", idx, state)
	for _, id := range cand {
		fmt.Fprintf(&b, "%d,", id)
	}
	b.WriteByte('|')
	b.WriteString(mem.Fingerprint())
	return b.String()
}
