package bytevm

import (
	"fmt"
	"sync"

	"github.com/coregx/ruler/number"
	"github.com/coregx/ruler/pattern"
)

// Input is the byte-level view of one event field's value that Match
// walks. Raw is the exact byte sequence to feed the automaton: the
// JSON-quoted form for a Machine compiled over string-kind Patterns, or
// the fixed-width number.ComparableNumber / number.CIDRBound encoding
// for a Machine compiled over NUMERIC_EQ / NUMERIC_RANGE Patterns.
// IsString only matters to the WILDCARD half of an
// ANYTHING_BUT_WILDCARD complement, which (per pattern/value.go) never
// fires against a non-string value.
type Input struct {
	Raw      []byte
	IsString bool
}

// Machine is the compiled union of every Pattern registered against one
// field: a per-field byte-level NFA. Add/Remove are serialized by mu
// (spec.md's single-writer rule); Match takes no lock at all, since every
// mutation is published through ByteMap's atomic.Pointer swaps, which is
// the multi-reader half of the same rule.
type Machine struct {
	mu sync.Mutex

	forwardRoot *ByteMap // EXACT / PREFIX / WILDCARD / NUMERIC_EQ / NUMERIC_RANGE / *_IGNORE_CASE (non-suffix)
	suffixRoot  *ByteMap // SUFFIX / SUFFIX_IGNORE_CASE, walked over the reversed value

	forwardEnds map[*ByteMap][]*ByteMatch
	suffixEnds  map[*ByteMap][]*ByteMatch

	existsMatches []*ByteMatch
	denyEntries   []*denyEntry
	complements   []*complementEntry

	allMatches []*ByteMatch // every ByteMatch ever installed, for complexity analysis (package compiler)
}

// NewMachine returns an empty Machine ready to accept Patterns.
func NewMachine() *Machine {
	return &Machine{
		forwardRoot: newByteMap(),
		suffixRoot:  newByteMap(),
		forwardEnds: make(map[*ByteMap][]*ByteMatch),
		suffixEnds:  make(map[*ByteMap][]*ByteMatch),
	}
}

// UnsupportedPatternError reports a Pattern.Kind that this layer does not
// compile (ABSENT, handled by package namefsm over field presence rather
// than over any value byte machine).
type UnsupportedPatternError struct {
	Kind pattern.Kind
}

func (e *UnsupportedPatternError) Error() string {
	return fmt.Sprintf("bytevm: %s patterns are not compiled into a byte machine", e.Kind)
}

// Add compiles p into the machine and returns the ByteMatch that will be
// reported whenever a value satisfies p. target is stored on the match
// uninterpreted.
func (m *Machine) Add(p pattern.Pattern, target any) (*ByteMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	match := &ByteMatch{Pattern: p, Target: target}

	switch p.Kind() {
	case pattern.Exact:
		s, _ := p.StringValue()
		compileLiteralChain(m.forwardRoot, []byte(s), false, false, match, m.forwardEnds)
	case pattern.Prefix:
		s, _ := p.StringValue()
		compileLiteralChain(m.forwardRoot, []byte(s), false, true, match, m.forwardEnds)
	case pattern.EqualsIgnoreCase:
		s, _ := p.StringValue()
		compileLiteralChain(m.forwardRoot, []byte(s), true, false, match, m.forwardEnds)
	case pattern.PrefixIgnoreCase:
		s, _ := p.StringValue()
		compileLiteralChain(m.forwardRoot, []byte(s), true, true, match, m.forwardEnds)
	case pattern.Suffix:
		s, _ := p.StringValue()
		compileLiteralChain(m.suffixRoot, reverseBytes([]byte(s)), false, true, match, m.suffixEnds)
	case pattern.SuffixIgnoreCase:
		s, _ := p.StringValue()
		compileLiteralChain(m.suffixRoot, reverseBytes([]byte(s)), true, true, match, m.suffixEnds)
	case pattern.Wildcard:
		s, _ := p.StringValue()
		compileWildcard(m.forwardRoot, []byte(s), match, m.forwardEnds)
	case pattern.NumericEQ:
		enc, _ := p.NumericEQValue()
		compileLiteralChain(m.forwardRoot, enc.Bytes(), false, false, match, m.forwardEnds)
	case pattern.NumericRange:
		lo, hi, openLo, openHi, isCIDR, _ := p.Range()
		if !isCIDR {
			var err error
			lo, hi, err = tightenOpenBounds(lo, hi, openLo, openHi)
			if err != nil {
				return nil, err
			}
		}
		compileRange(m.forwardRoot, lo, hi, match, m.forwardEnds)
	case pattern.Exists:
		m.existsMatches = append(m.existsMatches, match)
	case pattern.AnythingBut, pattern.AnythingButIgnoreCase:
		strs, nums, isNumeric, _ := p.DenyList()
		values := strs
		if isNumeric {
			values = make([]string, len(nums))
			for i, n := range nums {
				values[i] = n.String()
			}
		}
		m.denyEntries = append(m.denyEntries, newDenyEntry(values, p.Kind() == pattern.AnythingButIgnoreCase, match))
	case pattern.AnythingButPrefix, pattern.AnythingButSuffix, pattern.AnythingButWildcard:
		m.complements = append(m.complements, &complementEntry{p: p, match: match})
	default:
		return nil, &UnsupportedPatternError{Kind: p.Kind()}
	}
	m.allMatches = append(m.allMatches, match)
	return match, nil
}

// WildcardPatternCount returns the number of live WILDCARD patterns
// installed in the machine, used by package compiler's
// MachineComplexityEvaluator as an upper bound on the per-field
// contribution to worst-case wildcard complexity (spec.md §4.7).
func (m *Machine) WildcardPatternCount() int {
	n := 0
	for _, match := range m.allMatches {
		if !match.IsRemoved() && match.Pattern.Kind() == pattern.Wildcard {
			n++
		}
	}
	return n
}

// Remove tombstones match: it stops being reported by future Match calls,
// but the graph structure it was woven into is left untouched.
func (m *Machine) Remove(match *ByteMatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	match.removed.Store(true)
}

// Match walks in through the compiled graph and returns every live match
// it satisfies.
func (m *Machine) Match(in Input) []*ByteMatch {
	var out []*ByteMatch
	out = append(out, m.existsMatches...)
	out = append(out, runNFA(m.forwardRoot, in.Raw, m.forwardEnds)...)
	out = append(out, runNFA(m.suffixRoot, reverseBytes(in.Raw), m.suffixEnds)...)
	out = append(out, m.matchDenylists(string(in.Raw))...)
	out = append(out, m.matchComplements(in)...)
	return liveOnly(out)
}

func (m *Machine) matchDenylists(raw string) []*ByteMatch {
	var out []*ByteMatch
	for _, e := range m.denyEntries {
		if e.excludes(raw) {
			out = append(out, e.match)
		}
	}
	return out
}

func (m *Machine) matchComplements(in Input) []*ByteMatch {
	if len(m.complements) == 0 {
		return nil
	}
	v := pattern.Value{Raw: string(in.Raw), IsString: in.IsString}
	var out []*ByteMatch
	for _, c := range m.complements {
		if c.p.Matches(v) {
			out = append(out, c.match)
		}
	}
	return out
}

func liveOnly(matches []*ByteMatch) []*ByteMatch {
	out := matches[:0]
	for _, m := range matches {
		if !m.IsRemoved() {
			out = append(out, m)
		}
	}
	return out
}

// runNFA walks raw byte by byte from root, following every simultaneously
// live state (the NFA-subset-construction traversal spec.md describes),
// and returns every match reported along the way plus every end-anchored
// match registered for a state the walk finishes on.
func runNFA(root *ByteMap, raw []byte, ends map[*ByteMap][]*ByteMatch) []*ByteMatch {
	current := []*ByteMap{root}
	var out []*ByteMatch
	for _, b := range raw {
		if len(current) == 0 {
			break
		}
		seen := make(map[*ByteMap]bool, len(current))
		var next []*ByteMap
		advance := func(st *ByteMap) {
			if !seen[st] {
				seen[st] = true
				next = append(next, st)
			}
		}
		for _, st := range current {
			switch v := st.transitionFor(b).(type) {
			case nil:
			case *SingleByteTransition:
				advance(v.Next)
			case *ShortcutTransition:
				out = append(out, v.Matches...)
			case *CompoundByteTransition:
				for _, ns := range v.NextStates() {
					advance(ns)
				}
				out = append(out, v.ShortcutMatches()...)
			}
		}
		current = next
	}
	for _, st := range current {
		out = append(out, ends[st]...)
	}
	return out
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return out
}

// tightenOpenBounds converts an open NUMERIC_RANGE endpoint into the
// adjacent closed one, since compileRange only ever compiles closed
// bounds. lo/hi must be number.Len-wide (never CIDR bounds, which are
// always closed by construction).
func tightenOpenBounds(lo, hi []byte, openLo, openHi bool) ([]byte, []byte, error) {
	if openLo {
		var c number.ComparableNumber
		copy(c[:], lo)
		next, ok := c.Increment()
		if !ok {
			return nil, nil, fmt.Errorf("bytevm: open lower bound has no representable successor")
		}
		lo = append([]byte(nil), next.Bytes()...)
	}
	if openHi {
		var c number.ComparableNumber
		copy(c[:], hi)
		prev, ok := c.Decrement()
		if !ok {
			return nil, nil, fmt.Errorf("bytevm: open upper bound has no representable predecessor")
		}
		hi = append([]byte(nil), prev.Bytes()...)
	}
	if compareBytes(lo, hi) > 0 {
		return nil, nil, fmt.Errorf("bytevm: open numeric range is empty after tightening")
	}
	return lo, hi, nil
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
