// Package bytevm implements the per-field byte-level NFA (spec.md §4.2,
// §4.3): a ByteMachine compiles the Patterns registered for one field
// into a graph of ByteMaps connected by the byte-transition algebra in
// transition.go, and Match walks a value's bytes through that graph.
//
// Machine.Add/Remove serialize under one mutex (spec.md's single-writer
// rule); Match never takes that lock. Every mutation publishes its effect
// by storing a fresh slice into a ByteMap's atomic.Pointer, so a reader
// either sees the whole new table or the whole old one, never a partial
// rewrite -- the multi-reader half of the same rule.
package bytevm

import "sync/atomic"

// byteMapEntry is one partition of the 256 possible input bytes: every
// byte less than ceiling (and >= the previous entry's ceiling) maps to
// trans. The last entry's ceiling is always 256.
type byteMapEntry struct {
	ceiling int
	trans   Transition
}

// ByteMap is a ceiling-compressed byte dispatch table -- one state in the
// per-field automaton.
type ByteMap struct {
	entries atomic.Pointer[[]byteMapEntry]
}

func newByteMap() *ByteMap {
	bm := &ByteMap{}
	empty := []byteMapEntry{{ceiling: 256, trans: nil}}
	bm.entries.Store(&empty)
	return bm
}

// transitionFor returns the Transition registered for byte b, or nil.
func (bm *ByteMap) transitionFor(b byte) Transition {
	entries := *bm.entries.Load()
	lo, hi := 0, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if int(b) < entries[mid].ceiling {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	if lo >= len(entries) {
		return nil
	}
	return entries[lo].trans
}

// setRange rebuilds the ceiling table so every byte in [lo, hi] maps to
// merge(existing), where existing is whatever that byte mapped to before
// the call (nil if nothing). Unaffected entries are carried over
// untouched. The rebuilt slice is published in a single atomic store.
func (bm *ByteMap) setRange(lo, hi byte, merge func(existing Transition) Transition) {
	old := *bm.entries.Load()
	rangeLo, rangeHi := int(lo), int(hi)+1 // rangeHi exclusive

	var out []byteMapEntry
	floor := 0
	for _, e := range old {
		segStart, segEnd := floor, e.ceiling
		floor = e.ceiling
		if segEnd <= rangeLo || segStart >= rangeHi {
			out = append(out, e)
			continue
		}
		if segStart < rangeLo {
			out = append(out, byteMapEntry{ceiling: rangeLo, trans: e.trans})
		}
		newHi := segEnd
		if rangeHi < newHi {
			newHi = rangeHi
		}
		out = append(out, byteMapEntry{ceiling: newHi, trans: merge(e.trans)})
		if segEnd > rangeHi {
			out = append(out, byteMapEntry{ceiling: segEnd, trans: e.trans})
		}
	}
	out = coalesce(out)
	bm.entries.Store(&out)
}

// coalesce merges adjacent entries that ended up pointing at the
// identical Transition value, keeping the ceiling table minimal.
func coalesce(entries []byteMapEntry) []byteMapEntry {
	out := entries[:0:0]
	for _, e := range entries {
		if n := len(out); n > 0 && out[n-1].trans == e.trans {
			out[n-1].ceiling = e.ceiling
			continue
		}
		out = append(out, e)
	}
	return out
}
