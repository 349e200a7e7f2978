package bytevm

// compileRange builds a sub-automaton rooted at root that matches
// exactly the fixed-width byte strings lexicographically within [lo, hi]
// (both ends inclusive -- an open endpoint in the rule-JSON source must
// already have been tightened to the adjacent closed value by
// Machine.Add's tightenOpenBounds, via
// number.ComparableNumber.Increment/Decrement, since
// this compiler only ever deals in closed bounds). lo and hi must be the
// same length; that length is shared by every numeric encoding
// (number.Len) and every CIDR bound encoding (number.CIDRLen), so a
// NUMERIC_RANGE and a "cidr" specification compile through the same
// code path.
func compileRange(root *ByteMap, lo, hi []byte, match *ByteMatch, ends map[*ByteMap][]*ByteMatch) {
	compileRangeAt(root, lo, hi, match, ends)
}

func compileRangeAt(state *ByteMap, lo, hi []byte, match *ByteMatch, ends map[*ByteMap][]*ByteMatch) {
	if len(lo) == 0 {
		ends[state] = append(ends[state], match)
		return
	}

	if lo[0] == hi[0] {
		next := stepOrCreate(state, lo[0])
		compileRangeAt(next, lo[1:], hi[1:], match, ends)
		return
	}

	// Exactly lo[0]: the remaining suffix must still satisfy >= lo[1:],
	// with no further upper constraint (the first byte already fixes
	// this path strictly below hi).
	loNext := stepOrCreate(state, lo[0])
	compileRangeAt(loNext, lo[1:], maxTail(len(lo)-1), match, ends)

	// Exactly hi[0]: symmetric, the remaining suffix must satisfy
	// <= hi[1:], no further lower constraint.
	hiNext := stepOrCreate(state, hi[0])
	compileRangeAt(hiNext, minTail(len(hi)-1), hi[1:], match, ends)

	// Strictly between lo[0] and hi[0]: the value is already decided,
	// whatever the remaining bytes are.
	if hi[0]-lo[0] > 1 {
		mid := middleRangeTarget(state, lo[0]+1, hi[0]-1)
		acceptAnyChain(mid, len(lo)-1, match, ends)
	}
}

// middleRangeTarget routes every byte in [lo, hi] at state to a single
// freshly allocated next state, merging with whatever transitions
// already occupy that byte range rather than replacing them.
func middleRangeTarget(state *ByteMap, lo, hi byte) *ByteMap {
	target := newByteMap()
	state.setRange(lo, hi, func(existing Transition) Transition {
		comp := &CompositeByteTransition{}
		comp.Add(existing)
		comp.Add(&SingleByteTransition{Next: target})
		return comp.Finalize()
	})
	return target
}

// acceptAnyChain builds a chain of width states, each accepting every
// byte unconditionally, and registers match at the end of the chain: any
// value that reaches state with width bytes still to come already
// satisfies the range, regardless of what those bytes are.
func acceptAnyChain(state *ByteMap, width int, match *ByteMatch, ends map[*ByteMap][]*ByteMatch) {
	for i := 0; i < width; i++ {
		next := newByteMap()
		state.setRange(0, 255, func(existing Transition) Transition {
			comp := &CompositeByteTransition{}
			comp.Add(existing)
			comp.Add(&SingleByteTransition{Next: next})
			return comp.Finalize()
		})
		state = next
	}
	ends[state] = append(ends[state], match)
}

func maxTail(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 0xFF
	}
	return b
}

func minTail(n int) []byte {
	return make([]byte, n) // zero-valued
}
