package bytevm

import (
	"sync/atomic"

	"github.com/coregx/ruler/pattern"
)

// ByteMatch marks that a Pattern is satisfied once the byte path leading
// to it has been taken. Target is an opaque payload the caller of Add
// supplies (package namefsm stores its own sub-rule bookkeeping here;
// bytevm never inspects it).
//
// Removed is checked by every traversal rather than by unlinking the
// match from the automaton's structure: Machine.Remove only has to flip
// one atomic flag, so a concurrent reader never observes a half-unlinked
// graph.
type ByteMatch struct {
	Pattern pattern.Pattern
	Target  any

	removed atomic.Bool
}

// IsRemoved reports whether Machine.Remove has tombstoned this match.
func (m *ByteMatch) IsRemoved() bool { return m.removed.Load() }

// Transition is the edge label a ByteMap entry maps a byte (or byte
// range) to. The three concrete kinds below are the byte-transition
// algebra the spec's ByteMachine is built from.
type Transition interface {
	transitionMarker()
}

// SingleByteTransition advances the walk to exactly one further state.
type SingleByteTransition struct {
	Next *ByteMap
}

func (*SingleByteTransition) transitionMarker() {}

// ShortcutTransition reports one or more matches the instant its byte is
// consumed, without requiring (or caring about) any further bytes of the
// value. It materializes a match without walking the rest of the byte
// path -- used once a pattern's outcome is already decided, e.g. a
// PREFIX's literal has fully matched, or a trailing '*' makes the rest of
// the value irrelevant.
type ShortcutTransition struct {
	Matches []*ByteMatch
}

func (*ShortcutTransition) transitionMarker() {}

// CompositeByteTransition is the mutable accumulator used while merging
// several transitions that happen to apply to the same input byte (most
// commonly a wildcard's self-loop sharing a byte with the literal segment
// that follows it). Call Finalize once every member is known to obtain
// the read-optimized, immutable view (CompoundByteTransition, or a bare
// Single/Shortcut when only one member survives).
type CompositeByteTransition struct {
	Singles   []*SingleByteTransition
	Shortcuts []*ShortcutTransition
}

// Add folds t into the accumulator. A nil t is a no-op, so callers can
// unconditionally Add the transition already occupying a ByteMap slot
// before merging in a new one.
func (c *CompositeByteTransition) Add(t Transition) {
	switch v := t.(type) {
	case *SingleByteTransition:
		c.Singles = append(c.Singles, v)
	case *ShortcutTransition:
		c.Shortcuts = append(c.Shortcuts, v)
	case *CompoundByteTransition:
		c.Singles = append(c.Singles, v.Singles...)
		c.Shortcuts = append(c.Shortcuts, v.Shortcuts...)
	}
}

// Finalize collapses the accumulator to the simplest equivalent
// Transition.
func (c *CompositeByteTransition) Finalize() Transition {
	switch {
	case len(c.Singles) == 0 && len(c.Shortcuts) == 0:
		return nil
	case len(c.Singles) == 1 && len(c.Shortcuts) == 0:
		return c.Singles[0]
	case len(c.Singles) == 0 && len(c.Shortcuts) == 1:
		return c.Shortcuts[0]
	default:
		return newCompoundByteTransition(c.Singles, c.Shortcuts)
	}
}

// CompoundByteTransition is the read-time NFA-subset view of several
// transitions that are simultaneously live on one byte: the walk must
// follow every member Single's Next state and collect every member
// Shortcut's matches. NextStates/ShortcutMatches cache the flattened view
// so a traversal never recomputes it per byte consumed.
type CompoundByteTransition struct {
	Singles   []*SingleByteTransition
	Shortcuts []*ShortcutTransition

	nextStates []*ByteMap
	matches    []*ByteMatch
}

func (*CompoundByteTransition) transitionMarker() {}

func newCompoundByteTransition(singles []*SingleByteTransition, shortcuts []*ShortcutTransition) *CompoundByteTransition {
	c := &CompoundByteTransition{Singles: singles, Shortcuts: shortcuts}
	for _, s := range singles {
		c.nextStates = append(c.nextStates, s.Next)
	}
	for _, s := range shortcuts {
		c.matches = append(c.matches, s.Matches...)
	}
	return c
}

// NextStates returns every state this compound transition advances to.
func (c *CompoundByteTransition) NextStates() []*ByteMap { return c.nextStates }

// ShortcutMatches returns every match this compound transition reports
// immediately, without consuming further bytes.
func (c *CompoundByteTransition) ShortcutMatches() []*ByteMatch { return c.matches }
