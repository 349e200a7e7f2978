// Package membership tracks which JSON array element a flattened event
// field came from, and enforces the array-consistency invariant: two
// fields contributing to one rule match must, for every shared enclosing
// array, agree on the element index (spec.md §3, §4.5).
package membership

import (
	"sort"
	"strconv"
	"strings"
)

// ArrayID identifies one JSON array instance within an event by its
// flattened path (e.g. "a.b" for the array at that path). Nested arrays
// get one ArrayID per enclosing array, not per element.
type ArrayID string

// Membership is an immutable record of the enclosing arrays of one event
// field and the element index within each.
type Membership struct {
	// indices maps ArrayID -> element index. nil/empty means the field is
	// not nested inside any array.
	indices map[ArrayID]int
}

// None is the membership of a field with no enclosing arrays.
var None = Membership{}

// With returns a new Membership extending m with one more enclosing array
// at the given index. m is never mutated.
func (m Membership) With(id ArrayID, index int) Membership {
	out := make(map[ArrayID]int, len(m.indices)+1)
	for k, v := range m.indices {
		out[k] = v
	}
	out[id] = index
	return Membership{indices: out}
}

// Index returns the element index recorded for id, and whether it was
// recorded at all.
func (m Membership) Index(id ArrayID) (int, bool) {
	if m.indices == nil {
		return 0, false
	}
	v, ok := m.indices[id]
	return v, ok
}

// Merge combines two Memberships accumulated along a traversal path. It
// returns the union of both, and ok=false if they disagree on the index
// of any array both have an opinion about -- the array-consistency
// invariant from spec.md §4.5.
func Merge(a, b Membership) (Membership, bool) {
	if len(a.indices) == 0 {
		return b, true
	}
	if len(b.indices) == 0 {
		return a, true
	}
	out := make(map[ArrayID]int, len(a.indices)+len(b.indices))
	for k, v := range a.indices {
		out[k] = v
	}
	for k, v := range b.indices {
		if existing, ok := out[k]; ok && existing != v {
			return Membership{}, false
		}
		out[k] = v
	}
	return Membership{indices: out}, true
}

// Fingerprint returns a deterministic string encoding of m's array/index
// pairs, used by package compiler's traversal engine to dedup (state,
// membership) pairs it has already explored.
func (m Membership) Fingerprint() string {
	if len(m.indices) == 0 {
		return ""
	}
	ids := make([]string, 0, len(m.indices))
	for id := range m.indices {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	var b strings.Builder
	for _, id := range ids {
		b.WriteString(id)
		b.WriteByte('=')
		b.WriteString(strconv.Itoa(m.indices[ArrayID(id)]))
		b.WriteByte(';')
	}
	return b.String()
}
