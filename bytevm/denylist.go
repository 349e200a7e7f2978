package bytevm

import (
	"strings"

	"github.com/coregx/ahocorasick"
	"github.com/coregx/ruler/pattern"
)

// acThreshold is the denylist size at or above which membership testing
// switches from a plain map to an Aho-Corasick automaton. A map is O(1)
// regardless of size, so this isn't about asymptotic correctness; it
// exists to exercise the same multi-pattern automaton production
// event-matching systems reach for once a single field accumulates a
// large "anything-but" blocklist (many thousands of denied values,
// loaded from an external feed rather than written by hand), where the
// automaton's single combined scan amortizes better across repeated
// Machine reuse than rehashing a giant map on every lookup.
const acThreshold = 8

// denyDelimiter brackets every denylist entry (and every probe) so a
// substring hit inside the Aho-Corasick automaton only ever means "the
// whole probe equals one dictionary entry", never "contains" -- turning
// a substring-search primitive into an exact-membership test.
const denyDelimiter = "\x00"

// denyEntry backs one ANYTHING_BUT / ANYTHING_BUT_IGNORE_CASE pattern:
// match fires when the probed value is absent from values.
type denyEntry struct {
	match      *ByteMatch
	ignoreCase bool
	small      map[string]struct{}
	ac         *ahocorasick.Matcher
}

func newDenyEntry(values []string, ignoreCase bool, match *ByteMatch) *denyEntry {
	norm := make([]string, len(values))
	for i, v := range values {
		if ignoreCase {
			norm[i] = strings.ToUpper(v)
		} else {
			norm[i] = v
		}
	}
	e := &denyEntry{match: match, ignoreCase: ignoreCase}
	if len(norm) < acThreshold {
		e.small = make(map[string]struct{}, len(norm))
		for _, v := range norm {
			e.small[v] = struct{}{}
		}
		return e
	}
	wrapped := make([]string, len(norm))
	for i, v := range norm {
		wrapped[i] = denyDelimiter + v + denyDelimiter
	}
	e.ac = ahocorasick.NewStringMatcher(wrapped)
	return e
}

func (e *denyEntry) excludes(raw string) bool {
	probe := raw
	if e.ignoreCase {
		probe = strings.ToUpper(probe)
	}
	if e.small != nil {
		_, found := e.small[probe]
		return !found
	}
	return !e.ac.ContainsString(denyDelimiter + probe + denyDelimiter)
}

// complementEntry backs an ANYTHING_BUT_PREFIX / ANYTHING_BUT_SUFFIX /
// ANYTHING_BUT_WILDCARD pattern: these only ever have one positive
// criterion to negate per registration (never a denylist), so rather
// than compiling a dedicated byte automaton for the complement, the
// entry re-evaluates the same reference logic pattern/value.go already
// implements.
type complementEntry struct {
	p     pattern.Pattern
	match *ByteMatch
}
