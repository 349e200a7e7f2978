// Package ruler compiles declarative, field-based rules into a
// two-level finite automaton (an outer name machine keyed by event field
// name, with a per-field byte-level NFA on each edge) and matches
// JSON events against them in time bounded by the event's size and the
// number of distinct field values it touches, not by the number of
// compiled rules.
//
// Basic usage:
//
//	r, err := ruler.New(ruler.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := r.AddRule("high-value-order", []byte(`{"total": [{"numeric": [">", 1000]}]}`)); err != nil {
//	    log.Fatal(err)
//	}
//	names, err := r.RulesForJSONEvent([]byte(`{"total": 1500, "currency": "USD"}`))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(names) // [high-value-order]
package ruler

import (
	"errors"
	"fmt"

	"github.com/coregx/ruler/compiler"
	"github.com/coregx/ruler/event"
	"github.com/coregx/ruler/pattern"
)

// Sentinel error kinds, usable with errors.Is. Each wraps the
// lower-level structured error that actually describes the failure.
var (
	// ErrInvalidRule indicates a rule-JSON document was malformed or
	// named a pattern that could not be compiled.
	ErrInvalidRule = errors.New("ruler: invalid rule")

	// ErrInvalidEvent indicates an event document was not a JSON object
	// or was otherwise unparseable.
	ErrInvalidEvent = errors.New("ruler: invalid event")

	// ErrComplexityExceeded indicates a rule was rejected because
	// adding it would have pushed the machine's worst-case wildcard
	// complexity (§4.7) past Config.MaxComplexity.
	ErrComplexityExceeded = errors.New("ruler: complexity exceeded")

	// ErrDuplicateRule indicates a rule name already exists and
	// Config.RuleOverriding is false.
	ErrDuplicateRule = errors.New("ruler: duplicate rule")
)

// Config controls how a Ruler compiles and matches rules. See
// DefaultConfig for the defaults.
type Config struct {
	// AdditionalNameStateReuse lets structurally identical sub-rule
	// paths from different rules converge on one shared name-machine
	// state, trading a small amount of cross-rule interaction risk for
	// reduced memory. Default true.
	AdditionalNameStateReuse bool

	// RuleOverriding, when true, makes AddRule replace an existing
	// rule's sub-rules instead of returning ErrDuplicateRule. Default
	// false.
	RuleOverriding bool

	// MaxComplexity caps the worst-case number of simultaneously live
	// wildcard patterns a single value may trigger (§4.7). Zero
	// disables the check. Default 1024.
	MaxComplexity int
}

// DefaultConfig returns the default Config.
func DefaultConfig() Config {
	return Config{
		AdditionalNameStateReuse: true,
		RuleOverriding:           false,
		MaxComplexity:            1024,
	}
}

func (c Config) toCompilerConfig() compiler.Config {
	return compiler.Config{
		AdditionalNameStateReuse: c.AdditionalNameStateReuse,
		RuleOverriding:           c.RuleOverriding,
		MaxComplexity:            c.MaxComplexity,
	}
}

// Stats is a point-in-time snapshot of a Ruler's running counters.
type Stats = compiler.Stats

// Ruler is a compiled rule set. A *Ruler is safe for concurrent use:
// AddRule/DeleteRule serialize against each other, and RulesForEvent /
// RulesForJSONEvent never block on a writer (§5).
type Ruler struct {
	machine *compiler.Machine
}

// New returns an empty Ruler governed by cfg.
func New(cfg Config) (*Ruler, error) {
	m, err := compiler.NewMachine(cfg.toCompilerConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return &Ruler{machine: m}, nil
}

// AddRule compiles ruleJSON (spec.md §6's match-specification grammar)
// and installs it under name. If name already exists, behavior follows
// Config.RuleOverriding: replace, or return ErrDuplicateRule leaving the
// ruler unchanged.
func (r *Ruler) AddRule(name string, ruleJSON []byte) error {
	conjunctions, err := pattern.ParseRule(ruleJSON)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if err := r.machine.AddRule(name, conjunctions); err != nil {
		var dup *compiler.DuplicateRuleError
		if errors.As(err, &dup) {
			return fmt.Errorf("%w: %v", ErrDuplicateRule, err)
		}
		var tooComplex *compiler.ComplexityExceededError
		if errors.As(err, &tooComplex) {
			return fmt.Errorf("%w: %v", ErrComplexityExceeded, err)
		}
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return nil
}

// DeleteRule removes every sub-rule registered under name. Deleting an
// unknown name is a no-op.
func (r *Ruler) DeleteRule(name string) {
	r.machine.DeleteRule(name)
}

// RulesForJSONEvent loads eventJSON (which must decode to a JSON object)
// and returns the name of every rule satisfied by it. Only fields
// referenced by at least one compiled rule are materialised (§6) -- the
// loader's event.FieldUsed predicate is r.machine.IsFieldUsed.
func (r *Ruler) RulesForJSONEvent(eventJSON []byte) ([]string, error) {
	fields, err := event.Load(eventJSON, r.machine.IsFieldUsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return r.machine.Find(fields), nil
}

// RulesForEvent returns the name of every rule satisfied by fields, an
// already-flattened event (see package event). This is the entry point
// for callers that flatten events themselves, e.g. from a transport that
// decodes straight into []event.Field instead of raw JSON.
func (r *Ruler) RulesForEvent(fields []event.Field) []string {
	return r.machine.Find(fields)
}

// Stats returns a snapshot of the ruler's running counters.
func (r *Ruler) Stats() Stats {
	return r.machine.Stats()
}
