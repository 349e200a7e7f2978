package compiler

import "fmt"

// DuplicateRuleError reports AddRule being called with a name that
// already exists while Config.RuleOverriding is false.
type DuplicateRuleError struct {
	Name string
}

func (e *DuplicateRuleError) Error() string {
	return fmt.Sprintf("compiler: rule %q already exists", e.Name)
}

// ComplexityExceededError reports a rule whose worst-case wildcard
// complexity exceeds Config.MaxComplexity (spec.md §4.7).
type ComplexityExceededError struct {
	Name       string
	Complexity int
	Max        int
}

func (e *ComplexityExceededError) Error() string {
	return fmt.Sprintf("compiler: rule %q would reach complexity %d, exceeding the cap of %d", e.Name, e.Complexity, e.Max)
}
