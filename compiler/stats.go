package compiler

import "sync/atomic"

// Stats accumulates running counters for a Machine's lifetime, exposed as
// an immutable snapshot via Machine.Stats. Every field is updated with
// sync/atomic, so a snapshot may be taken from any goroutine without
// coordinating with writers or other readers.
type Stats struct {
	RuleCount       uint64
	SubRuleCount    uint64
	Traversals      uint64
	StepsEvaluated  uint64
	CandidatePrunes uint64
}

type statsCounters struct {
	ruleCount       atomic.Uint64
	subRuleCount    atomic.Uint64
	traversals      atomic.Uint64
	stepsEvaluated  atomic.Uint64
	candidatePrunes atomic.Uint64
}

func (c *statsCounters) snapshot() Stats {
	return Stats{
		RuleCount:       c.ruleCount.Load(),
		SubRuleCount:    c.subRuleCount.Load(),
		Traversals:      c.traversals.Load(),
		StepsEvaluated:  c.stepsEvaluated.Load(),
		CandidatePrunes: c.candidatePrunes.Load(),
	}
}
