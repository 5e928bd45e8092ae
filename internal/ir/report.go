package ir

import "time"

// Outcome is the final disposition of one plan item after apply.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// ApplyResult records the disposition of one resource. It is created when
// the scheduler dispatches the item and finalized when the provider call
// returns (or when the item is skipped without being dispatched).
type ApplyResult struct {
	Addr           string
	Action         Action
	Outcome        Outcome
	Err            string // provider error detail, set when Outcome is failed
	SkippedBecause string // failed ancestor address, set when Outcome is skipped
	Duration       time.Duration
}
