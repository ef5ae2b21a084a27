package operation

import (
	"context"
)

// Strategy performs the transport-specific part of one attempt.
//
// Attempt receives a fresh outcome pre-filled with the actor, operation,
// target, start time and sub-request id, and returns the completed
// outcome. Returned errors become FailureException outcomes, or
// FailureTimeout when the error chain contains a timeout. Implementations
// must return promptly once ctx is done.
type Strategy interface {
	Attempt(ctx context.Context, attempt int, outcome *Outcome) (*Outcome, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(ctx context.Context, attempt int, outcome *Outcome) (*Outcome, error)

// Attempt implements Strategy.
func (f StrategyFunc) Attempt(ctx context.Context, attempt int, outcome *Outcome) (*Outcome, error) {
	return f(ctx, attempt, outcome)
}

// Resetter is implemented by strategies holding per-invocation state.
// Reset is called each time the operation is started.
type Resetter interface {
	Reset()
}

// Decision is a guard verdict.
type Decision struct {
	Permit bool
	Reason string
}

// Permit is the allowing decision.
var Permit = Decision{Permit: true}

// Deny returns a denying decision with the given reason.
func Deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Guard is an optional policy pre-check consulted before the first attempt.
type Guard interface {
	Evaluate(ctx context.Context, params Params) (Decision, error)
}

// GuardFunc adapts a function to Guard.
type GuardFunc func(ctx context.Context, params Params) (Decision, error)

// Evaluate implements Guard.
func (f GuardFunc) Evaluate(ctx context.Context, params Params) (Decision, error) {
	return f(ctx, params)
}
