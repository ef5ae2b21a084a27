package operation

import (
	"fmt"
	"strings"
	"time"
)

// Result classifies an attempt or a whole operation.
type Result int

const (
	// Success means the remote system performed the action.
	Success Result = iota
	// Failure is a business-level negative result.
	Failure
	// FailureRetries means the retry budget was exhausted.
	FailureRetries
	// FailureTimeout means an attempt or poll deadline was exceeded.
	FailureTimeout
	// FailureException means an unexpected error occurred during the attempt.
	FailureException
	// FailureGuard means the guard denied execution.
	FailureGuard
)

var resultNames = map[Result]string{
	Success:          "SUCCESS",
	Failure:          "FAILURE",
	FailureRetries:   "FAILURE_RETRIES",
	FailureTimeout:   "FAILURE_TIMEOUT",
	FailureException: "FAILURE_EXCEPTION",
	FailureGuard:     "FAILURE_GUARD",
}

// String returns the upper-case wire name of the result.
func (r Result) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

// ParseResult parses a wire name such as "FAILURE_TIMEOUT".
func ParseResult(s string) (Result, error) {
	for r, name := range resultNames {
		if strings.EqualFold(name, s) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown operation result %q", s)
}

// Priority orders results when several outcomes are combined into one.
// Higher wins.
func (r Result) Priority() int {
	switch r {
	case Success:
		return 0
	case FailureGuard:
		return 2
	case FailureRetries:
		return 3
	case Failure:
		return 4
	case FailureTimeout:
		return 5
	case FailureException:
		return 6
	default:
		return 4
	}
}

// nilPriority ranks an absent outcome above success and below any failure.
const nilPriority = 1

// Priority returns the combining priority of an outcome, treating nil as
// a missing prerequisite.
func Priority(o *Outcome) int {
	if o == nil {
		return nilPriority
	}
	return o.Result.Priority()
}

// Outcome is the result of one attempt or of a whole operation.
// It is owned by the operation that creates it and is never shared
// between concurrent operations.
type Outcome struct {
	Actor        string
	Operation    string
	Target       string
	SubRequestID string
	Result       Result
	Message      string
	Start        time.Time
	End          time.Time

	// Final is true on the single outcome that ends a pipeline.
	Final bool

	// Response is the decoded downstream response, if any.
	Response any
}

// Clone returns a shallow copy of the outcome.
func (o *Outcome) Clone() *Outcome {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}

// SetResult sets the result and a message derived from it.
func (o *Outcome) SetResult(r Result) *Outcome {
	o.Result = r
	if r == Success {
		o.Message = "successful"
	} else {
		o.Message = "failed"
	}
	return o
}

// IsSuccess reports whether o is a non-nil successful outcome.
func (o *Outcome) IsSuccess() bool {
	return o != nil && o.Result == Success
}

// Duration returns End - Start, or zero when the outcome has not ended.
func (o *Outcome) Duration() time.Duration {
	if o.End.IsZero() {
		return 0
	}
	return o.End.Sub(o.Start)
}

// String implements fmt.Stringer.
func (o *Outcome) String() string {
	if o == nil {
		return "<nil outcome>"
	}
	return fmt.Sprintf("%s.%s[%s]: %s %s", o.Actor, o.Operation, o.SubRequestID, o.Result, o.Message)
}
