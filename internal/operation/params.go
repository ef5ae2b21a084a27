package operation

import (
	"time"

	"github.com/google/uuid"

	"github.com/tombee/remediator/pkg/errors"
)

// Callback receives outcome notifications for one invocation.
type Callback func(*Outcome)

// Properties carries out-of-band data between cooperating operations,
// for example the target entity resolved by a previous step.
type Properties struct {
	// TargetEntity identifies the entity the action is applied to.
	TargetEntity string

	// TargetEntityIDs are identifiers of the target (e.g. vserver id).
	TargetEntityIDs map[string]string

	// ResourceID is the model resource the operation acts on.
	ResourceID string

	// VfCount is the current VF module count, used by scale operations.
	VfCount *int
}

// Params describes a single invocation. It is created once by the caller
// and treated as read-only afterwards.
type Params struct {
	Actor     string
	Operation string
	RequestID uuid.UUID

	// Retry is the number of retries; nil means 0 (no retries).
	Retry *int

	// TimeoutSec bounds each attempt; nil uses the operator default and
	// 0 disables the timeout.
	TimeoutSec *int

	StartCallback    Callback
	CompleteCallback Callback

	// Executor runs the pipeline. Required.
	Executor Executor

	TargetType string
	Payload    map[string]string
	Properties Properties
}

// Validate checks the fields the engine relies on.
func (p Params) Validate() error {
	switch {
	case p.Actor == "":
		return &errors.ValidationError{Field: "actor", Message: "is required"}
	case p.Operation == "":
		return &errors.ValidationError{Field: "operation", Message: "is required"}
	case p.RequestID == uuid.Nil:
		return &errors.ValidationError{Field: "requestId", Message: "is required"}
	case p.Executor == nil:
		return &errors.ValidationError{
			Field:      "executor",
			Message:    "is required",
			Suggestion: "pass operation.GoExecutor{} or a pool executor",
		}
	case p.Retry != nil && *p.Retry < 0:
		return &errors.ValidationError{Field: "retry", Message: "must be >= 0"}
	case p.TimeoutSec != nil && *p.TimeoutSec < 0:
		return &errors.ValidationError{Field: "timeoutSec", Message: "must be >= 0"}
	}
	return nil
}

// GetRetry returns the retry count, mapping nil to 0.
func (p Params) GetRetry() int {
	if p.Retry == nil {
		return 0
	}
	return *p.Retry
}

// Timeout returns the attempt timeout. A nil TimeoutSec falls back to def;
// zero means no timeout.
func (p Params) Timeout(def time.Duration) time.Duration {
	if p.TimeoutSec == nil {
		return def
	}
	return time.Duration(*p.TimeoutSec) * time.Second
}

// FullName returns "actor.operation".
func (p Params) FullName() string {
	return p.Actor + "." + p.Operation
}

// IntPtr is a convenience for filling Retry and TimeoutSec.
func IntPtr(v int) *int {
	return &v
}
