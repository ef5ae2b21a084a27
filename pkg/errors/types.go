// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errors

import (
	"fmt"
	"time"
)

// ValidationError represents invalid parameters or invocation data.
// Configure and BuildOperation return it synchronously; it is never
// wrapped in an operation outcome.
type ValidationError struct {
	// Field identifies which parameter failed validation
	Field string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the error
	Suggestion string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// ErrorType implements ErrorClassifier.
func (e *ValidationError) ErrorType() string { return "validation" }

// IsRetryable implements ErrorClassifier.
func (e *ValidationError) IsRetryable() bool { return false }

// NotFoundError represents a lookup of an unknown actor, operator or client.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "actor", "operator", "http client")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrorType implements ErrorClassifier.
func (e *NotFoundError) ErrorType() string { return "not_found" }

// IsRetryable implements ErrorClassifier.
func (e *NotFoundError) IsRetryable() bool { return false }

// ConfigError represents configuration file problems.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "actors.vfc")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	msg := "config error"
	if e.Key != "" {
		msg = fmt.Sprintf("config error at %s", e.Key)
	}
	msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// TimeoutError represents an exceeded attempt or poll deadline.
type TimeoutError struct {
	// Operation describes what timed out (e.g., "vfc.Restart attempt")
	Operation string

	// Duration is how long the operation ran before timing out
	Duration time.Duration

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Operation, e.Duration)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// Timeout reports true so TimeoutError satisfies the net.Error style check.
func (e *TimeoutError) Timeout() bool { return true }

// ErrorType implements ErrorClassifier.
func (e *TimeoutError) ErrorType() string { return "timeout" }

// IsRetryable implements ErrorClassifier.
func (e *TimeoutError) IsRetryable() bool { return true }

// StateError reports a lifecycle method called in the wrong state, such as
// configuring a running component or adding an operator after configure.
type StateError struct {
	// Component is the full name of the component
	Component string

	// Action is the attempted lifecycle action
	Action string

	// State is the state the component was in
	State string
}

// Error implements the error interface.
func (e *StateError) Error() string {
	return fmt.Sprintf("%s: cannot %s while %s", e.Component, e.Action, e.State)
}

// ErrorType implements ErrorClassifier.
func (e *StateError) ErrorType() string { return "illegal_state" }

// IsRetryable implements ErrorClassifier.
func (e *StateError) IsRetryable() bool { return false }

// UnsupportedError marks a capability an implementation did not provide,
// for example a polling operation built without a status classifier.
type UnsupportedError struct {
	// Operation names the operation that lacks the capability
	Operation string

	// Feature names the missing capability
	Feature string
}

// Error implements the error interface.
func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s: %s is not supported", e.Operation, e.Feature)
}

// ErrorType implements ErrorClassifier.
func (e *UnsupportedError) ErrorType() string { return "unsupported" }

// IsRetryable implements ErrorClassifier.
func (e *UnsupportedError) IsRetryable() bool { return false }
