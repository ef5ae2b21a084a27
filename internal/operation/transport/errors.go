package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorType classifies transport errors.
type ErrorType string

const (
	// ErrorTypeConnection indicates network or DNS errors
	ErrorTypeConnection ErrorType = "connection"

	// ErrorTypeTimeout indicates request timeout or deadline exceeded
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeAuth indicates a failure to obtain credentials
	ErrorTypeAuth ErrorType = "auth"

	// ErrorTypeInvalidReq indicates request validation error (invalid method, URL, etc.)
	ErrorTypeInvalidReq ErrorType = "invalid_request"

	// ErrorTypeCancelled indicates context was cancelled
	ErrorTypeCancelled ErrorType = "cancelled"
)

// TransportError is a failure to complete an HTTP exchange.
type TransportError struct {
	// Type classifies the error
	Type ErrorType

	// Client is the name of the client that failed
	Client string

	// Message is safe to log; Cause may contain sensitive data
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s error: %s", e.Client, e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Timeout reports whether the exchange timed out. Operations map such
// errors to FAILURE_TIMEOUT.
func (e *TransportError) Timeout() bool {
	return e.Type == ErrorTypeTimeout
}

// IsType returns true if the error is of the given type.
func (e *TransportError) IsType(t ErrorType) bool {
	return e.Type == t
}

// classify wraps an error returned by http.Client.Do.
func classify(client string, err error) *TransportError {
	te := &TransportError{Client: client, Type: ErrorTypeConnection, Message: err.Error(), Cause: err}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		te.Type = ErrorTypeTimeout
		te.Message = "request deadline exceeded"
	case errors.Is(err, context.Canceled):
		te.Type = ErrorTypeCancelled
		te.Message = "request cancelled"
	case errors.As(err, &netErr) && netErr.Timeout():
		te.Type = ErrorTypeTimeout
		te.Message = "request timed out"
	}
	return te
}
