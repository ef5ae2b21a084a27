// Package coder converts between request/response values and the text
// carried by topics and HTTP bodies.
package coder

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Coder encodes values to text and decodes text into values.
type Coder interface {
	Encode(v any) (string, error)
	Decode(text string, v any) error
}

// DecodeError reports text that could not be decoded. It is shaped like
// a bad request so transport layers can map it to 400.
type DecodeError struct {
	Text  string
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode %q: %v", truncate(e.Text, 64), e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// StatusCode returns http.StatusBadRequest.
func (e *DecodeError) StatusCode() int {
	return http.StatusBadRequest
}

// JSON is the default Coder.
var JSON Coder = jsonCoder{}

type jsonCoder struct{}

func (jsonCoder) Encode(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %T: %w", v, err)
	}
	return string(b), nil
}

func (jsonCoder) Decode(text string, v any) error {
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return &DecodeError{Text: text, Cause: err}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
