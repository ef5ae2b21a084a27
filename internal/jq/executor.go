// Package jq provides shared jq query execution for correlation keys and
// response field extraction.
package jq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/itchyny/gojq"
)

const (
	// DefaultTimeout is the default execution time for jq expressions (1 second)
	DefaultTimeout = 1 * time.Second

	// DefaultMaxInputSize is the default maximum input size (10MB)
	DefaultMaxInputSize = 10 * 1024 * 1024
)

// Executor evaluates jq expressions with timeout and size limits.
// Compiled queries are cached, so an Executor is meant to be shared.
type Executor struct {
	timeout      time.Duration
	maxInputSize int64

	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewExecutor creates a new jq executor with the given configuration.
func NewExecutor(timeout time.Duration, maxInputSize int64) *Executor {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if maxInputSize == 0 {
		maxInputSize = DefaultMaxInputSize
	}

	return &Executor{
		timeout:      timeout,
		maxInputSize: maxInputSize,
		cache:        make(map[string]*gojq.Code),
	}
}

// Default returns an executor with default limits.
func Default() *Executor {
	return NewExecutor(DefaultTimeout, DefaultMaxInputSize)
}

// Execute runs a jq expression against data. A single result is returned
// as is, several results as a slice, and no result as nil. An empty
// expression returns data unchanged.
func (e *Executor) Execute(ctx context.Context, expression string, data any) (any, error) {
	if expression == "" {
		return data, nil
	}

	results, err := e.run(ctx, expression, data)
	if err != nil {
		return nil, err
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// Strings runs expression and returns every non-empty scalar result as a
// string. Nulls, empty strings and composite values are skipped; arrays
// are flattened one level.
func (e *Executor) Strings(ctx context.Context, expression string, data any) ([]string, error) {
	results, err := e.run(ctx, expression, data)
	if err != nil {
		return nil, err
	}

	var out []string
	add := func(v any) {
		if s, ok := scalar(v); ok && s != "" {
			out = append(out, s)
		}
	}
	for _, r := range results {
		if arr, ok := r.([]any); ok {
			for _, v := range arr {
				add(v)
			}
			continue
		}
		add(r)
	}
	return out, nil
}

// String returns the first non-empty scalar result of expression, or ""
// when there is none.
func (e *Executor) String(ctx context.Context, expression string, data any) (string, error) {
	values, err := e.Strings(ctx, expression, data)
	if err != nil || len(values) == 0 {
		return "", err
	}
	return values[0], nil
}

// Validate validates a jq expression by attempting to compile it.
func (e *Executor) Validate(expression string) error {
	if expression == "" {
		return nil
	}
	if _, err := e.compile(expression); err != nil {
		return fmt.Errorf("invalid jq expression: %w", err)
	}
	return nil
}

func (e *Executor) run(ctx context.Context, expression string, data any) ([]any, error) {
	input, err := e.normalize(data)
	if err != nil {
		return nil, err
	}

	code, err := e.compile(expression)
	if err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var results []any
	iter := code.RunWithContext(execCtx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			if execCtx.Err() != nil {
				return nil, fmt.Errorf("execution timeout after %v", e.timeout)
			}
			return nil, err
		}
		results = append(results, v)
	}
	return results, nil
}

func (e *Executor) compile(expression string) (*gojq.Code, error) {
	e.mu.RLock()
	code, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	code, err = gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("compile error: %w", err)
	}

	e.mu.Lock()
	e.cache[expression] = code
	e.mu.Unlock()
	return code, nil
}

// normalize converts data into the plain JSON value shapes gojq accepts
// and enforces the input size limit.
func (e *Executor) normalize(data any) (any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data: %w", err)
	}

	if int64(len(raw)) > e.maxInputSize {
		return nil, fmt.Errorf("data size (%d bytes) exceeds maximum (%d bytes)",
			len(raw), e.maxInputSize)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to normalize data: %w", err)
	}
	return v, nil
}

func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}
