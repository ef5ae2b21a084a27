// Package expression evaluates boolean expr-lang expressions used to
// classify downstream responses and to guard operations.
package expression

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/tombee/remediator/pkg/errors"
)

// Evaluator evaluates boolean expressions against an environment map.
// Compiled programs are cached by expression text.
type Evaluator struct {
	cache map[string]*vm.Program
	mu    sync.RWMutex
}

// New creates a new expression evaluator.
func New() *Evaluator {
	return &Evaluator{
		cache: make(map[string]*vm.Program),
	}
}

// Evaluate evaluates an expression against env and returns its boolean
// value. An empty expression evaluates to true.
//
// Example:
//
//	env := map[string]any{"response": map[string]any{"status": "COMPLETED"}}
//	ok, err := eval.Evaluate(`response.status == "COMPLETED"`, env)
func (e *Evaluator) Evaluate(expression string, env map[string]any) (bool, error) {
	if expression == "" {
		return true, nil
	}

	program, err := e.compile(expression)
	if err != nil {
		return false, &errors.ValidationError{
			Field:      "expression",
			Message:    fmt.Sprintf("failed to compile expression: %s", err.Error()),
			Suggestion: "check expression syntax",
		}
	}

	runEnv := make(map[string]any, len(env)+len(functions))
	for k, v := range env {
		runEnv[k] = v
	}
	for k, v := range functions {
		runEnv[k] = v
	}

	result, err := expr.Run(program, runEnv)
	if err != nil {
		return false, fmt.Errorf("expression evaluation failed: %w", err)
	}

	b, ok := result.(bool)
	if !ok {
		return false, &errors.ValidationError{
			Field:      "expression",
			Message:    fmt.Sprintf("expression must return boolean, got %T (%v)", result, result),
			Suggestion: "use comparison operators (==, !=, <, >, etc.) or boolean functions",
		}
	}
	return b, nil
}

// Validate compiles expression without running it.
func (e *Evaluator) Validate(expression string) error {
	if expression == "" {
		return nil
	}
	if _, err := e.compile(expression); err != nil {
		return &errors.ValidationError{
			Field:      "expression",
			Message:    fmt.Sprintf("failed to compile expression %q: %s", expression, err.Error()),
			Suggestion: "check expression syntax",
		}
	}
	return nil
}

func (e *Evaluator) compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	env := make(map[string]any, len(functions))
	for k, v := range functions {
		env[k] = v
	}

	prog, err := expr.Compile(expression,
		expr.Env(env),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = prog
	e.mu.Unlock()

	return prog, nil
}

// CacheSize returns the number of cached programs.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
