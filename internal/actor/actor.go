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

package actor

import (
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/tombee/remediator/internal/lifecycle"
	"github.com/tombee/remediator/internal/log"
	"github.com/tombee/remediator/pkg/errors"
)

// OperationsKey is the actor parameter holding per-operator sub-maps.
const OperationsKey = "operations"

// Actor is a named registry of operators for one remediable capability.
type Actor interface {
	lifecycle.Startable

	// AddOperator registers op. It is ignored after Configure has run and
	// when an operator of the same name exists.
	AddOperator(op Operator)

	// GetOperator returns the named operator.
	GetOperator(name string) (Operator, error)

	// Operators returns the operators in registration order.
	Operators() []Operator

	// OperationNames returns the operator names in registration order.
	OperationNames() []string
}

// ParamsFunc derives the parameters for one operator from the actor's
// parameters. A nil result means the operator has no parameters.
type ParamsFunc func(actorParams map[string]any, operatorName string) map[string]any

// MakeOperatorParameters is the default ParamsFunc. An operator gets the
// actor-level keys overlaid with its entry under "operations"; it gets
// nil when it has no such entry.
func MakeOperatorParameters(actorParams map[string]any, operatorName string) map[string]any {
	ops, ok := actorParams[OperationsKey].(map[string]any)
	if !ok {
		return nil
	}
	sub, ok := ops[operatorName]
	if !ok {
		return nil
	}

	out := make(map[string]any, len(actorParams))
	for k, v := range actorParams {
		if k != OperationsKey {
			out[k] = v
		}
	}
	if m, ok := sub.(map[string]any); ok {
		maps.Copy(out, m)
	}
	return out
}

// Option configures an Impl.
type Option func(*Impl)

// WithParamsFunc overrides MakeOperatorParameters.
func WithParamsFunc(fn ParamsFunc) Option {
	return func(a *Impl) { a.paramsFunc = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Impl) { a.logger = l }
}

// WithObserver records the actor's own lifecycle transitions.
func WithObserver(o lifecycle.Observer) Option {
	return func(a *Impl) { a.observer = o }
}

// Impl is the standard Actor. Lifecycle calls fan out to the operators;
// an operator failing does not stop the fan-out and its error is only
// logged.
type Impl struct {
	*lifecycle.Partial

	name       string
	paramsFunc ParamsFunc
	logger     *slog.Logger
	observer   lifecycle.Observer

	mu        sync.RWMutex
	operators map[string]Operator
	order     []string
	frozen    bool
}

var _ Actor = (*Impl)(nil)

// New creates an actor with no operators.
func New(name string, opts ...Option) *Impl {
	a := &Impl{
		name:       name,
		paramsFunc: MakeOperatorParameters,
		operators:  make(map[string]Operator),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.logger = a.logger.With(log.ActorKey, name)

	var lopts []lifecycle.Option
	if a.observer != nil {
		lopts = append(lopts, lifecycle.WithObserver(a.observer))
	}
	a.Partial = lifecycle.NewPartial(name, a, lopts...)
	return a
}

// AddOperator implements Actor.
func (a *Impl) AddOperator(op Operator) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.frozen {
		a.logger.Warn("ignoring operator added after configure", log.OperationKey, op.Name())
		return
	}
	if _, ok := a.operators[op.Name()]; ok {
		a.logger.Warn("ignoring duplicate operator", log.OperationKey, op.Name())
		return
	}
	a.operators[op.Name()] = op
	a.order = append(a.order, op.Name())
}

// GetOperator implements Actor.
func (a *Impl) GetOperator(name string) (Operator, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	op, ok := a.operators[name]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "operator", ID: a.name + "." + name}
	}
	return op, nil
}

// Operators implements Actor.
func (a *Impl) Operators() []Operator {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Operator, 0, len(a.order))
	for _, name := range a.order {
		out = append(out, a.operators[name])
	}
	return out
}

// OperationNames implements Actor.
func (a *Impl) OperationNames() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.order...)
}

// DoConfigure configures each operator that has parameters. Operators
// without parameters keep their current state.
func (a *Impl) DoConfigure(params map[string]any) error {
	a.mu.Lock()
	a.frozen = true
	a.mu.Unlock()

	for _, op := range a.Operators() {
		sub := a.paramsFunc(params, op.Name())
		if sub == nil {
			a.logger.Debug("no parameters for operator", log.OperationKey, op.Name(),
				"configured", op.IsConfigured())
			continue
		}
		a.each(op, "configure", func() error { return op.Configure(sub) })
	}
	return nil
}

// DoStart starts every configured operator.
func (a *Impl) DoStart() error {
	for _, op := range a.Operators() {
		if !op.IsConfigured() {
			a.logger.Debug("not starting unconfigured operator", log.OperationKey, op.Name())
			continue
		}
		a.each(op, "start", op.Start)
	}
	return nil
}

// DoStop stops every operator.
func (a *Impl) DoStop() error {
	for _, op := range a.Operators() {
		a.each(op, "stop", op.Stop)
	}
	return nil
}

// DoShutdown shuts down every operator.
func (a *Impl) DoShutdown() error {
	for _, op := range a.Operators() {
		a.each(op, "shutdown", op.Shutdown)
	}
	return nil
}

func (a *Impl) each(op Operator, action string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("operator "+action+" panicked", log.OperationKey, op.Name(), "panic", fmt.Sprint(r))
		}
	}()
	if err := fn(); err != nil {
		a.logger.Warn("operator "+action+" failed", log.OperationKey, op.Name(), log.Error(err))
	}
}
