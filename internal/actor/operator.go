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
	"github.com/tombee/remediator/internal/lifecycle"
	"github.com/tombee/remediator/internal/operation"
)

// Operator builds operations for one action of an actor.
type Operator interface {
	lifecycle.Startable

	// ActorName returns the owning actor's name.
	ActorName() string

	// FullName returns "actor.operator".
	FullName() string

	// BuildOperation creates an operation for one invocation using the
	// configuration current at the time of the call.
	BuildOperation(params operation.Params) (*operation.Operation, error)
}

// OperatorPartial is embedded by concrete operators. It provides naming
// and the lifecycle state machine; the embedding type supplies the hooks.
type OperatorPartial struct {
	*lifecycle.Partial

	actorName string
	name      string
}

// NewOperatorPartial creates the base of the operator actorName.name.
func NewOperatorPartial(actorName, name string, hooks lifecycle.Hooks, opts ...lifecycle.Option) *OperatorPartial {
	return &OperatorPartial{
		Partial:   lifecycle.NewPartial(actorName+"."+name, hooks, opts...),
		actorName: actorName,
		name:      name,
	}
}

// Name returns the operator name without the actor prefix.
func (o *OperatorPartial) Name() string {
	return o.name
}

// ActorName returns the owning actor's name.
func (o *OperatorPartial) ActorName() string {
	return o.actorName
}

// FullName returns "actor.operator".
func (o *OperatorPartial) FullName() string {
	return o.Partial.Name()
}

// FuncOperator is an Operator assembled from functions. It suits
// operators whose configuration is a single callback, such as test
// doubles and in-process actions.
type FuncOperator struct {
	*OperatorPartial
	build func(params operation.Params) (*operation.Operation, error)
}

var _ Operator = (*FuncOperator)(nil)

// NewFuncOperator creates an operator whose lifecycle hooks are hooks and
// whose operations are built by build.
func NewFuncOperator(actorName, name string, hooks lifecycle.HookFuncs, build func(operation.Params) (*operation.Operation, error)) *FuncOperator {
	o := &FuncOperator{build: build}
	o.OperatorPartial = NewOperatorPartial(actorName, name, hooks)
	return o
}

// BuildOperation implements Operator.
func (o *FuncOperator) BuildOperation(params operation.Params) (*operation.Operation, error) {
	return o.build(params)
}
