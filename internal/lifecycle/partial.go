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

package lifecycle

import (
	"sync"

	"github.com/tombee/remediator/pkg/errors"
)

// Hooks supplies the component-specific part of each transition.
type Hooks interface {
	DoConfigure(params map[string]any) error
	DoStart() error
	DoStop() error
	DoShutdown() error
}

// Startable is the lifecycle surface exposed by components.
type Startable interface {
	Name() string
	Configure(params map[string]any) error
	Start() error
	Stop() error
	Shutdown() error
	IsConfigured() bool
	IsAlive() bool
}

// Observer is notified after every attempted transition.
type Observer interface {
	Record(Event)
}

// Option configures a Partial.
type Option func(*Partial)

// WithObserver installs an observer for transitions.
func WithObserver(o Observer) Option {
	return func(p *Partial) { p.observer = o }
}

// Partial is the shared lifecycle state machine. Transitions are
// serialized; hooks run with the state lock held, so hooks must not call
// back into the same Partial.
type Partial struct {
	name     string
	hooks    Hooks
	observer Observer

	mu         sync.Mutex
	configured bool
	alive      bool
}

var _ Startable = (*Partial)(nil)

// NewPartial creates an unconfigured component named name.
func NewPartial(name string, hooks Hooks, opts ...Option) *Partial {
	p := &Partial{name: name, hooks: hooks}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the component name.
func (p *Partial) Name() string {
	return p.name
}

// IsConfigured reports whether Configure has succeeded at least once.
func (p *Partial) IsConfigured() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.configured
}

// IsAlive reports whether the component is started.
func (p *Partial) IsAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

// Configure applies params. It is rejected while the component is alive,
// and a hook error leaves the previous configuration in effect.
func (p *Partial) Configure(params map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.alive {
		err := &errors.StateError{Component: p.name, Action: "configure", State: "alive"}
		p.record(EventConfigure, err)
		return err
	}
	if err := p.hooks.DoConfigure(params); err != nil {
		p.record(EventConfigure, err)
		return err
	}
	p.configured = true
	p.record(EventConfigure, nil)
	return nil
}

// Start starts a configured component. Starting an alive component is a
// no-op.
func (p *Partial) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.alive {
		return nil
	}
	if !p.configured {
		err := &errors.StateError{Component: p.name, Action: "start", State: "unconfigured"}
		p.record(EventStart, err)
		return err
	}
	if err := p.hooks.DoStart(); err != nil {
		p.record(EventStart, err)
		return err
	}
	p.alive = true
	p.record(EventStart, nil)
	return nil
}

// Stop stops an alive component. The component is not alive afterwards
// even when the hook fails; the hook error is returned.
func (p *Partial) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.alive {
		return nil
	}
	err := p.hooks.DoStop()
	p.alive = false
	p.record(EventStop, err)
	return err
}

// Shutdown shuts down an alive component with the same error policy as
// Stop.
func (p *Partial) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.alive {
		return nil
	}
	err := p.hooks.DoShutdown()
	p.alive = false
	p.record(EventShutdown, err)
	return err
}

func (p *Partial) record(kind string, err error) {
	if p.observer == nil {
		return
	}
	p.observer.Record(newEvent(p.name, kind, err))
}

// HookFuncs adapts optional functions to Hooks; nil functions succeed.
type HookFuncs struct {
	Configure func(params map[string]any) error
	Start     func() error
	Stop      func() error
	Shutdown  func() error
}

// DoConfigure implements Hooks.
func (h HookFuncs) DoConfigure(params map[string]any) error {
	if h.Configure == nil {
		return nil
	}
	return h.Configure(params)
}

// DoStart implements Hooks.
func (h HookFuncs) DoStart() error {
	if h.Start == nil {
		return nil
	}
	return h.Start()
}

// DoStop implements Hooks.
func (h HookFuncs) DoStop() error {
	if h.Stop == nil {
		return nil
	}
	return h.Stop()
}

// DoShutdown implements Hooks.
func (h HookFuncs) DoShutdown() error {
	if h.Shutdown == nil {
		return nil
	}
	return h.Shutdown()
}
