// Package forwarder matches messages arriving on a pub/sub source to the
// in-flight requests waiting for them.
//
// A request registers a one-shot listener under the correlation values it
// expects (typically its request id). Each arriving message is reduced to
// candidate keys by the forwarder's jq selectors; every registration
// holding one of those keys is removed and its listener invoked once.
package forwarder

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/tombee/remediator/internal/jq"
	"github.com/tombee/remediator/internal/log"
	"github.com/tombee/remediator/pkg/errors"
)

// Listener receives a matched message, both as the raw text and as the
// decoded value the selectors ran against.
type Listener func(raw string, msg any)

// Registration is a listener waiting under a fixed set of keys.
type Registration struct {
	keys     []string
	listener Listener
}

// Keys returns the correlation values the registration waits for.
func (r *Registration) Keys() []string {
	return slices.Clone(r.keys)
}

// Forwarder is safe for concurrent use by any number of registering
// operations and one or more delivering goroutines.
type Forwarder struct {
	selectors []string
	jq        *jq.Executor
	logger    *slog.Logger

	mu    sync.Mutex
	byKey map[string][]*Registration
	live  int
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Forwarder) { f.logger = l }
}

// WithExecutor shares a jq executor, and its query cache, with other
// components.
func WithExecutor(e *jq.Executor) Option {
	return func(f *Forwarder) { f.jq = e }
}

// New creates a forwarder extracting keys with the given jq selectors.
func New(selectors []string, opts ...Option) (*Forwarder, error) {
	if len(selectors) == 0 {
		return nil, &errors.ValidationError{
			Field:   "selectors",
			Message: "at least one selector is required",
		}
	}

	f := &Forwarder{
		selectors: slices.Clone(selectors),
		byKey:     make(map[string][]*Registration),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.jq == nil {
		f.jq = jq.Default()
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	f.logger = log.WithComponent(f.logger, "forwarder")

	for _, s := range f.selectors {
		if err := f.jq.Validate(s); err != nil {
			return nil, &errors.ValidationError{
				Field:   "selectors",
				Message: fmt.Sprintf("selector %q: %v", s, err),
			}
		}
	}
	return f, nil
}

// Selectors returns the jq selectors used for key extraction.
func (f *Forwarder) Selectors() []string {
	return slices.Clone(f.selectors)
}

// Register adds a one-shot listener under keys. Duplicate keys are
// collapsed; an empty key set is rejected.
func (f *Forwarder) Register(keys []string, listener Listener) (*Registration, error) {
	if listener == nil {
		return nil, &errors.ValidationError{Field: "listener", Message: "is required"}
	}

	unique := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" && !slices.Contains(unique, k) {
			unique = append(unique, k)
		}
	}
	if len(unique) == 0 {
		return nil, &errors.ValidationError{
			Field:   "keys",
			Message: "at least one non-empty correlation key is required",
		}
	}

	reg := &Registration{keys: unique, listener: listener}

	f.mu.Lock()
	for _, k := range unique {
		f.byKey[k] = append(f.byKey[k], reg)
	}
	f.live++
	f.mu.Unlock()

	return reg, nil
}

// Unregister removes reg from every key it was registered under. It is a
// no-op when reg was already dispatched or unregistered.
func (f *Forwarder) Unregister(reg *Registration) {
	if reg == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(reg)
}

// removeLocked reports whether reg was still registered.
func (f *Forwarder) removeLocked(reg *Registration) bool {
	found := false
	for _, k := range reg.keys {
		regs := f.byKey[k]
		i := slices.Index(regs, reg)
		if i < 0 {
			continue
		}
		found = true
		regs = slices.Delete(regs, i, i+1)
		if len(regs) == 0 {
			delete(f.byKey, k)
		} else {
			f.byKey[k] = regs
		}
	}
	if found {
		f.live--
	}
	return found
}

// Keys extracts the correlation keys of msg.
func (f *Forwarder) Keys(ctx context.Context, msg any) ([]string, error) {
	var keys []string
	for _, s := range f.selectors {
		values, err := f.jq.Strings(ctx, s, msg)
		if err != nil {
			return nil, fmt.Errorf("selector %q: %w", s, err)
		}
		for _, v := range values {
			if !slices.Contains(keys, v) {
				keys = append(keys, v)
			}
		}
	}
	return keys, nil
}

// OnMessage dispatches msg to every registration matching one of its keys
// and returns how many listeners were invoked. Matched registrations are
// removed before their listeners run, so each listener is invoked at most
// once even when messages are delivered concurrently.
func (f *Forwarder) OnMessage(raw string, msg any) int {
	keys, err := f.Keys(context.Background(), msg)
	if err != nil {
		f.logger.Warn("cannot extract correlation keys", log.Error(err))
		return 0
	}
	if len(keys) == 0 {
		f.logger.Debug("message has no correlation keys")
		return 0
	}

	var matched []*Registration
	f.mu.Lock()
	for _, k := range keys {
		for _, reg := range slices.Clone(f.byKey[k]) {
			if f.removeLocked(reg) {
				matched = append(matched, reg)
			}
		}
	}
	f.mu.Unlock()

	if len(matched) == 0 {
		f.logger.Debug("no listener for message", "keys", keys)
		return 0
	}

	for _, reg := range matched {
		f.dispatch(reg, raw, msg)
	}
	return len(matched)
}

func (f *Forwarder) dispatch(reg *Registration, raw string, msg any) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("listener panicked", "keys", reg.keys, "panic", fmt.Sprint(r))
		}
	}()
	reg.listener(raw, msg)
}

// Pending returns the number of live registrations.
func (f *Forwarder) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live
}
