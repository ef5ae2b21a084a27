package operation

import (
	"context"
	"errors"
	"sync"
)

// ErrCancelled is the error of a future cancelled before it completed.
var ErrCancelled = errors.New("operation cancelled")

// Future is a cancellable, complete-once result of an asynchronous
// operation or combination of operations.
type Future struct {
	done chan struct{}

	mu        sync.Mutex
	completed bool
	outcome   *Outcome
	err       error
	onCancel  []func()
}

// NewFuture creates an incomplete future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Completed returns a future already holding o.
func Completed(o *Outcome) *Future {
	f := NewFuture()
	f.Complete(o)
	return f
}

// Failed returns a future already holding err.
func Failed(err error) *Future {
	f := NewFuture()
	f.Fail(err)
	return f
}

// Complete resolves the future with an outcome. It reports false when
// the future was already resolved or cancelled.
func (f *Future) Complete(o *Outcome) bool {
	return f.resolve(o, nil)
}

// Fail resolves the future with an error.
func (f *Future) Fail(err error) bool {
	return f.resolve(nil, err)
}

func (f *Future) resolve(o *Outcome, err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completed {
		return false
	}
	f.completed = true
	f.outcome = o
	f.err = err
	f.onCancel = nil
	close(f.done)
	return true
}

// OnCancel registers fn to run if the future is cancelled. If the future
// is already cancelled fn runs immediately; if it completed normally fn
// is dropped.
func (f *Future) OnCancel(fn func()) {
	f.mu.Lock()
	if !f.completed {
		f.onCancel = append(f.onCancel, fn)
		f.mu.Unlock()
		return
	}
	cancelled := errors.Is(f.err, ErrCancelled)
	f.mu.Unlock()
	if cancelled {
		fn()
	}
}

// Cancel resolves the future with ErrCancelled and runs the cancel hooks.
// Cancelling a completed future is a no-op and returns false.
func (f *Future) Cancel() bool {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return false
	}
	hooks := f.onCancel
	f.completed = true
	f.err = ErrCancelled
	f.onCancel = nil
	close(f.done)
	f.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	return true
}

// Done is closed once the future is resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future is resolved.
func (f *Future) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// IsCancelled reports whether the future was cancelled.
func (f *Future) IsCancelled() bool {
	if !f.IsDone() {
		return false
	}
	_, err := f.Get()
	return errors.Is(err, ErrCancelled)
}

// Get blocks until the future is resolved.
func (f *Future) Get() (*Outcome, error) {
	<-f.done
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outcome, f.err
}

// Wait blocks until the future is resolved or ctx is done. A done ctx does
// not cancel the future.
func (f *Future) Wait(ctx context.Context) (*Outcome, error) {
	select {
	case <-f.done:
		return f.Get()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
