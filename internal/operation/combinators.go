package operation

import (
	"sync"
)

// Task lazily starts a sub-operation. Construction errors are returned
// directly rather than through the future.
type Task func() (*Future, error)

func runTask(t Task) (*Future, error) {
	f, err := t()
	if err != nil {
		return nil, err
	}
	if f == nil {
		f = Completed(nil)
	}
	return f, nil
}

func startAll(tasks []Task) ([]*Future, error) {
	futures := make([]*Future, 0, len(tasks))
	for _, t := range tasks {
		f, err := runTask(t)
		if err != nil {
			cancelAll(futures)
			return nil, err
		}
		futures = append(futures, f)
	}
	return futures, nil
}

func cancelAll(futures []*Future) {
	for _, f := range futures {
		f.Cancel()
	}
}

// AnyOf starts every task and resolves with the first one to complete;
// the remaining futures are then cancelled. If a task fails to start,
// the already-started futures are cancelled and the error is returned.
// With no tasks it returns nil; with one task it returns that task's
// future unchanged.
func AnyOf(tasks ...Task) (*Future, error) {
	switch len(tasks) {
	case 0:
		return nil, nil
	case 1:
		return tasks[0]()
	}

	futures, err := startAll(tasks)
	if err != nil {
		return nil, err
	}

	result := NewFuture()
	result.OnCancel(func() { cancelAll(futures) })

	for _, f := range futures {
		go func(f *Future) {
			select {
			case <-f.Done():
			case <-result.Done():
				return
			}
			o, err := f.Get()
			if result.resolve(o, err) {
				cancelAll(futures)
			}
		}(f)
	}

	return result, nil
}

// AllOf waits for every task and resolves with the highest-priority
// outcome, earliest position winning ties. A task that fails makes the
// result fail with the first such error by position; a task that yields
// nil makes the result nil. A task that cannot be started cancels the
// others and fails the returned future. With no tasks it returns nil;
// with one task it returns that task's future unchanged.
func AllOf(tasks ...Task) *Future {
	switch len(tasks) {
	case 0:
		return nil
	case 1:
		f, err := tasks[0]()
		if err != nil {
			return Failed(err)
		}
		return f
	}

	futures, err := startAll(tasks)
	if err != nil {
		return Failed(err)
	}

	result := NewFuture()
	result.OnCancel(func() { cancelAll(futures) })

	go func() {
		var (
			best     *Outcome
			firstErr error
			sawNil   bool
		)
		for _, f := range futures {
			select {
			case <-f.Done():
			case <-result.Done():
				return
			}
			o, err := f.Get()
			switch {
			case err != nil:
				if firstErr == nil {
					firstErr = err
				}
			case o == nil:
				sawNil = true
			case best == nil || Priority(o) > Priority(best):
				best = o
			}
		}

		switch {
		case firstErr != nil:
			result.Fail(firstErr)
		case sawNil:
			result.Complete(nil)
		default:
			result.Complete(best)
		}
	}()

	return result
}

// Sequence runs tasks strictly in order, starting each only after the
// previous one completed. It stops at the first non-success outcome and
// otherwise resolves with the last non-nil outcome; nil outcomes are
// skipped. Only the first task's start error is returned directly; later
// ones fail the future.
func Sequence(tasks ...Task) (*Future, error) {
	switch len(tasks) {
	case 0:
		return nil, nil
	case 1:
		return tasks[0]()
	}

	first, err := runTask(tasks[0])
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	current := first

	result := NewFuture()
	result.OnCancel(func() {
		mu.Lock()
		c := current
		mu.Unlock()
		c.Cancel()
	})

	go func() {
		var last *Outcome
		f := first
		for i := 0; ; i++ {
			select {
			case <-f.Done():
			case <-result.Done():
				return
			}

			o, err := f.Get()
			if err != nil {
				result.Fail(err)
				return
			}
			if o != nil {
				last = o
				if !o.IsSuccess() {
					result.Complete(o)
					return
				}
			}
			if i+1 == len(tasks) {
				result.Complete(last)
				return
			}

			next, err := runTask(tasks[i+1])
			if err != nil {
				result.Fail(err)
				return
			}

			mu.Lock()
			current = next
			mu.Unlock()
			if result.IsDone() {
				next.Cancel()
				return
			}
			f = next
		}
	}()

	return result, nil
}
