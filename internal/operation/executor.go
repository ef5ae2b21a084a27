package operation

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Executor runs pipeline work. The engine never chooses one on its own;
// callers supply it through Params.
type Executor interface {
	Go(fn func())
}

// GoExecutor starts one goroutine per task.
type GoExecutor struct{}

// Go implements Executor.
func (GoExecutor) Go(fn func()) {
	go fn()
}

// PoolExecutor bounds the number of concurrently running tasks.
// Submitting never blocks the caller; excess tasks wait for a slot.
type PoolExecutor struct {
	sem *semaphore.Weighted
}

// NewPoolExecutor creates an executor running at most size tasks at once.
func NewPoolExecutor(size int) *PoolExecutor {
	if size < 1 {
		size = 1
	}
	return &PoolExecutor{sem: semaphore.NewWeighted(int64(size))}
}

// Go implements Executor.
func (p *PoolExecutor) Go(fn func()) {
	go func() {
		// Acquire only fails on a done context; Background never is.
		_ = p.sem.Acquire(context.Background(), 1)
		defer p.sem.Release(1)
		fn()
	}()
}
