package operation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tombee/remediator/internal/log"
)

const testWait = 5 * time.Second

func testParams() Params {
	return Params{
		Actor:     "vfc",
		Operation: "Restart",
		RequestID: uuid.New(),
		Executor:  GoExecutor{},
	}
}

func testOptions(extra ...Option) []Option {
	opts := []Option{WithRetryWait(time.Millisecond), WithLogger(log.Discard())}
	return append(opts, extra...)
}

func await(t *testing.T, f *Future) (*Outcome, error) {
	t.Helper()
	require.NotNil(t, f)
	ctx, cancel := context.WithTimeout(context.Background(), testWait)
	defer cancel()
	out, err := f.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "future did not complete in time")
	return out, err
}

// scripted returns the given results in order, repeating the last one.
type scripted struct {
	mu      sync.Mutex
	results []Result
	calls   int32
	resets  int32
}

func (s *scripted) Attempt(ctx context.Context, attempt int, out *Outcome) (*Outcome, error) {
	atomic.AddInt32(&s.calls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.results[len(s.results)-1]
	if attempt <= len(s.results) {
		r = s.results[attempt-1]
	}
	return out.SetResult(r), nil
}

func (s *scripted) Reset() {
	atomic.AddInt32(&s.resets, 1)
}

func (s *scripted) Calls() int {
	return int(atomic.LoadInt32(&s.calls))
}

// callbacks records callback invocations in order.
type callbacks struct {
	mu       sync.Mutex
	events   []string
	starts   []*Outcome
	finals   []*Outcome
	complete chan struct{}
}

func newCallbacks() *callbacks {
	return &callbacks{complete: make(chan struct{}, 16)}
}

func (c *callbacks) attach(p Params) Params {
	p.StartCallback = func(o *Outcome) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.events = append(c.events, "start")
		c.starts = append(c.starts, o)
	}
	p.CompleteCallback = func(o *Outcome) {
		c.mu.Lock()
		c.events = append(c.events, "complete")
		c.finals = append(c.finals, o)
		c.mu.Unlock()
		c.complete <- struct{}{}
	}
	return p
}

func (c *callbacks) waitComplete(t *testing.T) {
	t.Helper()
	select {
	case <-c.complete:
	case <-time.After(testWait):
		t.Fatal("complete callback not invoked")
	}
}

func (c *callbacks) snapshot() ([]string, []*Outcome, []*Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...), append([]*Outcome(nil), c.starts...), append([]*Outcome(nil), c.finals...)
}
