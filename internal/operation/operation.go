package operation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/remediator/internal/log"
	"github.com/tombee/remediator/pkg/errors"
)

// DefaultRetryWait is the delay between a failed attempt and the next one.
const DefaultRetryWait = time.Second

// State is the lifecycle state of an Operation.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Option configures an Operation.
type Option func(*Operation)

// WithDefaultTimeout sets the attempt timeout used when Params.TimeoutSec is nil.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *Operation) { o.defaultTimeout = d }
}

// WithRetryWait overrides DefaultRetryWait.
func WithRetryWait(d time.Duration) Option {
	return func(o *Operation) { o.retryWait = d }
}

// WithGuard installs a guard consulted before the first attempt.
func WithGuard(g Guard) Option {
	return func(o *Operation) { o.guard = g }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Operation) { o.logger = l }
}

// WithTracer sets the tracer used for pipeline spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Operation) { o.tracer = t }
}

// WithTarget sets the target entity reported on outcomes.
func WithTarget(target string) Option {
	return func(o *Operation) { o.target = target }
}

// Operation is one stateful attempt/retry pipeline for a single invocation.
type Operation struct {
	params         Params
	strategy       Strategy
	guard          Guard
	logger         *slog.Logger
	tracer         trace.Tracer
	defaultTimeout time.Duration
	retryWait      time.Duration
	target         string

	mu       sync.Mutex
	state    State
	future   *Future
	attempts int
}

// New creates an operation for params driven by strategy.
func New(params Params, strategy Strategy, opts ...Option) *Operation {
	o := &Operation{
		params:    params,
		strategy:  strategy,
		retryWait: DefaultRetryWait,
		target:    params.Properties.TargetEntity,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracer == nil {
		o.tracer = defaultTracer()
	}
	o.logger = log.WithOperation(o.logger, params.Actor, params.Operation, params.RequestID.String())
	return o
}

// Params returns the invocation parameters.
func (o *Operation) Params() Params {
	return o.params
}

// ActorName returns the actor name.
func (o *Operation) ActorName() string {
	return o.params.Actor
}

// Name returns the operation name.
func (o *Operation) Name() string {
	return o.params.Operation
}

// FullName returns "actor.operation".
func (o *Operation) FullName() string {
	return o.params.FullName()
}

// Strategy returns the strategy doing the I/O.
func (o *Operation) Strategy() Strategy {
	return o.strategy
}

// Attempts returns the number of attempts started by the current or last run.
func (o *Operation) Attempts() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.attempts
}

// State returns the current state.
func (o *Operation) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// IsSameOperation reports whether outcome was produced by this actor and
// operation.
func (o *Operation) IsSameOperation(outcome *Outcome) bool {
	return outcome != nil && outcome.Actor == o.params.Actor && outcome.Operation == o.params.Operation
}

// IsActorFailed reports whether outcome is a plain Failure of this actor
// and operation.
func (o *Operation) IsActorFailed(outcome *Outcome) bool {
	return o.IsSameOperation(outcome) && outcome.Result == Failure
}

// Task returns a Task starting this operation with ctx, for use with the
// combinators.
func (o *Operation) Task(ctx context.Context) Task {
	return func() (*Future, error) {
		return o.Start(ctx), nil
	}
}

// Start launches the pipeline on the params' executor and returns its
// future. Calling Start while the pipeline is running returns the running
// future. Cancelling the future cancels the in-flight attempt and
// suppresses further retries.
func (o *Operation) Start(ctx context.Context) *Future {
	if err := o.params.Validate(); err != nil {
		return Failed(err)
	}

	o.mu.Lock()
	if o.state == StateRunning {
		f := o.future
		o.mu.Unlock()
		return f
	}
	if r, ok := o.strategy.(Resetter); ok {
		r.Reset()
	}
	runCtx, cancel := context.WithCancel(ctx)
	future := NewFuture()
	future.OnCancel(cancel)
	o.state = StateRunning
	o.attempts = 0
	o.future = future
	o.mu.Unlock()

	o.params.Executor.Go(func() {
		defer cancel()
		o.run(runCtx, future)
	})

	return future
}

func (o *Operation) run(ctx context.Context, future *Future) {
	start := time.Now()
	ctx, span := startPipelineSpan(ctx, o.tracer, o.params)

	o.notify(o.params.StartCallback, o.startOutcome(start))

	final, cancelled := o.pipeline(ctx, span, start)
	final.Final = true
	if final.End.IsZero() {
		final.End = time.Now()
	}

	o.mu.Lock()
	attempts := o.attempts
	if cancelled {
		o.state = StateCancelled
	} else {
		o.state = StateCompleted
	}
	o.mu.Unlock()

	endPipelineSpan(span, attempts, final)
	recordOutcome(o.params, final)
	o.logger.Info("operation completed",
		log.ResultKey, final.Result.String(),
		"attempts", attempts,
		"message", final.Message,
		log.DurationKey, final.Duration().Milliseconds(),
	)

	o.notify(o.params.CompleteCallback, final)

	if cancelled {
		future.Cancel()
	} else {
		future.Complete(final)
	}
}

// pipeline runs the guard and the attempts. The boolean reports whether
// the pipeline ended because ctx was cancelled.
func (o *Operation) pipeline(ctx context.Context, span trace.Span, start time.Time) (*Outcome, bool) {
	if o.guard != nil {
		decision, err := o.guard.Evaluate(ctx, o.params)
		if err != nil {
			o.logger.Warn("guard evaluation failed", log.Error(err))
			return o.errorOutcome(o.newOutcome(start), fmt.Errorf("guard: %w", err)), false
		}
		if !decision.Permit {
			o.logger.Info("guard denied operation", "reason", decision.Reason)
			out := o.newOutcome(start)
			out.Result = FailureGuard
			out.Message = decision.Reason
			if out.Message == "" {
				out.Message = "denied by guard"
			}
			return out, false
		}
	}

	retry := o.params.GetRetry()
	for {
		if ctx.Err() != nil {
			return o.cancelledOutcome(start), true
		}

		attempt := o.nextAttempt()
		outcome := o.attempt(ctx, attempt)
		if ctx.Err() != nil {
			return o.cancelledOutcome(start), true
		}
		recordAttemptEvent(span, attempt, outcome)

		if outcome.Result == Success || outcome.Result == FailureGuard {
			return outcome, false
		}

		if attempt > retry {
			if retry > 0 && outcome.Result == Failure {
				outcome.Result = FailureRetries
				outcome.Message = fmt.Sprintf("retries exhausted after %d attempts: %s", attempt, outcome.Message)
			}
			return outcome, false
		}

		o.logger.Info("retrying operation",
			log.AttemptKey, attempt,
			log.ResultKey, outcome.Result.String(),
			"retry_wait", o.retryWait.String(),
		)
		if !sleep(ctx, o.retryWait) {
			return o.cancelledOutcome(start), true
		}
	}
}

type attemptResult struct {
	outcome *Outcome
	err     error
}

func (o *Operation) attempt(ctx context.Context, attempt int) *Outcome {
	recordAttempt(o.params)

	base := o.newOutcome(time.Now())
	base.SubRequestID = uuid.NewString()

	attemptCtx, cancel := ctx, context.CancelFunc(func() {})
	timeout := o.params.Timeout(o.defaultTimeout)
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeoutCause(ctx, timeout, &errors.TimeoutError{
			Operation: fmt.Sprintf("%s attempt %d", o.FullName(), attempt),
			Duration:  timeout,
		})
	}
	defer cancel()

	logger := o.logger.With(log.AttemptKey, attempt, log.SubRequestIDKey, base.SubRequestID)
	logger.Debug("attempt started", "timeout", timeout.String())

	ch := make(chan attemptResult, 1)
	go func(out *Outcome) {
		defer func() {
			if r := recover(); r != nil {
				ch <- attemptResult{err: fmt.Errorf("strategy panic: %v", r)}
			}
		}()
		res, err := o.strategy.Attempt(attemptCtx, attempt, out)
		ch <- attemptResult{outcome: res, err: err}
	}(base.Clone())

	var res attemptResult
	select {
	case res = <-ch:
	case <-attemptCtx.Done():
		res = attemptResult{err: context.Cause(attemptCtx)}
	}

	var outcome *Outcome
	switch {
	case res.err != nil:
		outcome = o.errorOutcome(base, res.err)
	case res.outcome == nil:
		outcome = o.errorOutcome(base, errors.New("strategy returned no outcome"))
	default:
		outcome = res.outcome
	}
	outcome.Final = false
	if outcome.End.IsZero() {
		outcome.End = time.Now()
	}

	logger.Info("attempt completed",
		log.ResultKey, outcome.Result.String(),
		"message", outcome.Message,
		log.DurationKey, outcome.Duration().Milliseconds(),
	)
	return outcome
}

// errorOutcome converts an error into FailureTimeout when any error in
// its chain is timeout-typed, otherwise FailureException carrying the
// root cause.
func (o *Operation) errorOutcome(out *Outcome, err error) *Outcome {
	out.End = time.Now()
	if errors.IsTimeout(err) {
		out.Result = FailureTimeout
		out.Message = err.Error()
		return out
	}
	out.Result = FailureException
	out.Message = errors.RootCause(err).Error()
	o.logger.Warn("attempt raised an error", log.Error(err))
	return out
}

func (o *Operation) cancelledOutcome(start time.Time) *Outcome {
	out := o.newOutcome(start)
	out.Result = FailureException
	out.Message = ErrCancelled.Error()
	out.End = time.Now()
	return out
}

func (o *Operation) startOutcome(start time.Time) *Outcome {
	out := o.newOutcome(start)
	out.Message = "started"
	return out
}

func (o *Operation) newOutcome(start time.Time) *Outcome {
	return &Outcome{
		Actor:     o.params.Actor,
		Operation: o.params.Operation,
		Target:    o.target,
		Start:     start,
	}
}

func (o *Operation) nextAttempt() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts++
	return o.attempts
}

func (o *Operation) notify(cb Callback, out *Outcome) {
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("outcome callback panicked", "panic", fmt.Sprint(r))
		}
	}()
	cb(out.Clone())
}

// sleep waits for d or until ctx is done. It reports false when ctx
// ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Sleep is the context-aware delay used by strategies between polls.
func Sleep(ctx context.Context, d time.Duration) error {
	if !sleep(ctx, d) {
		return context.Cause(ctx)
	}
	return nil
}
