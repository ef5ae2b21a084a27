// Package guard provides policy pre-checks consulted by operations before
// their first attempt.
package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tombee/remediator/internal/expression"
	"github.com/tombee/remediator/internal/operation"
)

// Static always returns the same decision.
type Static operation.Decision

// Evaluate implements operation.Guard.
func (s Static) Evaluate(context.Context, operation.Params) (operation.Decision, error) {
	return operation.Decision(s), nil
}

// Expression permits an operation when a boolean expression over its
// parameters holds. The environment exposes actor, operation, target,
// targetType, resourceId, requestId, retry and payload.
type Expression struct {
	expr   string
	reason string
	eval   *expression.Evaluator
}

// NewExpression compiles expr. reason is reported on denial; a default is
// used when empty.
func NewExpression(eval *expression.Evaluator, expr, reason string) (*Expression, error) {
	if eval == nil {
		eval = expression.New()
	}
	if err := eval.Validate(expr); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = fmt.Sprintf("guard expression %q denied the operation", expr)
	}
	return &Expression{expr: expr, reason: reason, eval: eval}, nil
}

// Evaluate implements operation.Guard.
func (g *Expression) Evaluate(_ context.Context, p operation.Params) (operation.Decision, error) {
	ok, err := g.eval.Evaluate(g.expr, Env(p))
	if err != nil {
		return operation.Decision{}, err
	}
	if !ok {
		return operation.Deny(g.reason), nil
	}
	return operation.Permit, nil
}

// Env returns the expression environment for p.
func Env(p operation.Params) map[string]any {
	payload := make(map[string]any, len(p.Payload))
	for k, v := range p.Payload {
		payload[k] = v
	}
	return map[string]any{
		"actor":      p.Actor,
		"operation":  p.Operation,
		"target":     p.Properties.TargetEntity,
		"targetType": p.TargetType,
		"resourceId": p.Properties.ResourceID,
		"requestId":  p.RequestID.String(),
		"retry":      p.GetRetry(),
		"payload":    payload,
	}
}

// Chain permits only when every guard permits. The first denial or error
// wins.
type Chain []operation.Guard

// Evaluate implements operation.Guard.
func (c Chain) Evaluate(ctx context.Context, p operation.Params) (operation.Decision, error) {
	for _, g := range c {
		d, err := g.Evaluate(ctx, p)
		if err != nil || !d.Permit {
			return d, err
		}
	}
	return operation.Permit, nil
}

// FrequencyLimit denies an operation when the same actor, operation and
// target pair has been permitted too often recently. It holds one token
// bucket per pair; buckets that have refilled are dropped, since a full
// bucket behaves like a new one.
type FrequencyLimit struct {
	limit  rate.Limit
	burst  int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	lastPrune time.Time
}

// NewFrequencyLimit allows at most count operations per window for each
// actor, operation and target.
func NewFrequencyLimit(count int, window time.Duration) *FrequencyLimit {
	if count < 1 {
		count = 1
	}
	return &FrequencyLimit{
		limit:    rate.Every(window / time.Duration(count)),
		burst:    count,
		window:   window,
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Evaluate implements operation.Guard.
func (f *FrequencyLimit) Evaluate(_ context.Context, p operation.Params) (operation.Decision, error) {
	key := p.FullName() + "/" + p.Properties.TargetEntity
	now := f.now()

	f.mu.Lock()
	if now.Sub(f.lastPrune) >= f.window {
		f.pruneLocked(now)
	}
	l, ok := f.limiters[key]
	if !ok {
		l = rate.NewLimiter(f.limit, f.burst)
		f.limiters[key] = l
	}
	allowed := l.AllowN(now, 1)
	f.mu.Unlock()

	if !allowed {
		return operation.Deny(fmt.Sprintf("frequency limit exceeded for %s", key)), nil
	}
	return operation.Permit, nil
}

func (f *FrequencyLimit) pruneLocked(now time.Time) {
	f.lastPrune = now
	for key, l := range f.limiters {
		if l.TokensAt(now) >= float64(f.burst) {
			delete(f.limiters, key)
		}
	}
}
