package topicop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tombee/remediator/internal/coder"
	"github.com/tombee/remediator/internal/forwarder"
	"github.com/tombee/remediator/internal/log"
	"github.com/tombee/remediator/internal/operation"
)

// Request is the message DefaultRequestBuilder publishes.
type Request struct {
	RequestID    string            `json:"requestId"`
	SubRequestID string            `json:"subRequestId,omitempty"`
	Actor        string            `json:"actor"`
	Operation    string            `json:"operation"`
	Target       string            `json:"target,omitempty"`
	TargetType   string            `json:"targetType,omitempty"`
	ResourceID   string            `json:"resourceId,omitempty"`
	Payload      map[string]string `json:"payload,omitempty"`
}

// DefaultRequestBuilder describes the invocation as a Request.
func DefaultRequestBuilder(_ *Config, params operation.Params) (any, error) {
	return &Request{
		RequestID:  params.RequestID.String(),
		Actor:      params.Actor,
		Operation:  params.Operation,
		Target:     params.Properties.TargetEntity,
		TargetType: params.TargetType,
		ResourceID: params.Properties.ResourceID,
		Payload:    params.Payload,
	}, nil
}

// Operation is the strategy of one topic invocation.
type Operation struct {
	snap    *snapshot
	params  operation.Params
	builder RequestBuilder
	logger  *slog.Logger
}

type reply struct {
	status   Status
	response any
	err      error
}

// Attempt implements operation.Strategy. The listener is registered
// before the request is published and is always unregistered when the
// attempt ends without a verdict.
func (op *Operation) Attempt(ctx context.Context, attempt int, out *operation.Outcome) (*operation.Outcome, error) {
	req, err := op.builder(&op.snap.config, op.params)
	if err != nil {
		return nil, err
	}
	if r, ok := req.(*Request); ok {
		r.SubRequestID = out.SubRequestID
	}
	payload, err := coder.JSON.Encode(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	keys, err := op.snap.keys(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("correlation keys: %w", err)
	}
	if len(keys) == 0 {
		keys = []string{op.params.RequestID.String()}
	}

	w := &waiter{
		fwd:      op.snap.forwarder,
		classify: op.snap.classifier,
		replies:  make(chan reply, 1),
		logger:   op.logger.With(log.RequestIDKey, op.params.RequestID.String(), log.SubRequestIDKey, out.SubRequestID),
	}
	if err := w.register(keys); err != nil {
		return nil, err
	}

	delivered, err := op.snap.pair.Publish(ctx, payload)
	if err != nil {
		w.close()
		return nil, fmt.Errorf("publish to %s: %w", op.snap.pair.Sink(), err)
	}
	if !delivered {
		w.close()
		out.Result = operation.Failure
		out.Message = fmt.Sprintf("request not delivered to %s", op.snap.pair.Sink())
		return out, nil
	}

	select {
	case r := <-w.replies:
		if r.err != nil {
			return nil, r.err
		}
		out.Response = r.response
		if r.status == StatusSuccess {
			return out.SetResult(operation.Success), nil
		}
		return out.SetResult(operation.Failure), nil
	case <-ctx.Done():
		w.close()
		return nil, context.Cause(ctx)
	}
}

// waiter owns the forwarder registration of one attempt. A STILL_WAITING
// verdict registers it again under the same keys.
type waiter struct {
	fwd      *forwarder.Forwarder
	classify Classifier
	replies  chan reply
	logger   *slog.Logger

	mu     sync.Mutex
	keys   []string
	reg    *forwarder.Registration
	closed bool
}

// register holds w.mu until w.reg is set, so a response dispatched
// before Register returns cannot be overwritten by a stale registration.
func (w *waiter) register(keys []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.keys = keys
	reg, err := w.fwd.Register(keys, w.onResponse)
	if err != nil {
		return err
	}
	w.reg = reg
	return nil
}

func (w *waiter) onResponse(_ string, response any) {
	status, err := w.classify(response)
	if err == nil && status == StatusStillWaiting {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.closed {
			return
		}
		w.logger.Debug("response still waiting, listening again")
		reg, err := w.fwd.Register(w.keys, w.onResponse)
		if err != nil {
			w.closed = true
			w.replies <- reply{err: err}
			return
		}
		w.reg = reg
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	w.replies <- reply{status: status, response: response, err: err}
}

func (w *waiter) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	if w.reg != nil {
		w.fwd.Unregister(w.reg)
	}
}
