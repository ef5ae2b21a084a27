// Package httpop implements operators that drive remote systems over HTTP,
// either with a single request/response exchange or by polling a
// long-running job until it settles.
package httpop

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tombee/remediator/internal/actor"
	"github.com/tombee/remediator/internal/expression"
	"github.com/tombee/remediator/internal/jq"
	"github.com/tombee/remediator/internal/lifecycle"
	"github.com/tombee/remediator/internal/operation"
	"github.com/tombee/remediator/internal/operation/transport"
	"github.com/tombee/remediator/pkg/errors"
)

// Status is a classifier verdict.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusStillWaiting
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailure:
		return "FAILURE"
	case StatusStillWaiting:
		return "STILL_WAITING"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Classifier decides the status of a 2xx response. body is the decoded
// JSON body, or the raw text when the body is not JSON.
type Classifier func(resp *transport.Response, body any) (Status, error)

// RequestBuilder creates the initial request of an invocation.
type RequestBuilder func(cfg *Config, params operation.Params) (*transport.Request, error)

// Option configures an Operator.
type Option func(*Operator)

// WithClassifier replaces the expression classifier built from the
// successExpr and failureExpr parameters.
func WithClassifier(c Classifier) Option {
	return func(o *Operator) { o.classifier = c }
}

// WithRequestBuilder replaces DefaultRequestBuilder.
func WithRequestBuilder(b RequestBuilder) Option {
	return func(o *Operator) { o.builder = b }
}

// WithGuard installs a guard on every operation the operator builds.
func WithGuard(g operation.Guard) Option {
	return func(o *Operator) { o.guard = g }
}

// WithRetryWait sets the delay between attempts of built operations.
func WithRetryWait(d time.Duration) Option {
	return func(o *Operator) { o.retryWait = &d }
}

// WithEvaluator shares an expression evaluator.
func WithEvaluator(e *expression.Evaluator) Option {
	return func(o *Operator) { o.eval = e }
}

// WithJQ shares a jq executor.
func WithJQ(e *jq.Executor) Option {
	return func(o *Operator) { o.jq = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Operator) { o.logger = l }
}

// WithObserver records lifecycle transitions.
func WithObserver(obs lifecycle.Observer) Option {
	return func(o *Operator) { o.observer = obs }
}

// snapshot is the configuration captured by an operation at build time.
type snapshot struct {
	config     PollingConfig
	client     transport.Transport
	classifier Classifier
	timeout    time.Duration
	pollWait   time.Duration
}

// Operator builds HTTP operations from the client registry and its
// current configuration.
type Operator struct {
	*actor.OperatorPartial

	polling    bool
	clients    *transport.Registry
	classifier Classifier
	builder    RequestBuilder
	guard      operation.Guard
	retryWait  *time.Duration
	eval       *expression.Evaluator
	jq         *jq.Executor
	logger     *slog.Logger
	observer   lifecycle.Observer

	current atomic.Pointer[snapshot]
}

var _ actor.Operator = (*Operator)(nil)

// NewOperator creates a request/response operator.
func NewOperator(actorName, name string, clients *transport.Registry, opts ...Option) *Operator {
	return newOperator(false, actorName, name, clients, opts)
}

// NewPollingOperator creates an operator that polls until the
// classifier settles on success or failure.
func NewPollingOperator(actorName, name string, clients *transport.Registry, opts ...Option) *Operator {
	return newOperator(true, actorName, name, clients, opts)
}

func newOperator(polling bool, actorName, name string, clients *transport.Registry, opts []Option) *Operator {
	o := &Operator{
		polling: polling,
		clients: clients,
		builder: DefaultRequestBuilder,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.eval == nil {
		o.eval = expression.New()
	}
	if o.jq == nil {
		o.jq = jq.Default()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	var lopts []lifecycle.Option
	if o.observer != nil {
		lopts = append(lopts, lifecycle.WithObserver(o.observer))
	}
	o.OperatorPartial = actor.NewOperatorPartial(actorName, name, o, lopts...)
	return o
}

// IsPolling reports whether the operator polls.
func (o *Operator) IsPolling() bool {
	return o.polling
}

// Config returns the current configuration, or nil before Configure.
func (o *Operator) Config() *PollingConfig {
	s := o.current.Load()
	if s == nil {
		return nil
	}
	c := s.config
	return &c
}

// DoConfigure implements lifecycle.Hooks.
func (o *Operator) DoConfigure(params map[string]any) error {
	var cfg PollingConfig
	var err error
	if o.polling {
		err = actor.Translate(params, &cfg)
	} else {
		err = actor.Translate(params, &cfg.Config)
	}
	if err != nil {
		return fmt.Errorf("configure %s: %w", o.FullName(), err)
	}

	client, err := o.clients.Get(cfg.ClientName)
	if err != nil {
		return fmt.Errorf("configure %s: %w", o.FullName(), err)
	}
	if err := cfg.Rule.Validate(o.eval); err != nil {
		return fmt.Errorf("configure %s: %w", o.FullName(), err)
	}
	if cfg.PollIDPath != "" {
		if err := o.jq.Validate(cfg.PollIDPath); err != nil {
			return fmt.Errorf("configure %s: pollIDPath: %w", o.FullName(), err)
		}
	}

	o.current.Store(&snapshot{
		config:     cfg,
		client:     client,
		classifier: o.classifierFor(cfg),
		timeout:    time.Duration(cfg.TimeoutSec) * time.Second,
		pollWait:   time.Duration(cfg.PollWaitSec) * time.Second,
	})
	return nil
}

// classifierFor picks the classifier for cfg. A polling operator with
// neither an explicit classifier nor expressions has none.
func (o *Operator) classifierFor(cfg PollingConfig) Classifier {
	if o.classifier != nil {
		return o.classifier
	}
	if cfg.Rule.IsZero() {
		return nil
	}
	return ruleClassifier(o.eval, cfg.Rule, o.polling)
}

// ruleClassifier evaluates the rule against {status, headers, response}.
// An undecided response keeps a polling operation waiting and fails a
// plain one.
func ruleClassifier(eval *expression.Evaluator, rule expression.Rule, polling bool) Classifier {
	return func(resp *transport.Response, body any) (Status, error) {
		headers := make(map[string]any, len(resp.Headers))
		for k := range resp.Headers {
			headers[strings.ToLower(k)] = resp.Headers.Get(k)
		}
		verdict, err := rule.Apply(eval, map[string]any{
			"status":   resp.StatusCode,
			"headers":  headers,
			"response": body,
		})
		if err != nil {
			return StatusFailure, err
		}
		switch {
		case verdict == expression.Succeeded:
			return StatusSuccess, nil
		case verdict == expression.Failed:
			return StatusFailure, nil
		case polling:
			return StatusStillWaiting, nil
		case rule.Success == "":
			return StatusSuccess, nil
		}
		return StatusFailure, nil
	}
}

// DoStart implements lifecycle.Hooks.
func (o *Operator) DoStart() error { return nil }

// DoStop implements lifecycle.Hooks.
func (o *Operator) DoStop() error { return nil }

// DoShutdown implements lifecycle.Hooks.
func (o *Operator) DoShutdown() error { return nil }

// BuildOperation implements actor.Operator.
func (o *Operator) BuildOperation(params operation.Params) (*operation.Operation, error) {
	snap := o.current.Load()
	if snap == nil {
		return nil, &errors.StateError{Component: o.FullName(), Action: "build operation", State: "unconfigured"}
	}
	if params.Actor == "" {
		params.Actor = o.ActorName()
	}
	if params.Operation == "" {
		params.Operation = o.Name()
	}

	strategy := &Operation{
		snap:    snap,
		params:  params,
		polling: o.polling,
		builder: o.builder,
		jq:      o.jq,
		logger:  o.logger,
	}

	opts := []operation.Option{
		operation.WithDefaultTimeout(snap.timeout),
		operation.WithLogger(o.logger),
	}
	if o.guard != nil {
		opts = append(opts, operation.WithGuard(o.guard))
	}
	if o.retryWait != nil {
		opts = append(opts, operation.WithRetryWait(*o.retryWait))
	}
	return operation.New(params, strategy, opts...), nil
}
