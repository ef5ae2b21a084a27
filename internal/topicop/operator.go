// Package topicop implements operators that send a request on one topic
// and wait for the correlated response on another.
package topicop

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tombee/remediator/internal/actor"
	"github.com/tombee/remediator/internal/expression"
	"github.com/tombee/remediator/internal/forwarder"
	"github.com/tombee/remediator/internal/jq"
	"github.com/tombee/remediator/internal/lifecycle"
	"github.com/tombee/remediator/internal/operation"
	"github.com/tombee/remediator/internal/topic"
	"github.com/tombee/remediator/pkg/errors"
)

// Status is a classifier verdict on a correlated response.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	// StatusStillWaiting keeps the operation listening for a later
	// response, such as a final status after an acknowledgement.
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

// Classifier decides the status of a decoded response.
type Classifier func(response any) (Status, error)

// RequestBuilder creates the request message of an invocation.
type RequestBuilder func(cfg *Config, params operation.Params) (any, error)

// KeyFunc returns the correlation keys expected on responses to request.
type KeyFunc func(ctx context.Context, request any) ([]string, error)

// Option configures an Operator.
type Option func(*Operator)

// WithClassifier replaces the expression classifier.
func WithClassifier(c Classifier) Option {
	return func(o *Operator) { o.classifier = c }
}

// WithRequestBuilder replaces DefaultRequestBuilder.
func WithRequestBuilder(b RequestBuilder) Option {
	return func(o *Operator) { o.builder = b }
}

// WithKeyFunc replaces the key derivation from requestIDPath.
func WithKeyFunc(k KeyFunc) Option {
	return func(o *Operator) { o.keys = k }
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

type snapshot struct {
	config     Config
	pair       *topic.Pair
	forwarder  *forwarder.Forwarder
	classifier Classifier
	keys       KeyFunc
	timeout    time.Duration
}

// Operator builds topic operations over the pairs of a topic.Manager.
type Operator struct {
	*actor.OperatorPartial

	topics     *topic.Manager
	classifier Classifier
	builder    RequestBuilder
	keys       KeyFunc
	guard      operation.Guard
	retryWait  *time.Duration
	eval       *expression.Evaluator
	jq         *jq.Executor
	logger     *slog.Logger
	observer   lifecycle.Observer

	current atomic.Pointer[snapshot]
}

var _ actor.Operator = (*Operator)(nil)

// NewOperator creates a topic operator.
func NewOperator(actorName, name string, topics *topic.Manager, opts ...Option) *Operator {
	o := &Operator{
		topics:  topics,
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

// Config returns the current configuration, or nil before Configure.
func (o *Operator) Config() *Config {
	s := o.current.Load()
	if s == nil {
		return nil
	}
	c := s.config
	return &c
}

// Forwarder returns the forwarder responses are matched with, or nil
// before Configure.
func (o *Operator) Forwarder() *forwarder.Forwarder {
	if s := o.current.Load(); s != nil {
		return s.forwarder
	}
	return nil
}

// DoConfigure implements lifecycle.Hooks.
func (o *Operator) DoConfigure(params map[string]any) error {
	var cfg Config
	if err := actor.Translate(params, &cfg); err != nil {
		return fmt.Errorf("configure %s: %w", o.FullName(), err)
	}
	if err := cfg.Rule.Validate(o.eval); err != nil {
		return fmt.Errorf("configure %s: %w", o.FullName(), err)
	}
	if cfg.RequestIDPath != "" {
		if err := o.jq.Validate(cfg.RequestIDPath); err != nil {
			return fmt.Errorf("configure %s: requestIDPath: %w", o.FullName(), err)
		}
	}

	pair := o.topics.GetPair(cfg.SinkTopic, cfg.SourceTopic)
	fwd, err := pair.Forwarder(cfg.Selectors...)
	if err != nil {
		return fmt.Errorf("configure %s: %w", o.FullName(), err)
	}

	keys := o.keys
	if keys == nil {
		keys = o.pathKeys(cfg.RequestIDPath)
	}
	classifier := o.classifier
	if classifier == nil {
		classifier = ruleClassifier(o.eval, cfg.Rule)
	}

	o.current.Store(&snapshot{
		config:     cfg,
		pair:       pair,
		forwarder:  fwd,
		classifier: classifier,
		keys:       keys,
		timeout:    time.Duration(cfg.TimeoutSec) * time.Second,
	})
	return nil
}

// pathKeys extracts the expected key from the request with path, or
// from its requestId field.
func (o *Operator) pathKeys(path string) KeyFunc {
	if path == "" {
		path = DefaultSelector
	}
	return func(ctx context.Context, request any) ([]string, error) {
		return o.jq.Strings(ctx, path, request)
	}
}

// ruleClassifier evaluates the rule against {response}. Without a
// success expression every response not matching the failure expression
// succeeds; with one, other responses keep the operation waiting.
func ruleClassifier(eval *expression.Evaluator, rule expression.Rule) Classifier {
	return func(response any) (Status, error) {
		verdict, err := rule.Apply(eval, map[string]any{"response": response})
		if err != nil {
			return StatusFailure, err
		}
		switch {
		case verdict == expression.Succeeded:
			return StatusSuccess, nil
		case verdict == expression.Failed:
			return StatusFailure, nil
		case rule.Success == "":
			return StatusSuccess, nil
		}
		return StatusStillWaiting, nil
	}
}

// DoStart implements lifecycle.Hooks. It subscribes the pair to its
// source topic.
func (o *Operator) DoStart() error {
	s := o.current.Load()
	if s == nil {
		return &errors.StateError{Component: o.FullName(), Action: "start", State: "unconfigured"}
	}
	return s.pair.Start()
}

// DoStop implements lifecycle.Hooks. Pairs are shared between operators
// and are stopped by their Manager.
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
		builder: o.builder,
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
