// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package controller assembles actors, operators and their transports
// from a configuration and runs them.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tombee/remediator/internal/actor"
	"github.com/tombee/remediator/internal/config"
	"github.com/tombee/remediator/internal/expression"
	"github.com/tombee/remediator/internal/guard"
	"github.com/tombee/remediator/internal/httpop"
	"github.com/tombee/remediator/internal/jq"
	"github.com/tombee/remediator/internal/lifecycle"
	"github.com/tombee/remediator/internal/log"
	"github.com/tombee/remediator/internal/operation"
	"github.com/tombee/remediator/internal/operation/transport"
	"github.com/tombee/remediator/internal/topic"
	"github.com/tombee/remediator/internal/topicop"
)

// Options configures a Controller.
type Options struct {
	Logger *slog.Logger

	// Bus replaces the bus selected by the configuration. The
	// controller does not close it.
	Bus topic.Bus

	// RetryWait overrides the delay between attempts.
	RetryWait time.Duration
}

// Controller owns the actor service and everything its operators use.
type Controller struct {
	logger    *slog.Logger
	executor  operation.Executor
	clients   *transport.Registry
	bus       topic.Bus
	ownsBus   bool
	topics    *topic.Manager
	service   *actor.Service
	eventLog  *lifecycle.EventLog
	eval      *expression.Evaluator
	jq        *jq.Executor
	retryWait time.Duration

	mu      sync.Mutex
	cfg     *config.Config
	guard   operation.Guard
	metrics *http.Server
}

// New builds a controller from cfg. Nothing is started.
func New(cfg *config.Config, opts Options) (*Controller, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		logger:    log.WithComponent(logger, "controller"),
		clients:   transport.NewRegistry(),
		eval:      expression.New(),
		jq:        jq.Default(),
		retryWait: opts.RetryWait,
		cfg:       cfg,
	}

	if cfg.Executor.PoolSize > 0 {
		c.executor = operation.NewPoolExecutor(cfg.Executor.PoolSize)
	} else {
		c.executor = operation.GoExecutor{}
	}

	if err := c.clients.Build(cfg.HTTPClients, logger); err != nil {
		return nil, fmt.Errorf("http clients: %w", err)
	}

	g, err := buildGuard(c.eval, cfg.Guard)
	if err != nil {
		return nil, fmt.Errorf("guard: %w", err)
	}
	c.guard = g

	switch {
	case opts.Bus != nil:
		c.bus = opts.Bus
	case cfg.Bus.Type == config.BusRedis:
		c.bus = topic.DialRedis(cfg.Bus.Redis, logger)
		c.ownsBus = true
	default:
		c.bus = topic.NewMemoryBus()
		c.ownsBus = true
	}
	c.topics = topic.NewManager(c.bus, topic.WithExecutor(c.jq), topic.WithLogger(logger))

	var lopts []lifecycle.Option
	if cfg.EventLog != "" {
		c.eventLog = lifecycle.NewEventLog(cfg.EventLog)
		lopts = append(lopts, lifecycle.WithObserver(c.eventLog))
	}
	c.service = actor.NewService(logger, lopts...)

	for _, name := range cfg.ActorNames() {
		if err := c.service.Register(c.buildActor(name, cfg.OperationKinds(name), logger)); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Controller) buildActor(name string, kinds map[string]string, logger *slog.Logger) actor.Actor {
	aopts := []actor.Option{actor.WithLogger(logger)}
	if c.eventLog != nil {
		aopts = append(aopts, actor.WithObserver(c.eventLog))
	}
	a := actor.New(name, aopts...)

	for _, op := range slices.Sorted(maps.Keys(kinds)) {
		switch kinds[op] {
		case config.KindHTTP, config.KindHTTPPolling:
			opts := []httpop.Option{
				httpop.WithGuard(c),
				httpop.WithEvaluator(c.eval),
				httpop.WithJQ(c.jq),
				httpop.WithLogger(logger),
			}
			if c.eventLog != nil {
				opts = append(opts, httpop.WithObserver(c.eventLog))
			}
			if c.retryWait > 0 {
				opts = append(opts, httpop.WithRetryWait(c.retryWait))
			}
			if kinds[op] == config.KindHTTPPolling {
				a.AddOperator(httpop.NewPollingOperator(name, op, c.clients, opts...))
			} else {
				a.AddOperator(httpop.NewOperator(name, op, c.clients, opts...))
			}
		case config.KindTopic:
			opts := []topicop.Option{
				topicop.WithGuard(c),
				topicop.WithEvaluator(c.eval),
				topicop.WithJQ(c.jq),
				topicop.WithLogger(logger),
			}
			if c.eventLog != nil {
				opts = append(opts, topicop.WithObserver(c.eventLog))
			}
			if c.retryWait > 0 {
				opts = append(opts, topicop.WithRetryWait(c.retryWait))
			}
			a.AddOperator(topicop.NewOperator(name, op, c.topics, opts...))
		}
	}
	return a
}

// buildGuard chains the configured guards. With none configured every
// operation is permitted.
func buildGuard(eval *expression.Evaluator, cfg config.GuardConfig) (operation.Guard, error) {
	var chain guard.Chain
	if cfg.Expression != "" {
		g, err := guard.NewExpression(eval, cfg.Expression, cfg.DenyMessage)
		if err != nil {
			return nil, err
		}
		chain = append(chain, g)
	}
	if fl := cfg.FrequencyLimit; fl != nil {
		chain = append(chain, guard.NewFrequencyLimit(fl.Count, fl.Window))
	}
	if len(chain) == 0 {
		return guard.Static(operation.Permit), nil
	}
	return chain, nil
}

// Evaluate implements operation.Guard with the guard of the current
// configuration, so reloads apply to operations built earlier.
func (c *Controller) Evaluate(ctx context.Context, p operation.Params) (operation.Decision, error) {
	c.mu.Lock()
	g := c.guard
	c.mu.Unlock()
	return g.Evaluate(ctx, p)
}

// Service returns the actor service.
func (c *Controller) Service() *actor.Service {
	return c.service
}

// Config returns the configuration in effect.
func (c *Controller) Config() *config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Validate configures every operator with its parameters and reports
// all failures. The service fan-out only logs operator errors, so this
// is the way to surface them before Start.
func (c *Controller) Validate() error {
	cfg := c.Config()
	var errs []error
	for _, name := range c.service.Names() {
		a, err := c.service.GetActor(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, op := range a.Operators() {
			params := actor.MakeOperatorParameters(cfg.Actors[name], op.Name())
			if err := op.Configure(params); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", op.FullName(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// Start configures and starts all actors and the metrics endpoint.
func (c *Controller) Start() error {
	cfg := c.Config()
	if err := c.service.Configure(actorParams(cfg)); err != nil {
		return fmt.Errorf("configure actors: %w", err)
	}
	if err := c.service.Start(); err != nil {
		return fmt.Errorf("start actors: %w", err)
	}
	c.logger.Info("actors started", "actors", c.service.Names())

	if cfg.Metrics.Listen != "" {
		c.startMetrics(cfg.Metrics.Listen)
	}
	return nil
}

// Reload applies a new configuration: stop, configure, start. Actors
// and operations added to the file need a restart; their parameters,
// the HTTP clients and the guards change in place.
func (c *Controller) Reload(cfg *config.Config) error {
	g, err := buildGuard(c.eval, cfg.Guard)
	if err != nil {
		return fmt.Errorf("guard: %w", err)
	}
	if err := c.clients.Build(cfg.HTTPClients, c.logger); err != nil {
		return fmt.Errorf("http clients: %w", err)
	}
	for _, name := range cfg.ActorNames() {
		if _, err := c.service.GetActor(name); err != nil {
			c.logger.Warn("new actor ignored until restart", log.ActorKey, name)
		}
	}

	c.mu.Lock()
	c.cfg = cfg
	c.guard = g
	c.mu.Unlock()

	if err := c.service.Stop(); err != nil {
		c.logger.Warn("stopping actors for reload", log.Error(err))
	}
	if err := c.service.Configure(actorParams(cfg)); err != nil {
		return fmt.Errorf("configure actors: %w", err)
	}
	if err := c.service.Start(); err != nil {
		return fmt.Errorf("start actors: %w", err)
	}
	c.logger.Info("configuration applied")
	return nil
}

// Shutdown stops the actors, the topic pairs and the metrics endpoint.
func (c *Controller) Shutdown(ctx context.Context) error {
	var errs []error
	if err := c.service.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("shutdown actors: %w", err))
	}
	c.topics.Stop()
	if c.ownsBus {
		if err := c.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close bus: %w", err))
		}
	}

	c.mu.Lock()
	srv := c.metrics
	c.metrics = nil
	c.mu.Unlock()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}

	if c.eventLog != nil {
		if err := c.eventLog.Err(); err != nil {
			c.logger.Warn("lifecycle event log had write errors", log.Error(err))
		}
	}
	return errors.Join(errs...)
}

func (c *Controller) startMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !c.service.IsAlive() {
			http.Error(w, "actors not running", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	c.mu.Lock()
	c.metrics = srv
	c.mu.Unlock()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("metrics server failed", log.Error(err))
		}
	}()
	c.logger.Info("metrics endpoint listening", "addr", addr)
}

func actorParams(cfg *config.Config) map[string]any {
	params := make(map[string]any, len(cfg.Actors))
	for name, p := range cfg.Actors {
		params[name] = p
	}
	return params
}
