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

// Package config loads the remediator configuration file.
package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/remediator/internal/operation/transport"
	"github.com/tombee/remediator/internal/topic"
	"github.com/tombee/remediator/internal/tracing"
	"github.com/tombee/remediator/pkg/errors"
)

// Bus types.
const (
	BusMemory = "memory"
	BusRedis  = "redis"
)

// Operator kinds, set with the "kind" key of an operation.
const (
	KindHTTP        = "http"
	KindHTTPPolling = "http_polling"
	KindTopic       = "topic"
)

// KindKey is the operation parameter selecting the operator kind.
const KindKey = "kind"

// Config is the complete remediator configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Executor ExecutorConfig `yaml:"executor"`
	Bus      BusConfig      `yaml:"bus"`
	Guard    GuardConfig    `yaml:"guard"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  tracing.Config `yaml:"tracing"`

	// EventLog is a file receiving lifecycle events as JSON lines.
	// Empty disables the event log.
	EventLog string `yaml:"event_log,omitempty"`

	HTTPClients []transport.ClientConfig `yaml:"http_clients,omitempty"`

	// Actors maps actor names to their parameters. Each actor lists its
	// operations under "operations"; every operation names its kind.
	Actors map[string]map[string]any `yaml:"actors"`
}

// LogConfig configures logging. Set fields override the environment.
type LogConfig struct {
	Level     string `yaml:"level,omitempty"`
	Format    string `yaml:"format,omitempty"`
	AddSource bool   `yaml:"add_source,omitempty"`
}

// ExecutorConfig bounds operation concurrency.
type ExecutorConfig struct {
	// PoolSize limits concurrently running operations. Zero starts a
	// goroutine per operation.
	PoolSize int `yaml:"pool_size"`
}

// BusConfig selects the message bus behind topic operations.
type BusConfig struct {
	Type  string            `yaml:"type"`
	Redis topic.RedisConfig `yaml:"redis,omitempty"`
}

// GuardConfig configures the guards applied to every operation.
type GuardConfig struct {
	// Expression must evaluate to true for an operation to run.
	Expression  string `yaml:"expression,omitempty"`
	DenyMessage string `yaml:"deny_message,omitempty"`

	FrequencyLimit *FrequencyLimitConfig `yaml:"frequency_limit,omitempty"`
}

// FrequencyLimitConfig allows Count operations per target in Window.
type FrequencyLimitConfig struct {
	Count  int           `yaml:"count"`
	Window time.Duration `yaml:"window"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address serving /metrics. Empty disables it.
	Listen string `yaml:"listen,omitempty"`
}

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		Bus:     BusConfig{Type: BusMemory},
		Tracing: tracing.DefaultConfig(),
	}
}

// Load reads, expands and validates the configuration at path.
func Load(path string) (*Config, error) {
	path, err := expandHome(path)
	if err != nil {
		return nil, &errors.ConfigError{Key: "config_file", Reason: "cannot resolve path", Cause: err}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errors.ConfigError{
			Key:    "config_file",
			Reason: fmt.Sprintf("failed to load from %s", path),
			Cause:  err,
		}
	}
	return Parse(data)
}

// Parse expands ${VAR} references in data and decodes it.
func Parse(data []byte) (*Config, error) {
	expanded, err := expandEnv(string(data), os.LookupEnv)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, &errors.ConfigError{Key: "config_file", Reason: "failed to parse YAML", Cause: err}
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, &errors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Bus.Type == "" {
		c.Bus.Type = BusMemory
	}
	if c.Bus.Type == BusRedis && c.Bus.Redis.Addr == "" {
		c.Bus.Redis.Addr = "localhost:6379"
	}
	if c.Guard.DenyMessage == "" {
		c.Guard.DenyMessage = "denied by policy"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "remediator"
	}
}

// Validate checks the configuration. HTTP clients and operation
// parameters are validated in full when they are built.
func (c *Config) Validate() error {
	switch c.Bus.Type {
	case BusMemory, BusRedis:
	default:
		return &errors.ValidationError{
			Field:      "bus.type",
			Message:    fmt.Sprintf("unknown bus type %q", c.Bus.Type),
			Suggestion: "use memory or redis",
		}
	}
	if c.Executor.PoolSize < 0 {
		return &errors.ValidationError{Field: "executor.pool_size", Message: "must be >= 0"}
	}
	if fl := c.Guard.FrequencyLimit; fl != nil && (fl.Count <= 0 || fl.Window <= 0) {
		return &errors.ValidationError{Field: "guard.frequency_limit", Message: "count and window must be > 0"}
	}

	if err := c.Tracing.Validate(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.HTTPClients))
	for _, hc := range c.HTTPClients {
		if seen[hc.Name] {
			return &errors.ValidationError{Field: "http_clients", Message: "duplicate client name " + hc.Name}
		}
		seen[hc.Name] = true
	}

	for _, name := range c.ActorNames() {
		for op, kind := range c.OperationKinds(name) {
			switch kind {
			case KindHTTP, KindHTTPPolling, KindTopic:
			default:
				return &errors.ValidationError{
					Field:      fmt.Sprintf("actors.%s.operations.%s.kind", name, op),
					Message:    fmt.Sprintf("unknown operator kind %q", kind),
					Suggestion: "use http, http_polling or topic",
				}
			}
		}
	}
	return nil
}

// ActorNames returns the configured actor names, sorted.
func (c *Config) ActorNames() []string {
	names := make([]string, 0, len(c.Actors))
	for name := range c.Actors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OperationKinds returns the operator kind of each operation of actor.
func (c *Config) OperationKinds(actor string) map[string]string {
	ops, _ := c.Actors[actor]["operations"].(map[string]any)
	kinds := make(map[string]string, len(ops))
	for name, v := range ops {
		params, _ := v.(map[string]any)
		kind, _ := params[KindKey].(string)
		kinds[name] = kind
	}
	return kinds
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references. Unset variables are an error so
// that secrets are never silently empty.
func expandEnv(s string, lookup func(string) (string, bool)) (string, error) {
	var missing []string
	out := envRef.ReplaceAllStringFunc(s, func(ref string) string {
		name := ref[2 : len(ref)-1]
		v, ok := lookup(name)
		if !ok {
			missing = append(missing, name)
		}
		return v
	})
	if len(missing) > 0 {
		return "", &errors.ConfigError{
			Key:    "env",
			Reason: "undefined environment variables: " + strings.Join(missing, ", "),
		}
	}
	return out, nil
}
