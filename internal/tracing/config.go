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

// Package tracing installs the OpenTelemetry tracer provider used by
// operations and exports spans to the configured collectors.
package tracing

import (
	"fmt"
	"io"
	"time"

	"github.com/tombee/remediator/pkg/errors"
)

// Exporter types
const (
	ExporterOTLP     = "otlp"
	ExporterOTLPHTTP = "otlp_http"
	ExporterConsole  = "console"
)

// Config holds tracing configuration.
type Config struct {
	// Enabled controls whether spans are recorded and exported.
	Enabled bool `yaml:"enabled"`

	// ServiceName identifies this process in traces.
	ServiceName string `yaml:"service_name,omitempty"`

	// ServiceVersion is set by the CLI from build information.
	ServiceVersion string `yaml:"-"`

	// SampleRate is the fraction of root spans kept, 0 < rate <= 1.
	// Child spans follow their parent's decision.
	SampleRate float64 `yaml:"sample_rate,omitempty"`

	Exporters []ExporterConfig `yaml:"exporters,omitempty"`

	// BatchSize is the maximum number of spans per export batch.
	BatchSize int `yaml:"batch_size,omitempty"`

	// BatchInterval is how often pending spans are flushed.
	BatchInterval time.Duration `yaml:"batch_interval,omitempty"`
}

// ExporterConfig defines one export destination.
type ExporterConfig struct {
	// Type is otlp (gRPC), otlp_http or console.
	Type string `yaml:"type"`

	// Endpoint is host:port of the collector.
	Endpoint string `yaml:"endpoint,omitempty"`

	Headers map[string]string `yaml:"headers,omitempty"`

	// Insecure disables TLS.
	Insecure bool `yaml:"insecure,omitempty"`

	// CACertPath adds a CA to verify the collector certificate.
	CACertPath string `yaml:"ca_cert,omitempty"`

	// Writer receives console output. Defaults to stdout.
	Writer io.Writer `yaml:"-"`
}

// DefaultConfig returns tracing disabled with sensible batch settings.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "remediator",
		ServiceVersion: "unknown",
		SampleRate:     1.0,
		BatchSize:      512,
		BatchInterval:  5 * time.Second,
	}
}

// Validate checks the configuration. A disabled config is always valid.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return &errors.ValidationError{Field: "tracing.sample_rate", Message: "must be between 0 and 1"}
	}
	for i, e := range c.Exporters {
		field := fmt.Sprintf("tracing.exporters[%d]", i)
		switch e.Type {
		case ExporterOTLP, ExporterOTLPHTTP:
			if e.Endpoint == "" {
				return &errors.ValidationError{Field: field + ".endpoint", Message: "is required"}
			}
		case ExporterConsole:
		default:
			return &errors.ValidationError{
				Field:      field + ".type",
				Message:    fmt.Sprintf("unknown exporter type %q", e.Type),
				Suggestion: "use otlp, otlp_http or console",
			}
		}
	}
	return nil
}
