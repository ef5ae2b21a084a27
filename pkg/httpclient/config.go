package httpclient

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Config configures an HTTP client.
type Config struct {
	// Timeout is the total request timeout.
	// Default: 30s. Must be > 0.
	Timeout time.Duration

	// UserAgent is the User-Agent header value.
	// Required. Must be non-empty.
	UserAgent string

	// TLSInsecure disables certificate verification. Test labs only.
	TLSInsecure bool

	// Logger receives request logs. Default: slog.Default().
	Logger *slog.Logger

	// Base replaces the pooled http.Transport, mainly for tests.
	Base http.RoundTripper
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:   30 * time.Second,
		UserAgent: "remediator/1.0",
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0, got %v", c.Timeout)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user_agent is required and must be non-empty")
	}
	return nil
}
