package httpop

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tombee/remediator/internal/expression"
	"github.com/tombee/remediator/pkg/errors"
)

// Config holds the parameters of a request/response operator.
type Config struct {
	// ClientName selects the transport from the client registry.
	ClientName string `yaml:"clientName"`

	// Path is resolved against the client base URL. The placeholders
	// {target}, {resourceId} and {requestId} are filled per invocation.
	Path string `yaml:"path"`

	// Method defaults to POST.
	Method string `yaml:"method"`

	// TimeoutSec bounds each attempt when the caller sets no timeout.
	// Zero disables the deadline.
	TimeoutSec int `yaml:"timeoutSec"`

	// Headers are added to every request.
	Headers map[string]string `yaml:"headers"`

	expression.Rule `yaml:",inline"`
}

// PollingConfig extends Config for long-running requests.
type PollingConfig struct {
	Config `yaml:",inline"`

	// PollPath is used when the accepted response has no Location
	// header. {id} is replaced by the value PollIDPath selects from the
	// accepted response.
	PollPath   string `yaml:"pollPath"`
	PollIDPath string `yaml:"pollIDPath"`

	MaxPolls    int `yaml:"maxPolls"`
	PollWaitSec int `yaml:"pollWaitSec"`
}

// Validate implements actor.Validator.
func (c *Config) Validate() error {
	if c.ClientName == "" {
		return &errors.ValidationError{Field: "clientName", Message: "is required"}
	}
	if c.Method == "" {
		c.Method = http.MethodPost
	}
	c.Method = strings.ToUpper(c.Method)
	switch c.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return &errors.ValidationError{Field: "method", Message: fmt.Sprintf("unsupported method %q", c.Method)}
	}
	if c.TimeoutSec < 0 {
		return &errors.ValidationError{Field: "timeoutSec", Message: "must be >= 0"}
	}
	return nil
}

// Validate implements actor.Validator.
func (c *PollingConfig) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	switch {
	case c.MaxPolls < 0:
		return &errors.ValidationError{Field: "maxPolls", Message: "must be >= 0"}
	case c.PollWaitSec < 0:
		return &errors.ValidationError{Field: "pollWaitSec", Message: "must be >= 0"}
	case c.PollIDPath != "" && !strings.Contains(c.PollPath, "{id}"):
		return &errors.ValidationError{
			Field:      "pollPath",
			Message:    "must contain {id} when pollIDPath is set",
			Suggestion: "e.g. pollPath: /jobs/{id}",
		}
	}
	return nil
}
