package topicop

import (
	"github.com/tombee/remediator/internal/expression"
	"github.com/tombee/remediator/pkg/errors"
)

// DefaultSelector extracts the correlation key from responses when no
// selectors are configured.
const DefaultSelector = ".requestId"

// Config holds the parameters of a topic operator.
type Config struct {
	// SinkTopic receives requests; SourceTopic carries the responses.
	SinkTopic   string `yaml:"sinkTopic"`
	SourceTopic string `yaml:"sourceTopic"`

	// TimeoutSec bounds each attempt when the caller sets no timeout.
	TimeoutSec int `yaml:"timeoutSec"`

	// Selectors are jq queries extracting correlation keys from
	// responses.
	Selectors []string `yaml:"selectors"`

	// RequestIDPath is a jq query extracting the expected key from the
	// outgoing request, .requestId by default. When it yields nothing the
	// invocation request id is used.
	RequestIDPath string `yaml:"requestIDPath"`

	expression.Rule `yaml:",inline"`
}

// Validate implements actor.Validator.
func (c *Config) Validate() error {
	switch {
	case c.SinkTopic == "":
		return &errors.ValidationError{Field: "sinkTopic", Message: "is required"}
	case c.SourceTopic == "":
		return &errors.ValidationError{Field: "sourceTopic", Message: "is required"}
	case c.TimeoutSec < 0:
		return &errors.ValidationError{Field: "timeoutSec", Message: "must be >= 0"}
	}
	if len(c.Selectors) == 0 {
		c.Selectors = []string{DefaultSelector}
	}
	for _, s := range c.Selectors {
		if s == "" {
			return &errors.ValidationError{Field: "selectors", Message: "must not contain empty queries"}
		}
	}
	return nil
}
