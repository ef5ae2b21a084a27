package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/tombee/remediator/pkg/errors"
	"github.com/tombee/remediator/pkg/httpclient"
)

// DefaultTimeout bounds a request when the client config sets none.
const DefaultTimeout = 30 * time.Second

// ClientConfig describes one named downstream HTTP client.
type ClientConfig struct {
	Name    string            `yaml:"name"`
	BaseURL string            `yaml:"base_url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`

	Auth      *AuthConfig      `yaml:"auth"`
	RateLimit *RateLimitConfig `yaml:"rate_limit"`

	// TLSInsecure disables certificate verification. Test labs only.
	TLSInsecure bool   `yaml:"tls_insecure"`
	UserAgent   string `yaml:"user_agent"`
}

// AuthConfig configures request authentication.
type AuthConfig struct {
	// Type is "bearer", "basic", "api_key" or "oauth2".
	Type string `yaml:"type"`

	Token string `yaml:"token"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	HeaderName  string `yaml:"header_name"`
	HeaderValue string `yaml:"header_value"`

	// OAuth2 client credentials flow.
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	TokenURL     string   `yaml:"token_url"`
	Scopes       []string `yaml:"scopes"`
}

// RateLimitConfig bounds the request rate of one client.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Validate checks if the configuration is valid.
func (c *ClientConfig) Validate() error {
	if c.Name == "" {
		return &errors.ValidationError{Field: "name", Message: "is required"}
	}
	field := func(f string) string { return "http_clients." + c.Name + "." + f }

	u, err := url.Parse(c.BaseURL)
	switch {
	case c.BaseURL == "":
		return &errors.ValidationError{Field: field("base_url"), Message: "is required"}
	case err != nil:
		return &errors.ValidationError{Field: field("base_url"), Message: err.Error()}
	case u.Scheme != "http" && u.Scheme != "https":
		return &errors.ValidationError{Field: field("base_url"), Message: fmt.Sprintf("scheme must be http or https, got %q", u.Scheme)}
	case u.Host == "":
		return &errors.ValidationError{Field: field("base_url"), Message: "must include host"}
	}

	if c.Timeout < 0 {
		return &errors.ValidationError{Field: field("timeout"), Message: "must be non-negative"}
	}
	if c.RateLimit != nil && c.RateLimit.RequestsPerSecond <= 0 {
		return &errors.ValidationError{Field: field("rate_limit.requests_per_second"), Message: "must be > 0"}
	}
	if c.Auth != nil {
		if err := c.Auth.validate(); err != nil {
			return &errors.ValidationError{Field: field("auth"), Message: err.Error()}
		}
	}
	return nil
}

func (a *AuthConfig) validate() error {
	switch a.Type {
	case "bearer":
		if a.Token == "" {
			return fmt.Errorf("token is required for bearer auth")
		}
	case "basic":
		if a.Username == "" || a.Password == "" {
			return fmt.Errorf("username and password are required for basic auth")
		}
	case "api_key":
		if a.HeaderName == "" || a.HeaderValue == "" {
			return fmt.Errorf("header_name and header_value are required for api_key auth")
		}
	case "oauth2":
		if a.ClientID == "" || a.ClientSecret == "" || a.TokenURL == "" {
			return fmt.Errorf("client_id, client_secret and token_url are required for oauth2 auth")
		}
	default:
		return fmt.Errorf("invalid auth type %q (must be bearer, basic, api_key or oauth2)", a.Type)
	}
	return nil
}

// HTTPTransport implements Transport over net/http.
type HTTPTransport struct {
	config  ClientConfig
	base    *url.URL
	client  *http.Client
	limiter *rate.Limiter
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a transport for cfg.
func NewHTTPTransport(cfg ClientConfig, logger *slog.Logger) (*HTTPTransport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, _ := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")

	hc := httpclient.DefaultConfig()
	if cfg.Timeout > 0 {
		hc.Timeout = cfg.Timeout
	}
	if cfg.UserAgent != "" {
		hc.UserAgent = cfg.UserAgent
	}
	hc.TLSInsecure = cfg.TLSInsecure
	if logger != nil {
		hc.Logger = logger.With("client", cfg.Name)
	}

	client, err := httpclient.New(hc)
	if err != nil {
		return nil, err
	}

	if cfg.Auth != nil && cfg.Auth.Type == "oauth2" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			TokenURL:     cfg.Auth.TokenURL,
			Scopes:       cfg.Auth.Scopes,
		}
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{
			Transport: client.Transport,
			Timeout:   hc.Timeout,
		})
		client.Transport = &oauth2.Transport{
			Source: cc.TokenSource(tokenCtx),
			Base:   client.Transport,
		}
	}

	t := &HTTPTransport{config: cfg, base: base, client: client}
	if rl := cfg.RateLimit; rl != nil {
		burst := rl.Burst
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(rl.RequestsPerSecond), burst)
	}
	return t, nil
}

// Name implements Transport.
func (t *HTTPTransport) Name() string {
	return t.config.Name
}

// BaseURL implements Transport.
func (t *HTTPTransport) BaseURL() string {
	return t.config.BaseURL
}

// Resolve returns the absolute URL for path.
func (t *HTTPTransport) Resolve(path string) (string, error) {
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", err
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	return t.base.ResolveReference(ref).String(), nil
}

// Execute implements Transport.
func (t *HTTPTransport) Execute(ctx context.Context, req *Request) (*Response, error) {
	if req.Method == "" {
		return nil, t.invalid(fmt.Errorf("method is required"))
	}
	target, err := t.Resolve(req.Path)
	if err != nil {
		return nil, t.invalid(fmt.Errorf("invalid path %q: %w", req.Path, err))
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, classify(t.config.Name, fmt.Errorf("rate limit wait: %w", ctxErr(ctx, err)))
		}
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, t.invalid(err)
	}

	for k, v := range t.config.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	t.applyAuth(httpReq)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, &TransportError{Type: ErrorTypeAuth, Client: t.config.Name, Message: "cannot obtain oauth2 token", Cause: err}
		}
		return nil, classify(t.config.Name, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, classify(t.config.Name, fmt.Errorf("read response body: %w", err))
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       data,
	}, nil
}

func (t *HTTPTransport) applyAuth(req *http.Request) {
	auth := t.config.Auth
	if auth == nil {
		return
	}
	switch auth.Type {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	case "basic":
		req.SetBasicAuth(auth.Username, auth.Password)
	case "api_key":
		req.Header.Set(auth.HeaderName, auth.HeaderValue)
	}
}

func (t *HTTPTransport) invalid(err error) *TransportError {
	return &TransportError{Type: ErrorTypeInvalidReq, Client: t.config.Name, Message: err.Error(), Cause: err}
}

// ctxErr prefers the context's own error, since rate.Limiter reports a
// wait that would outlive the deadline with a plain error.
func ctxErr(ctx context.Context, err error) error {
	if _, ok := ctx.Deadline(); ok && ctx.Err() == nil {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
