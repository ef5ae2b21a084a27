package httpclient

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Headers carrying invocation correlation ids.
const (
	RequestIDHeader    = "X-Request-ID"
	SubRequestIDHeader = "X-Sub-Request-ID"
)

type requestIDsKey struct{}

type requestIDs struct {
	requestID    string
	subRequestID string
}

// WithRequestIDs stores the request and sub-request ids to send with
// requests made with ctx.
func WithRequestIDs(ctx context.Context, requestID, subRequestID string) context.Context {
	return context.WithValue(ctx, requestIDsKey{}, requestIDs{requestID, subRequestID})
}

// RequestIDs returns the ids stored by WithRequestIDs.
func RequestIDs(ctx context.Context) (requestID, subRequestID string) {
	ids, _ := ctx.Value(requestIDsKey{}).(requestIDs)
	return ids.requestID, ids.subRequestID
}

// loggingTransport logs every round trip and adds the User-Agent and
// correlation headers.
type loggingTransport struct {
	base      http.RoundTripper
	userAgent string
	logger    *slog.Logger
}

func newLoggingTransport(base http.RoundTripper, userAgent string, logger *slog.Logger) *loggingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &loggingTransport{base: base, userAgent: userAgent, logger: logger}
}

// RoundTrip implements http.RoundTripper.
func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	// RoundTrippers must not modify the caller's request.
	req = req.Clone(req.Context())
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	requestID, subRequestID := RequestIDs(req.Context())
	if requestID != "" {
		req.Header.Set(RequestIDHeader, requestID)
	}
	if subRequestID != "" {
		req.Header.Set(SubRequestIDHeader, subRequestID)
	}

	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start).Milliseconds()

	attrs := []any{
		"method", req.Method,
		"url", sanitizeURL(req.URL),
		"duration_ms", duration,
	}
	if subRequestID != "" {
		attrs = append(attrs, "sub_request_id", subRequestID)
	}

	if err != nil {
		t.logger.Warn("http request failed", append(attrs, "error", err.Error())...)
		return resp, err
	}

	level := slog.LevelDebug
	if resp.StatusCode >= 400 {
		level = slog.LevelWarn
	}
	t.logger.Log(req.Context(), level, "http request", append(attrs, "status", resp.StatusCode)...)
	return resp, nil
}
