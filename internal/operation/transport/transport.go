// Package transport executes HTTP requests against named downstream
// clients on behalf of HTTP operations.
//
// A Transport is built from a ClientConfig and adds the client's base URL,
// default headers, authentication and rate limit to every request.
// Responses with error statuses are returned as responses, not errors, so
// operations can classify them; only failures to complete the exchange
// are reported as *TransportError.
package transport

import (
	"context"
	"net/http"
)

// Transport executes requests for one downstream client.
type Transport interface {
	// Execute sends req and returns the response, whatever its status.
	Execute(ctx context.Context, req *Request) (*Response, error)

	// Name returns the client name.
	Name() string

	// BaseURL returns the URL relative paths are resolved against.
	BaseURL() string
}

// Request is a downstream HTTP request.
type Request struct {
	// Method is the HTTP method (GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS)
	Method string

	// Path is resolved against the client base URL unless it is an
	// absolute URL, as found in Location headers.
	Path string

	// Headers override the client default headers.
	Headers map[string]string

	// Body is the request body
	Body []byte
}

// Response is a downstream HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Header returns the first value of the named header.
func (r *Response) Header(name string) string {
	return r.Headers.Get(name)
}
