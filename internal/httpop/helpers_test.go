package httpop

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tombee/remediator/internal/log"
	"github.com/tombee/remediator/internal/operation"
	"github.com/tombee/remediator/internal/operation/transport"
	"github.com/tombee/remediator/pkg/httpclient"
)

// jobServer accepts a job on POST /jobs and answers polls of
// /jobs/{id} with the scripted states, repeating the last one.
type jobServer struct {
	*httptest.Server

	mu       sync.Mutex
	states   []string
	polls    int
	paths    []string
	subIDs   []string
	reqIDs   []string
	location bool
}

func newJobServer(t *testing.T, location bool, accepted string, states ...string) *jobServer {
	t.Helper()
	js := &jobServer{states: states, location: location}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /jobs", func(w http.ResponseWriter, r *http.Request) {
		js.record(r)
		if js.location {
			w.Header().Set("Location", "/jobs/abc")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"jobId":"abc","state":"` + accepted + `"}`))
	})
	mux.HandleFunc("GET /jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		js.record(r)
		js.mu.Lock()
		state := js.states[len(js.states)-1]
		if js.polls < len(js.states) {
			state = js.states[js.polls]
		}
		js.polls++
		js.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jobId":"` + r.PathValue("id") + `","state":"` + state + `"}`))
	})
	js.Server = httptest.NewServer(mux)
	t.Cleanup(js.Close)
	return js
}

func (js *jobServer) record(r *http.Request) {
	js.mu.Lock()
	defer js.mu.Unlock()
	js.paths = append(js.paths, r.Method+" "+r.URL.Path)
	js.subIDs = append(js.subIDs, r.Header.Get(httpclient.SubRequestIDHeader))
	js.reqIDs = append(js.reqIDs, r.Header.Get(httpclient.RequestIDHeader))
}

func (js *jobServer) Paths() []string {
	js.mu.Lock()
	defer js.mu.Unlock()
	return append([]string(nil), js.paths...)
}

func (js *jobServer) IDs() (subIDs, reqIDs []string) {
	js.mu.Lock()
	defer js.mu.Unlock()
	return append([]string(nil), js.subIDs...), append([]string(nil), js.reqIDs...)
}

func (js *jobServer) Polls() int {
	js.mu.Lock()
	defer js.mu.Unlock()
	return js.polls
}

func registry(t *testing.T, name, baseURL string, timeout time.Duration) *transport.Registry {
	t.Helper()
	r := transport.NewRegistry()
	require.NoError(t, r.Build([]transport.ClientConfig{{Name: name, BaseURL: baseURL, Timeout: timeout}}, log.Discard()))
	return r
}

func testParams(retry int) operation.Params {
	return operation.Params{
		Actor:     "vfc",
		Operation: "Restart",
		RequestID: uuid.New(),
		Retry:     operation.IntPtr(retry),
		Executor:  operation.GoExecutor{},
		Payload:   map[string]string{"vm": "web-1"},
	}
}

func run(t *testing.T, op *operation.Operation) *operation.Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := op.Start(context.Background()).Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, out)
	return out
}

func configured(t *testing.T, o *Operator, params map[string]any) *Operator {
	t.Helper()
	require.NoError(t, o.Configure(params))
	require.NoError(t, o.Start())
	return o
}
