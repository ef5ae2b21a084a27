package httpop

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/remediator/internal/log"
	"github.com/tombee/remediator/internal/operation"
	"github.com/tombee/remediator/internal/operation/transport"
)

func pollingParams(maxPolls int) map[string]any {
	return map[string]any{
		"clientName":  "jobs",
		"path":        "/jobs",
		"successExpr": `response.state == "done"`,
		"failureExpr": `response.state == "error"`,
		"maxPolls":    maxPolls,
	}
}

func newPolling(t *testing.T, baseURL string, params map[string]any, opts ...Option) *Operator {
	t.Helper()
	opts = append([]Option{WithLogger(log.Discard()), WithRetryWait(time.Millisecond)}, opts...)
	o := NewPollingOperator("vfc", "Restart", registry(t, "jobs", baseURL, 0), opts...)
	return configured(t, o, params)
}

func TestPolling_SucceedsAfterTwoPolls(t *testing.T) {
	srv := newJobServer(t, true, "running", "running", "done")
	o := newPolling(t, srv.URL, pollingParams(3))

	op, err := o.BuildOperation(testParams(0))
	require.NoError(t, err)

	out := run(t, op)
	assert.Equal(t, operation.Success, out.Result)
	assert.Equal(t, 2, op.Strategy().(*Operation).PollCount())
	assert.Equal(t, 2, srv.Polls())
	assert.Equal(t, map[string]any{"jobId": "abc", "state": "done"}, out.Response)
}

func TestPolling_ExceedsMaxPolls(t *testing.T) {
	srv := newJobServer(t, true, "running", "running")
	o := newPolling(t, srv.URL, pollingParams(3))

	op, err := o.BuildOperation(testParams(0))
	require.NoError(t, err)

	out := run(t, op)
	assert.Equal(t, operation.FailureTimeout, out.Result)
	assert.Equal(t, 4, op.Strategy().(*Operation).PollCount())
	assert.Equal(t, 3, srv.Polls())
}

func TestPolling_FailureVerdict(t *testing.T) {
	srv := newJobServer(t, true, "running", "error")
	o := newPolling(t, srv.URL, pollingParams(3))

	op, err := o.BuildOperation(testParams(0))
	require.NoError(t, err)

	out := run(t, op)
	assert.Equal(t, operation.Failure, out.Result)
	assert.Equal(t, 1, op.Strategy().(*Operation).PollCount())
}

func TestPolling_AcceptedResponseSettles(t *testing.T) {
	srv := newJobServer(t, true, "done", "running")
	o := newPolling(t, srv.URL, pollingParams(3))

	op, err := o.BuildOperation(testParams(0))
	require.NoError(t, err)

	out := run(t, op)
	assert.Equal(t, operation.Success, out.Result)
	assert.Zero(t, op.Strategy().(*Operation).PollCount())
	assert.Zero(t, srv.Polls())
}

func TestPolling_PollPathFromResponse(t *testing.T) {
	srv := newJobServer(t, false, "running", "done")
	params := pollingParams(3)
	params["pollPath"] = "/jobs/{id}"
	params["pollIDPath"] = ".jobId"
	o := newPolling(t, srv.URL, params)

	op, err := o.BuildOperation(testParams(0))
	require.NoError(t, err)

	out := run(t, op)
	assert.Equal(t, operation.Success, out.Result)
	assert.Equal(t, []string{"POST /jobs", "GET /jobs/abc"}, srv.Paths())
}

func TestPolling_NoPollLocation(t *testing.T) {
	srv := newJobServer(t, false, "running", "done")
	o := newPolling(t, srv.URL, pollingParams(3))

	op, err := o.BuildOperation(testParams(0))
	require.NoError(t, err)

	out := run(t, op)
	assert.Equal(t, operation.FailureException, out.Result)
	assert.Contains(t, out.Message, "Location")
}

func TestPolling_FreshSubRequestIDPerPoll(t *testing.T) {
	srv := newJobServer(t, true, "running", "running", "done")
	o := newPolling(t, srv.URL, pollingParams(5))

	params := testParams(0)
	op, err := o.BuildOperation(params)
	require.NoError(t, err)
	run(t, op)

	subIDs, reqIDs := srv.IDs()
	require.Len(t, subIDs, 3)
	seen := map[string]bool{}
	for _, id := range subIDs {
		require.NotEmpty(t, id)
		assert.False(t, seen[id], "sub-request id %s reused", id)
		seen[id] = true
	}
	for _, id := range reqIDs {
		assert.Equal(t, params.RequestID.String(), id)
	}
	assert.Equal(t, subIDs[2], op.Strategy().(*Operation).SubRequestID())
}

func TestPolling_WithoutClassifierIsUnsupported(t *testing.T) {
	srv := newJobServer(t, true, "running", "done")
	o := newPolling(t, srv.URL, map[string]any{"clientName": "jobs", "path": "/jobs", "maxPolls": 3})

	op, err := o.BuildOperation(testParams(0))
	require.NoError(t, err)

	out := run(t, op)
	assert.Equal(t, operation.FailureException, out.Result)
	assert.Contains(t, out.Message, "not supported")
}

func TestPolling_RestartResetsPollCount(t *testing.T) {
	srv := newJobServer(t, true, "running", "running")
	o := newPolling(t, srv.URL, pollingParams(1))

	op, err := o.BuildOperation(testParams(0))
	require.NoError(t, err)
	strategy := op.Strategy().(*Operation)

	run(t, op)
	assert.Equal(t, 2, strategy.PollCount())

	out := run(t, op)
	assert.Equal(t, operation.FailureTimeout, out.Result)
	assert.Equal(t, 2, strategy.PollCount())

	strategy.ResetPollCount()
	assert.Zero(t, strategy.PollCount())
	assert.Empty(t, strategy.SubRequestID())
}

func TestPolling_EachRetryPollsItsOwnJob(t *testing.T) {
	srv := newJobServer(t, true, "running", "running")
	o := newPolling(t, srv.URL, pollingParams(1))

	op, err := o.BuildOperation(testParams(1))
	require.NoError(t, err)

	out := run(t, op)
	assert.Equal(t, operation.FailureTimeout, out.Result)
	assert.Equal(t, 2, op.Attempts())
	assert.Equal(t, 2, op.Strategy().(*Operation).PollCount())
	assert.Equal(t, 2, srv.Polls())
	assert.Equal(t, []string{"POST /jobs", "GET /jobs/abc", "POST /jobs", "GET /jobs/abc"}, srv.Paths())
}

func TestOperation_PlainRequest(t *testing.T) {
	var mu sync.Mutex
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		body, _ = io.ReadAll(r.Body)
		mu.Unlock()
		switch r.URL.Path {
		case "/vms/web-1/restart":
			_, _ = w.Write([]byte(`{"restarted":true}`))
		case "/vms/web-2/restart":
			_, _ = w.Write([]byte(`{"restarted":false}`))
		default:
			http.Error(w, "no such vm", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	o := NewOperator("vfc", "Restart", registry(t, "vms", srv.URL, 0), WithLogger(log.Discard()))
	configured(t, o, map[string]any{
		"clientName":  "vms",
		"path":        "/vms/{target}/restart",
		"successExpr": "response.restarted",
	})

	tests := []struct {
		target  string
		want    operation.Result
		message string
	}{
		{"web-1", operation.Success, "successful"},
		{"web-2", operation.Failure, "failed"},
		{"web-3", operation.Failure, "failed with status 404"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			params := testParams(0)
			params.Properties.TargetEntity = tt.target
			op, err := o.BuildOperation(params)
			require.NoError(t, err)

			out := run(t, op)
			assert.Equal(t, tt.want, out.Result)
			assert.Equal(t, tt.message, out.Message)
			assert.Equal(t, tt.target, out.Target)
		})
	}
	mu.Lock()
	defer mu.Unlock()
	assert.JSONEq(t, `{"vm":"web-1"}`, string(body))
}

func TestOperation_DefaultClassifierIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	o := NewOperator("vfc", "Ping", registry(t, "vms", srv.URL, 0), WithLogger(log.Discard()))
	configured(t, o, map[string]any{"clientName": "vms", "method": "get"})

	op, err := o.BuildOperation(testParams(0))
	require.NoError(t, err)
	out := run(t, op)
	assert.Equal(t, operation.Success, out.Result)
	assert.Equal(t, "ok", out.Response)
}

func TestOperation_CustomClassifierAndBuilder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Result", r.URL.Query().Get("want"))
	}))
	defer srv.Close()

	o := NewOperator("vfc", "Check", registry(t, "vms", srv.URL, 0),
		WithLogger(log.Discard()),
		WithRequestBuilder(func(cfg *Config, p operation.Params) (*transport.Request, error) {
			return &transport.Request{Method: http.MethodGet, Path: "check?want=" + p.Payload["want"]}, nil
		}),
		WithClassifier(func(resp *transport.Response, _ any) (Status, error) {
			if resp.Header("X-Result") == "yes" {
				return StatusSuccess, nil
			}
			return StatusFailure, nil
		}),
	)
	configured(t, o, map[string]any{"clientName": "vms"})

	params := testParams(0)
	params.Payload = map[string]string{"want": "yes"}
	op, err := o.BuildOperation(params)
	require.NoError(t, err)
	assert.Equal(t, operation.Success, run(t, op).Result)

	params.Payload = map[string]string{"want": "no"}
	op, err = o.BuildOperation(params)
	require.NoError(t, err)
	assert.Equal(t, operation.Failure, run(t, op).Result)
}

func TestOperation_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	o := NewOperator("vfc", "Restart", registry(t, "vms", srv.URL, 0), WithLogger(log.Discard()), WithRetryWait(time.Millisecond))
	configured(t, o, map[string]any{"clientName": "vms"})

	op, err := o.BuildOperation(testParams(2))
	require.NoError(t, err)
	out := run(t, op)
	assert.Equal(t, operation.FailureRetries, out.Result)
	assert.EqualValues(t, 3, calls.Load())
}

func TestOperation_TransportTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	o := NewOperator("vfc", "Restart", registry(t, "vms", srv.URL, 50*time.Millisecond), WithLogger(log.Discard()))
	configured(t, o, map[string]any{"clientName": "vms"})

	op, err := o.BuildOperation(testParams(0))
	require.NoError(t, err)
	assert.Equal(t, operation.FailureTimeout, run(t, op).Result)
}

func TestOperation_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"state":`))
	}))
	defer srv.Close()

	o := NewOperator("vfc", "Restart", registry(t, "vms", srv.URL, 0), WithLogger(log.Discard()))
	configured(t, o, map[string]any{"clientName": "vms"})

	op, err := o.BuildOperation(testParams(0))
	require.NoError(t, err)
	assert.Equal(t, operation.FailureException, run(t, op).Result)
}

func TestDefaultRequestBuilder(t *testing.T) {
	params := testParams(0)
	params.Properties.ResourceID = "r-9"

	req, err := DefaultRequestBuilder(&Config{Method: http.MethodDelete, Path: "/res/{resourceId}/{requestId}"}, params)
	require.NoError(t, err)
	assert.Equal(t, "/res/r-9/"+params.RequestID.String(), req.Path)
	assert.Nil(t, req.Body)

	params.Payload = nil
	req, err = DefaultRequestBuilder(&Config{Method: http.MethodPut, Path: "/x"}, params)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(req.Body))
}

func TestOperation_CancelStopsPolling(t *testing.T) {
	srv := newJobServer(t, true, "running", "running")
	params := pollingParams(1000)
	params["pollWaitSec"] = 1
	o := newPolling(t, srv.URL, params)

	op, err := o.BuildOperation(testParams(0))
	require.NoError(t, err)

	future := op.Start(context.Background())
	require.Eventually(t, func() bool { return op.Strategy().(*Operation).PollCount() == 1 }, time.Second, 5*time.Millisecond)
	future.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = future.Wait(ctx)
	assert.ErrorIs(t, err, operation.ErrCancelled)
	assert.Zero(t, srv.Polls())
}
