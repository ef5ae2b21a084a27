package httpop

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tombee/remediator/internal/coder"
	"github.com/tombee/remediator/internal/jq"
	"github.com/tombee/remediator/internal/log"
	"github.com/tombee/remediator/internal/operation"
	"github.com/tombee/remediator/internal/operation/transport"
	"github.com/tombee/remediator/pkg/errors"
	"github.com/tombee/remediator/pkg/httpclient"
)

// DefaultRequestBuilder sends the configured method to the configured
// path. Requests other than GET and DELETE carry the invocation payload
// as a JSON object.
func DefaultRequestBuilder(cfg *Config, params operation.Params) (*transport.Request, error) {
	req := &transport.Request{
		Method:  cfg.Method,
		Path:    expandPath(cfg.Path, params),
		Headers: cfg.Headers,
	}
	if cfg.Method == http.MethodGet || cfg.Method == http.MethodDelete {
		return req, nil
	}

	payload := params.Payload
	if payload == nil {
		payload = map[string]string{}
	}
	body, err := coder.JSON.Encode(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	req.Body = []byte(body)
	return req, nil
}

func expandPath(path string, params operation.Params) string {
	return strings.NewReplacer(
		"{target}", params.Properties.TargetEntity,
		"{resourceId}", params.Properties.ResourceID,
		"{requestId}", params.RequestID.String(),
	).Replace(path)
}

// Operation is the strategy of one HTTP invocation. In polling mode it
// keeps the poll count across attempts until Reset.
type Operation struct {
	snap    *snapshot
	params  operation.Params
	polling bool
	builder RequestBuilder
	jq      *jq.Executor
	logger  *slog.Logger

	mu           sync.Mutex
	pollCount    int
	subRequestID string
}

var _ operation.Resetter = (*Operation)(nil)

// PollCount returns the number of STILL_WAITING verdicts seen by the
// current or last attempt.
func (op *Operation) PollCount() int {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.pollCount
}

// SubRequestID returns the sub-request id of the latest poll.
func (op *Operation) SubRequestID() string {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.subRequestID
}

// ResetPollCount clears the poll count and the poll sub-request id.
func (op *Operation) ResetPollCount() {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.pollCount = 0
	op.subRequestID = ""
}

// Reset implements operation.Resetter.
func (op *Operation) Reset() {
	op.ResetPollCount()
}

// Attempt implements operation.Strategy. Each attempt submits a new
// request, so it gets its own poll budget.
func (op *Operation) Attempt(ctx context.Context, attempt int, out *operation.Outcome) (*operation.Outcome, error) {
	op.ResetPollCount()
	cfg := &op.snap.config.Config
	req, err := op.builder(cfg, op.params)
	if err != nil {
		return nil, err
	}

	resp, body, err := op.execute(ctx, req, out.SubRequestID)
	if err != nil {
		return nil, err
	}
	out.Response = body

	if !resp.IsSuccess() {
		return failed(out, resp), nil
	}
	if !op.polling {
		status := StatusSuccess
		if op.snap.classifier != nil {
			if status, err = op.snap.classifier(resp, body); err != nil {
				return nil, err
			}
		}
		return settle(out, status), nil
	}
	return op.poll(ctx, out, resp, body)
}

// poll classifies resp and keeps polling while the classifier reports
// STILL_WAITING, up to MaxPolls times.
func (op *Operation) poll(ctx context.Context, out *operation.Outcome, resp *transport.Response, body any) (*operation.Outcome, error) {
	classify := op.snap.classifier
	if classify == nil {
		return nil, &errors.UnsupportedError{Operation: op.params.FullName(), Feature: "polling without a status classifier"}
	}

	target, err := op.pollTarget(ctx, resp, body)
	if err != nil {
		return nil, err
	}
	maxPolls := op.snap.config.MaxPolls

	for {
		status, err := classify(resp, body)
		if err != nil {
			return nil, err
		}
		if status != StatusStillWaiting {
			return settle(out, status), nil
		}

		count := op.incrementPolls()
		if count > maxPolls {
			out.Result = operation.FailureTimeout
			out.Message = fmt.Sprintf("still waiting after %d polls", maxPolls)
			return out, nil
		}
		if target == "" {
			return nil, fmt.Errorf("response has no Location header and pollPath is not configured")
		}

		if err := operation.Sleep(ctx, op.snap.pollWait); err != nil {
			return nil, err
		}

		sub := op.newSubRequestID()
		op.logger.Debug("polling",
			log.ActorKey, op.params.Actor,
			log.OperationKey, op.params.Operation,
			log.RequestIDKey, op.params.RequestID.String(),
			log.SubRequestIDKey, sub,
			"poll", count,
		)
		resp, body, err = op.execute(ctx, &transport.Request{
			Method:  http.MethodGet,
			Path:    target,
			Headers: op.snap.config.Headers,
		}, sub)
		if err != nil {
			return nil, err
		}
		out.Response = body
		if !resp.IsSuccess() {
			return failed(out, resp), nil
		}
	}
}

// pollTarget returns the poll URL: the Location header of the accepted
// response, else pollPath with {id} filled from the response.
func (op *Operation) pollTarget(ctx context.Context, resp *transport.Response, body any) (string, error) {
	if loc := resp.Header("Location"); loc != "" {
		return loc, nil
	}
	cfg := op.snap.config
	if cfg.PollPath == "" {
		return "", nil
	}
	path := expandPath(cfg.PollPath, op.params)
	if cfg.PollIDPath == "" {
		return path, nil
	}
	id, err := op.jq.String(ctx, cfg.PollIDPath, body)
	if err != nil {
		return "", fmt.Errorf("extract poll id: %w", err)
	}
	if id == "" {
		return "", fmt.Errorf("extract poll id: %s selected nothing", cfg.PollIDPath)
	}
	return strings.ReplaceAll(path, "{id}", id), nil
}

func (op *Operation) execute(ctx context.Context, req *transport.Request, subRequestID string) (*transport.Response, any, error) {
	ctx = httpclient.WithRequestIDs(ctx, op.params.RequestID.String(), subRequestID)
	resp, err := op.snap.client.Execute(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	body, err := decodeBody(resp)
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}

func (op *Operation) incrementPolls() int {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.pollCount++
	return op.pollCount
}

func (op *Operation) newSubRequestID() string {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.subRequestID = uuid.NewString()
	return op.subRequestID
}

// decodeBody decodes a JSON body. Bodies not labelled as JSON fall back
// to their text when they do not parse; labelled ones fail.
func decodeBody(resp *transport.Response) (any, error) {
	if len(resp.Body) == 0 {
		return nil, nil
	}
	var v any
	err := coder.JSON.Decode(string(resp.Body), &v)
	if err == nil {
		return v, nil
	}
	if mt, _, _ := mime.ParseMediaType(resp.Header("Content-Type")); strings.HasSuffix(mt, "json") {
		return nil, err
	}
	return string(resp.Body), nil
}

func failed(out *operation.Outcome, resp *transport.Response) *operation.Outcome {
	out.Result = operation.Failure
	out.Message = fmt.Sprintf("failed with status %d", resp.StatusCode)
	return out
}

func settle(out *operation.Outcome, status Status) *operation.Outcome {
	if status == StatusSuccess {
		return out.SetResult(operation.Success)
	}
	return out.SetResult(operation.Failure)
}
