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

// Package invoke implements the invoke command, which runs a single
// operation against the configured actors and prints its outcome.
package invoke

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tombee/remediator/internal/commands/shared"
	"github.com/tombee/remediator/internal/controller"
	"github.com/tombee/remediator/internal/log"
	"github.com/tombee/remediator/internal/operation"
)

type options struct {
	target     string
	targetType string
	resourceID string
	requestID  string
	payload    map[string]string
	retry      int
	timeout    int
}

// OutcomeView is the JSON form of an operation outcome.
type OutcomeView struct {
	Actor        string    `json:"actor"`
	Operation    string    `json:"operation"`
	Target       string    `json:"target,omitempty"`
	RequestID    string    `json:"request_id"`
	SubRequestID string    `json:"sub_request_id,omitempty"`
	Result       string    `json:"result"`
	Message      string    `json:"message,omitempty"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	DurationMs   int64     `json:"duration_ms"`
	Response     any       `json:"response,omitempty"`
}

// NewCommand creates the invoke command
func NewCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "invoke ACTOR OPERATION",
		Short: "Run one operation and print its outcome",
		Long: `Invoke starts the actors from the configuration, runs a single
operation and waits for its final outcome. Retries, timeouts and guards
apply as they would for any other caller.

The command exits 0 when the outcome is SUCCESS and 1 otherwise.`,
		Example: `  remediator invoke VFC Restart --target vm-17
  remediator invoke APPC Lock --target vnf-3 --payload action=lock --retry 2 --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoke(cmd, args[0], args[1], opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.target, "target", "", "Target entity of the operation")
	f.StringVar(&opts.targetType, "target-type", "", "Target type, such as VM or VNF")
	f.StringVar(&opts.resourceID, "resource-id", "", "Resource identifier")
	f.StringVar(&opts.requestID, "request-id", "", "Request id (default: random)")
	f.StringToStringVar(&opts.payload, "payload", nil, "Payload entries as key=value")
	f.IntVar(&opts.retry, "retry", 0, "Number of retries (default: operator setting)")
	f.IntVar(&opts.timeout, "timeout", 0, "Timeout per attempt in seconds (default: operator setting)")

	return cmd
}

func runInvoke(cmd *cobra.Command, actorName, opName string, opts options) error {
	inv := controller.Invocation{
		Actor:      actorName,
		Operation:  opName,
		Target:     opts.target,
		TargetType: opts.targetType,
		ResourceID: opts.resourceID,
		Payload:    opts.payload,
		RequestID:  uuid.New(),
	}
	if opts.requestID != "" {
		id, err := uuid.Parse(opts.requestID)
		if err != nil {
			return fmt.Errorf("invalid --request-id: %w", err)
		}
		inv.RequestID = id
	}
	if cmd.Flags().Changed("retry") {
		inv.Retry = operation.IntPtr(opts.retry)
	}
	if cmd.Flags().Changed("timeout") {
		inv.TimeoutSec = operation.IntPtr(opts.timeout)
	}

	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	logger := shared.NewLogger(cfg)

	tp, err := shared.SetupTracing(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("flushing spans", log.Error(err))
		}
	}()

	c, err := controller.New(cfg, controller.Options{Logger: logger})
	if err != nil {
		return shared.NewInvalidConfigError("cannot build actors", err)
	}
	if err := c.Start(); err != nil {
		_ = c.Shutdown(context.Background())
		return err
	}
	defer func() {
		if err := c.Shutdown(context.Background()); err != nil {
			logger.Warn("shutdown incomplete", log.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := c.Invoke(ctx, inv)
	if out == nil {
		return err
	}
	if perr := render(cmd, inv, out); perr != nil {
		return perr
	}
	if !out.IsSuccess() {
		return shared.NewOperationFailedError(fmt.Sprintf("%s.%s finished with %s", actorName, opName, out.Result))
	}
	return nil
}

func render(cmd *cobra.Command, inv controller.Invocation, out *operation.Outcome) error {
	w := cmd.OutOrStdout()
	if shared.GetJSON() {
		view := OutcomeView{
			Actor:        out.Actor,
			Operation:    out.Operation,
			Target:       out.Target,
			RequestID:    inv.RequestID.String(),
			SubRequestID: out.SubRequestID,
			Result:       out.Result.String(),
			Message:      out.Message,
			Start:        out.Start,
			End:          out.End,
			DurationMs:   out.Duration().Milliseconds(),
			Response:     out.Response,
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(view); err != nil {
			return fmt.Errorf("failed to marshal outcome: %w", err)
		}
		return nil
	}

	fmt.Fprintf(w, "%s.%s %s", out.Actor, out.Operation, out.Result)
	if out.Message != "" {
		fmt.Fprintf(w, ": %s", out.Message)
	}
	fmt.Fprintf(w, " (%s)\n", out.Duration().Round(time.Millisecond))
	return nil
}
