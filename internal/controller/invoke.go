package controller

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tombee/remediator/internal/log"
	"github.com/tombee/remediator/internal/operation"
)

// Invocation describes one operation to run.
type Invocation struct {
	Actor     string
	Operation string

	Target     string
	TargetType string
	ResourceID string
	Payload    map[string]string

	// Retry and TimeoutSec override the operator defaults when set.
	Retry      *int
	TimeoutSec *int

	// RequestID defaults to a random id.
	RequestID uuid.UUID
}

// Invoke builds and runs one operation and waits for its final outcome.
// Cancelling ctx cancels the operation.
func (c *Controller) Invoke(ctx context.Context, inv Invocation) (*operation.Outcome, error) {
	op, err := c.service.GetOperator(inv.Actor, inv.Operation)
	if err != nil {
		return nil, err
	}

	if inv.RequestID == uuid.Nil {
		inv.RequestID = uuid.New()
	}
	logger := log.WithOperation(c.logger, inv.Actor, inv.Operation, inv.RequestID.String())

	params := operation.Params{
		Actor:      inv.Actor,
		Operation:  inv.Operation,
		RequestID:  inv.RequestID,
		Retry:      inv.Retry,
		TimeoutSec: inv.TimeoutSec,
		Executor:   c.executor,
		TargetType: inv.TargetType,
		Payload:    inv.Payload,
		Properties: operation.Properties{
			TargetEntity: inv.Target,
			ResourceID:   inv.ResourceID,
		},
		StartCallback: func(o *operation.Outcome) {
			logger.Info("operation started", "target", o.Target)
		},
		CompleteCallback: func(o *operation.Outcome) {
			logger.Info("operation completed", log.ResultKey, o.Result.String(), "message", o.Message)
		},
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	built, err := op.BuildOperation(params)
	if err != nil {
		return nil, fmt.Errorf("build %s.%s: %w", inv.Actor, inv.Operation, err)
	}

	future := built.Start(ctx)
	out, err := future.Wait(ctx)
	if err != nil {
		future.Cancel()
		return out, err
	}
	return out, nil
}
