package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/remediator/internal/operation"
)

func params(actor, op, target string) operation.Params {
	p := operation.Params{
		Actor:     actor,
		Operation: op,
		RequestID: uuid.New(),
		Executor:  operation.GoExecutor{},
		Payload:   map[string]string{"vnfType": "vFirewall"},
	}
	p.Properties.TargetEntity = target
	return p
}

func TestStatic(t *testing.T) {
	d, err := Static(operation.Permit).Evaluate(context.Background(), params("vfc", "Restart", ""))
	require.NoError(t, err)
	assert.True(t, d.Permit)

	d, err = Static(operation.Deny("maintenance window")).Evaluate(context.Background(), params("vfc", "Restart", ""))
	require.NoError(t, err)
	assert.False(t, d.Permit)
	assert.Equal(t, "maintenance window", d.Reason)
}

func TestExpression(t *testing.T) {
	g, err := NewExpression(nil, `actor != "so" && payload.vnfType == "vFirewall"`, "")
	require.NoError(t, err)

	d, err := g.Evaluate(context.Background(), params("vfc", "Restart", "vm-1"))
	require.NoError(t, err)
	assert.True(t, d.Permit)

	d, err = g.Evaluate(context.Background(), params("so", "ScaleOut", "vm-1"))
	require.NoError(t, err)
	assert.False(t, d.Permit)
	assert.Contains(t, d.Reason, "denied")
}

func TestExpression_Invalid(t *testing.T) {
	_, err := NewExpression(nil, `actor ==`, "")
	assert.Error(t, err)
}

func TestChain(t *testing.T) {
	boom := errors.New("policy engine down")
	p := params("vfc", "Restart", "")

	d, err := Chain{Static(operation.Permit), Static(operation.Permit)}.Evaluate(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, d.Permit)

	d, err = Chain{Static(operation.Permit), Static(operation.Deny("no")), Static(operation.Permit)}.Evaluate(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "no", d.Reason)

	failing := operation.GuardFunc(func(context.Context, operation.Params) (operation.Decision, error) {
		return operation.Decision{}, boom
	})
	_, err = Chain{failing, Static(operation.Permit)}.Evaluate(context.Background(), p)
	assert.ErrorIs(t, err, boom)
}

func TestFrequencyLimit(t *testing.T) {
	g := NewFrequencyLimit(2, time.Hour)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := g.Evaluate(ctx, params("vfc", "Restart", "vm-1"))
		require.NoError(t, err)
		assert.True(t, d.Permit)
	}

	d, err := g.Evaluate(ctx, params("vfc", "Restart", "vm-1"))
	require.NoError(t, err)
	assert.False(t, d.Permit)
	assert.Contains(t, d.Reason, "vfc.Restart/vm-1")

	d, err = g.Evaluate(ctx, params("vfc", "Restart", "vm-2"))
	require.NoError(t, err)
	assert.True(t, d.Permit, "limits are per target")
}

func TestFrequencyLimit_DropsRefilledBuckets(t *testing.T) {
	g := NewFrequencyLimit(1, time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	ctx := context.Background()

	for _, target := range []string{"vm-1", "vm-2", "vm-3"} {
		d, err := g.Evaluate(ctx, params("vfc", "Restart", target))
		require.NoError(t, err)
		assert.True(t, d.Permit)
	}
	assert.Len(t, g.limiters, 3)

	now = now.Add(30 * time.Second)
	d, err := g.Evaluate(ctx, params("vfc", "Restart", "vm-1"))
	require.NoError(t, err)
	assert.False(t, d.Permit)

	now = now.Add(2 * time.Minute)
	d, err = g.Evaluate(ctx, params("vfc", "Restart", "vm-1"))
	require.NoError(t, err)
	assert.True(t, d.Permit)
	assert.Len(t, g.limiters, 1, "idle buckets are evicted")
}

func TestGuardDeniesOperation(t *testing.T) {
	calls := 0
	op := operation.New(params("vfc", "Restart", "vm-1"),
		operation.StrategyFunc(func(ctx context.Context, attempt int, o *operation.Outcome) (*operation.Outcome, error) {
			calls++
			return o.SetResult(operation.Success), nil
		}),
		operation.WithGuard(Static(operation.Deny("blocked"))),
	)

	out, err := op.Start(context.Background()).Get()
	require.NoError(t, err)
	assert.Equal(t, operation.FailureGuard, out.Result)
	assert.Zero(t, calls)
}
