package httpop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/remediator/internal/actor"
	"github.com/tombee/remediator/internal/log"
	"github.com/tombee/remediator/pkg/errors"
)

func TestOperator_Names(t *testing.T) {
	o := NewPollingOperator("vfc", "Restart", registry(t, "jobs", "http://jobs.local", 0))
	assert.Equal(t, "Restart", o.Name())
	assert.Equal(t, "vfc", o.ActorName())
	assert.Equal(t, "vfc.Restart", o.FullName())
	assert.True(t, o.IsPolling())
	assert.False(t, NewOperator("vfc", "Ping", nil).IsPolling())
}

func TestOperator_BuildBeforeConfigure(t *testing.T) {
	o := NewOperator("vfc", "Restart", registry(t, "jobs", "http://jobs.local", 0))
	_, err := o.BuildOperation(testParams(0))

	var se *errors.StateError
	require.True(t, errors.As(err, &se))
	assert.Nil(t, o.Config())
}

func TestOperator_Configure(t *testing.T) {
	clients := registry(t, "jobs", "http://jobs.local", 0)

	tests := []struct {
		name    string
		polling bool
		params  map[string]any
		wantErr string
	}{
		{"minimal", false, map[string]any{"clientName": "jobs"}, ""},
		{"missing client name", false, map[string]any{"path": "/x"}, "clientName"},
		{"unknown client", false, map[string]any{"clientName": "nope"}, "not found"},
		{"bad method", false, map[string]any{"clientName": "jobs", "method": "TRACE"}, "unsupported method"},
		{"bad expression", false, map[string]any{"clientName": "jobs", "successExpr": "response.("}, "failed to compile expression"},
		{"negative timeout", false, map[string]any{"clientName": "jobs", "timeoutSec": -1}, "timeoutSec"},
		{"polling", true, map[string]any{"clientName": "jobs", "pollPath": "/jobs/{id}", "pollIDPath": ".id", "maxPolls": 3}, ""},
		{"poll id without placeholder", true, map[string]any{"clientName": "jobs", "pollPath": "/jobs", "pollIDPath": ".id"}, "{id}"},
		{"bad poll id path", true, map[string]any{"clientName": "jobs", "pollPath": "/jobs/{id}", "pollIDPath": ".["}, "pollIDPath"},
		{"negative max polls", true, map[string]any{"clientName": "jobs", "maxPolls": -1}, "maxPolls"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var o *Operator
			if tt.polling {
				o = NewPollingOperator("vfc", "Restart", clients, WithLogger(log.Discard()))
			} else {
				o = NewOperator("vfc", "Restart", clients, WithLogger(log.Discard()))
			}
			err := o.Configure(tt.params)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.True(t, o.IsConfigured())
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
			assert.False(t, o.IsConfigured())
		})
	}
}

func TestOperator_ConfigDefaults(t *testing.T) {
	o := NewPollingOperator("vfc", "Restart", registry(t, "jobs", "http://jobs.local", 0))
	require.NoError(t, o.Configure(map[string]any{
		"clientName":  "jobs",
		"path":        "/jobs",
		"timeoutSec":  20,
		"pollWaitSec": 2,
		"maxPolls":    5,
		"successExpr": "status == 200",
	}))

	cfg := o.Config()
	require.NotNil(t, cfg)
	assert.Equal(t, "POST", cfg.Method)
	assert.Equal(t, 20, cfg.TimeoutSec)
	assert.Equal(t, 5, cfg.MaxPolls)
	assert.Equal(t, 2, cfg.PollWaitSec)
	assert.Equal(t, "status == 200", cfg.Success)
}

func TestOperator_ReconfigureKeepsBuiltOperations(t *testing.T) {
	o := NewOperator("vfc", "Restart", registry(t, "jobs", "http://jobs.local", 0))
	require.NoError(t, o.Configure(map[string]any{"clientName": "jobs", "path": "/v1"}))

	op, err := o.BuildOperation(testParams(0))
	require.NoError(t, err)

	require.NoError(t, o.Configure(map[string]any{"clientName": "jobs", "path": "/v2"}))
	assert.Equal(t, "/v1", op.Strategy().(*Operation).snap.config.Path)
	assert.Equal(t, "/v2", o.Config().Path)
}

func TestOperator_RegisteredWithActor(t *testing.T) {
	clients := registry(t, "jobs", "http://jobs.local", 0)
	a := actor.New("vfc", actor.WithLogger(log.Discard()))
	a.AddOperator(NewOperator("vfc", "Restart", clients, WithLogger(log.Discard())))
	a.AddOperator(NewPollingOperator("vfc", "Rebuild", clients, WithLogger(log.Discard())))

	require.NoError(t, a.Configure(map[string]any{
		"clientName": "jobs",
		actor.OperationsKey: map[string]any{
			"Restart": map[string]any{"path": "/restart"},
			"Rebuild": map[string]any{"path": "/rebuild", "maxPolls": 2},
		},
	}))
	require.NoError(t, a.Start())

	for _, name := range []string{"Restart", "Rebuild"} {
		op, err := a.GetOperator(name)
		require.NoError(t, err)
		assert.True(t, op.IsAlive(), name)
	}
	op, _ := a.GetOperator("Rebuild")
	assert.Equal(t, 2, op.(*Operator).Config().MaxPolls)
}
