package jq

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor_Execute(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		data       any
		want       any
		wantErr    bool
	}{
		{
			name:       "empty expression returns data as-is",
			expression: "",
			data:       map[string]any{"foo": "bar"},
			want:       map[string]any{"foo": "bar"},
		},
		{
			name:       "simple field extraction",
			expression: ".foo",
			data:       map[string]any{"foo": "bar"},
			want:       "bar",
		},
		{
			name:       "multiple results become a slice",
			expression: ".[] | .x",
			data:       []any{map[string]any{"x": 1}, map[string]any{"x": 2}},
			want:       []any{float64(1), float64(2)},
		},
		{
			name:       "no result",
			expression: "empty",
			data:       map[string]any{},
			want:       nil,
		},
		{
			name:       "invalid expression",
			expression: ".[",
			data:       map[string]any{"foo": "bar"},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Default().Execute(context.Background(), tt.expression, tt.data)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExecutor_Strings(t *testing.T) {
	type body struct {
		RequestID string `json:"requestId"`
		Status    struct {
			Code int `json:"code"`
		} `json:"status"`
		Targets []string `json:"targets"`
	}

	data := body{RequestID: "req-1", Targets: []string{"a", "", "b"}}
	data.Status.Code = 200

	e := Default()

	got, err := e.Strings(context.Background(), ".requestId", data)
	require.NoError(t, err)
	assert.Equal(t, []string{"req-1"}, got)

	got, err = e.Strings(context.Background(), ".status.code", data)
	require.NoError(t, err)
	assert.Equal(t, []string{"200"}, got)

	got, err = e.Strings(context.Background(), ".targets", data)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	got, err = e.Strings(context.Background(), ".missing", data)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExecutor_String(t *testing.T) {
	e := Default()
	data := map[string]any{"body": map[string]any{"id": "job-7"}}

	id, err := e.String(context.Background(), ".body.id", data)
	require.NoError(t, err)
	assert.Equal(t, "job-7", id)

	id, err = e.String(context.Background(), ".body.missing", data)
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestExecutor_Cache(t *testing.T) {
	e := Default()
	_, err := e.Execute(context.Background(), ".a", map[string]any{"a": 1})
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), ".a", map[string]any{"a": 2})
	require.NoError(t, err)

	e.mu.RLock()
	defer e.mu.RUnlock()
	assert.Len(t, e.cache, 1)
}

func TestExecutor_Validate(t *testing.T) {
	e := Default()
	assert.NoError(t, e.Validate(""))
	assert.NoError(t, e.Validate(".foo | .bar"))
	assert.Error(t, e.Validate(".["))
}

func TestExecutor_InputSizeLimit(t *testing.T) {
	e := NewExecutor(DefaultTimeout, 16)
	_, err := e.Execute(context.Background(), ".", map[string]any{"x": strings.Repeat("a", 64)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum")
}

func TestExecutor_Timeout(t *testing.T) {
	e := NewExecutor(10*time.Millisecond, DefaultMaxInputSize)
	_, err := e.Execute(context.Background(), "repeat(1)", nil)
	require.Error(t, err)
}
