package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/remediator/internal/log"
	"github.com/tombee/remediator/pkg/errors"
)

const sample = `
log:
  level: debug
executor:
  pool_size: 8
bus:
  type: redis
  redis:
    password: ${TEST_REDIS_PASSWORD}
guard:
  expression: 'target != "db-primary"'
  frequency_limit:
    count: 3
    window: 10m
metrics:
  listen: ":9464"
http_clients:
  - name: vfc
    base_url: https://vfc.local/api
    timeout: 15s
    auth:
      type: bearer
      token: ${TEST_VFC_TOKEN}
actors:
  VFC:
    clientName: vfc
    operations:
      Restart:
        kind: http_polling
        path: /jobs
        maxPolls: 20
  APPC:
    operations:
      Restart:
        kind: topic
        sinkTopic: APPC-LCM-READ
        sourceTopic: APPC-LCM-WRITE
`

func TestParse(t *testing.T) {
	t.Setenv("TEST_REDIS_PASSWORD", "hunter2")
	t.Setenv("TEST_VFC_TOKEN", "tok")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 8, cfg.Executor.PoolSize)
	assert.Equal(t, BusRedis, cfg.Bus.Type)
	assert.Equal(t, "localhost:6379", cfg.Bus.Redis.Addr)
	assert.Equal(t, "hunter2", cfg.Bus.Redis.Password)
	assert.Equal(t, "denied by policy", cfg.Guard.DenyMessage)
	require.NotNil(t, cfg.Guard.FrequencyLimit)
	assert.Equal(t, 10*time.Minute, cfg.Guard.FrequencyLimit.Window)

	require.Len(t, cfg.HTTPClients, 1)
	assert.Equal(t, 15*time.Second, cfg.HTTPClients[0].Timeout)
	assert.Equal(t, "tok", cfg.HTTPClients[0].Auth.Token)

	assert.Equal(t, []string{"APPC", "VFC"}, cfg.ActorNames())
	assert.Equal(t, map[string]string{"Restart": KindHTTPPolling}, cfg.OperationKinds("VFC"))
	assert.Equal(t, map[string]string{"Restart": KindTopic}, cfg.OperationKinds("APPC"))
	assert.Empty(t, cfg.OperationKinds("missing"))
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("actors: {}\n"))
	require.NoError(t, err)
	assert.Equal(t, BusMemory, cfg.Bus.Type)
	assert.Empty(t, cfg.Log.Level)
	assert.Zero(t, cfg.Executor.PoolSize)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "remediator", cfg.Tracing.ServiceName)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"undefined variable", "bus:\n  redis:\n    password: ${TEST_SURELY_UNSET_VAR}\n", "TEST_SURELY_UNSET_VAR"},
		{"bad yaml", "actors: [\n", "parse YAML"},
		{"unknown bus", "bus:\n  type: kafka\n", "bus.type"},
		{"negative pool", "executor:\n  pool_size: -1\n", "pool_size"},
		{"bad tracing exporter", "tracing:\n  enabled: true\n  exporters:\n    - type: otlp\n", "tracing.exporters[0].endpoint"},
		{"bad frequency limit", "guard:\n  frequency_limit:\n    count: 0\n", "frequency_limit"},
		{"duplicate client", "http_clients:\n  - name: a\n  - name: a\n", "duplicate"},
		{"unknown kind", "actors:\n  A:\n    operations:\n      Op:\n        kind: grpc\n", "actors.A.operations.Op.kind"},
		{"missing kind", "actors:\n  A:\n    operations:\n      Op: {}\n", "unknown operator kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			var ce *errors.ConfigError
			assert.True(t, errors.As(err, &ce))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestExpandEnv(t *testing.T) {
	lookup := func(name string) (string, bool) {
		v, ok := map[string]string{"A": "1", "EMPTY": ""}[name]
		return v, ok
	}
	got, err := expandEnv("x=${A} y=${EMPTY} z=$A", lookup)
	require.NoError(t, err)
	assert.Equal(t, "x=1 y= z=$A", got)

	_, err = expandEnv("${B} ${C}", lookup)
	assert.ErrorContains(t, err, "B, C")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("executor:\n  pool_size: 2\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Executor.PoolSize)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to load")
}

func TestConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	path, err := ConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/xdg/remediator/config.yaml", path)
}

func TestWatcher_ReloadsValidChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("executor:\n  pool_size: 1\n"), 0o600))

	w, err := NewWatcher(path, log.Discard())
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, func(c *Config) { changes <- c }) }()

	replace(t, path, "bus:\n  type: nope\n")
	select {
	case c := <-changes:
		t.Fatalf("invalid config delivered: %+v", c)
	case <-time.After(200 * time.Millisecond):
	}

	replace(t, path, "executor:\n  pool_size: 5\n")
	select {
	case c := <-changes:
		assert.Equal(t, 5, c.Executor.PoolSize)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after valid change")
	}

	cancel()
	assert.NoError(t, <-done)
}

// replace swaps the file in with a rename so the watcher never sees a
// partially written file.
func replace(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o600))
	require.NoError(t, os.Rename(tmp, path))
}
