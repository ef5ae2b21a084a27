package invoke

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/remediator/internal/commands/shared"
	"github.com/tombee/remediator/pkg/errors"
)

const testConfig = `
http_clients:
  - name: vfc
    base_url: ${TEST_VFC_URL}
actors:
  VFC:
    clientName: vfc
    operations:
      Restart:
        kind: http
        path: /vms/{target}/restart
        successExpr: response.ok
      Migrate:
        kind: http
        path: /vms/{target}/migrate
`

// setup starts the VFC stub and returns the config path.
func setup(t *testing.T) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /vms/{vm}/restart", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "vm": r.PathValue("vm"), "mode": body["mode"]})
	})
	mux.HandleFunc("POST /vms/{vm}/migrate", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no capacity", http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	t.Setenv("TEST_VFC_URL", srv.URL)
	t.Setenv("LOG_LEVEL", "error")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))
	return path
}

func execute(t *testing.T, path string, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "test", SilenceUsage: true, SilenceErrors: true}
	shared.RegisterGlobalFlags(root.PersistentFlags())
	root.AddCommand(NewCommand())

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs(append([]string{"invoke", "--config", path}, args...))
	err := root.Execute()
	return buf.String(), err
}

func TestInvoke_Success(t *testing.T) {
	path := setup(t)

	out, err := execute(t, path, "VFC", "Restart", "--target", "vm-17")
	require.NoError(t, err)
	assert.Contains(t, out, "VFC.Restart SUCCESS")
}

func TestInvoke_JSON(t *testing.T) {
	path := setup(t)
	id := "6f1c1b2e-8d2a-4a53-9a5e-0c7c1f6b7d10"

	out, err := execute(t, path, "VFC", "Restart", "--target", "vm-17", "--payload", "mode=soft", "--request-id", id, "--json")
	require.NoError(t, err)

	var view OutcomeView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "SUCCESS", view.Result)
	assert.Equal(t, "vm-17", view.Target)
	assert.Equal(t, id, view.RequestID)
	assert.NotEmpty(t, view.SubRequestID)

	resp, ok := view.Response.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "vm-17", resp["vm"])
	assert.Equal(t, "soft", resp["mode"])
}

func TestInvoke_FailedOutcome(t *testing.T) {
	path := setup(t)

	out, err := execute(t, path, "VFC", "Migrate", "--target", "vm-17", "--retry", "0")
	require.Error(t, err)
	assert.Equal(t, shared.ExitOperationFailed, shared.ExitCode(err))
	assert.Contains(t, out, "VFC.Migrate FAILURE")
	assert.Contains(t, out, "503")
}

func TestInvoke_UnknownOperation(t *testing.T) {
	path := setup(t)

	_, err := execute(t, path, "VFC", "Teleport")
	require.Error(t, err)
	var nf *errors.NotFoundError
	assert.ErrorAs(t, err, &nf)
	assert.Equal(t, shared.ExitRuntimeError, shared.ExitCode(err))
}

func TestInvoke_BadRequestID(t *testing.T) {
	path := setup(t)

	_, err := execute(t, path, "VFC", "Restart", "--request-id", "nope")
	assert.ErrorContains(t, err, "invalid --request-id")
}

func TestInvoke_MissingConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")

	_, err := execute(t, path, "VFC", "Restart")
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidConfig, shared.ExitCode(err))
}
