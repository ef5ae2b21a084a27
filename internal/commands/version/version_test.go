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

package version

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/remediator/internal/commands/shared"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	shared.SetVersion("1.0.0", "test123", "2025-12-22")
	t.Cleanup(func() {
		shared.SetVersion("dev", "unknown", "unknown")
		shared.SetJSONForTest(false)
	})

	root := &cobra.Command{Use: "test"}
	shared.RegisterGlobalFlags(root.PersistentFlags())
	root.AddCommand(NewVersionCommand())

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs(append([]string{"version"}, args...))
	require.NoError(t, root.Execute())
	return buf.String()
}

func TestVersionOutput(t *testing.T) {
	out := execute(t)
	assert.Contains(t, out, "remediator version 1.0.0")
	assert.Contains(t, out, "test123")
	assert.Contains(t, out, "2025-12-22")
}

func TestVersionJSONOutput(t *testing.T) {
	out := execute(t, "--json")

	var info VersionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "1.0.0", info.Version)
	assert.Equal(t, "test123", info.Commit)
	assert.Equal(t, "2025-12-22", info.BuildDate)
	assert.NotEmpty(t, info.GoVersion)
}
