package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "remediator", cmd.Use)

	for _, name := range []string{"verbose", "json", "config"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "v", cmd.PersistentFlags().Lookup("verbose").Shorthand)

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Subset(t, names, []string{"run", "invoke", "validate", "version"})
}

func TestRootCommand_Version(t *testing.T) {
	SetVersion("2.0.0", "abc", "2026-01-01")
	t.Cleanup(func() { SetVersion("dev", "unknown", "unknown") })

	cmd := NewRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "remediator version 2.0.0")
}

func TestRootCommand_UnknownCommand(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"teleport"})
	assert.Error(t, cmd.Execute())
}
