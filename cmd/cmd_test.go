package cmd

import (
	"bytes"
	"io"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(c *cobra.Command, args ...string) error {
	c.SetArgs(args)
	c.SetOut(io.Discard)
	c.SetErr(io.Discard)
	return c.Execute()
}

func TestCommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "migrate", "sync", "classify", "task", "test-connection", "fixture"} {
		assert.Contains(t, names, want)
	}
}

func TestSyncFlagGroups(t *testing.T) {
	assert.ErrorContains(t, run(newSyncCmd()), "at least one of the flags")
	assert.ErrorContains(t, run(newSyncCmd(), "--instance", "3", "--all"), "none of the others")
}

func TestArgsValidated(t *testing.T) {
	assert.Error(t, run(newTestConnectionCmd()))
	assert.ErrorContains(t, run(newTestConnectionCmd(), "abc"), "invalid id")
	assert.ErrorContains(t, run(newTaskCmd(), "run", "0"), "invalid id")
	assert.ErrorContains(t, run(newClassifyCmd(), "--instance", "1", "--count-rule", "2"), "none of the others")
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int{"synced": 2}))
	assert.Equal(t, "{\n  \"synced\": 2\n}\n", buf.String())
}
