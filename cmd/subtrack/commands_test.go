package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := rootCommand()

	for _, name := range []string{"serve", "scheduler", "sweep", "migrate"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestSweepRejectsMalformedDate(t *testing.T) {
	root := rootCommand()
	root.SetArgs([]string{"sweep", "--date", "18.10.2026"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected YYYY-MM-DD")
}
