package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range RootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"completion", "dataset", "events", "loop", "materialize", "server", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestBashCompletion(t *testing.T) {
	out := &bytes.Buffer{}
	RootCmd.SetOut(out)
	defer RootCmd.SetOut(nil)
	RootCmd.SetArgs([]string{"completion", "bash"})
	require.NoError(t, RootCmd.Execute())
	assert.Contains(t, out.String(), "cascade")
}
