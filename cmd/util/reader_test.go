package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadInput(t *testing.T) {
	b, err := ReadInput("-", strings.NewReader("from stdin"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", string(b))

	path := filepath.Join(t.TempDir(), "dataset.yaml")
	require.NoError(t, os.WriteFile(path, []byte("from file"), 0600))
	b, err = ReadInput(path, strings.NewReader("ignored"))
	require.NoError(t, err)
	assert.Equal(t, "from file", string(b))

	_, err = ReadInput(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)
}
