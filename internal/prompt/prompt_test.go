package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHopNudge(t *testing.T) {
	assert.Equal(t, "You have 3 hops remaining before the conversation will be cut off.", HopNudge(3))
}

func TestLoadDeveloper(t *testing.T) {
	text, err := LoadDeveloper("")
	require.NoError(t, err)
	assert.Equal(t, Developer(), text)
	assert.Contains(t, text, "financial status")

	path := filepath.Join(t.TempDir(), "prompt.md")
	require.NoError(t, os.WriteFile(path, []byte("  custom persona \n"), 0o644))
	text, err = LoadDeveloper(path)
	require.NoError(t, err)
	assert.Equal(t, "custom persona", text)

	empty := filepath.Join(t.TempDir(), "empty.md")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = LoadDeveloper(empty)
	assert.Error(t, err)
}
