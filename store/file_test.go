package store

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type probe struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestFileSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	f := NewFile(path)

	require.NoError(t, f.Save(probe{Name: "daily", Count: 3}))

	var got probe
	require.NoError(t, f.Load(&got))
	assert.Equal(t, probe{Name: "daily", Count: 3}, got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(raw))
	assert.Contains(t, string(raw), "\n  ", "document must be indented")
}

func TestFileLoadMissing(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "absent.json"))

	var got probe
	err := f.Load(&got)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestFileLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	var got probe
	err := NewFile(path).Load(&got)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestFileOverwrite(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, f.Save(probe{Name: "a"}))
	require.NoError(t, f.Save(probe{Name: "b"}))

	var got probe
	require.NoError(t, f.Load(&got))
	assert.Equal(t, "b", got.Name)
}
