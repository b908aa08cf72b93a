package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
workflows:
  daily-report:
    schedule: "0 6 * * *"
    tasks:
      - name: build
        command: make report
  cleanup:
    tasks:
      - name: purge
        command: rm -rf /tmp/scratch
`

func TestRegistryLoad(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Load([]byte(sampleConfig)))

	assert.Equal(t, []string{"cleanup", "daily-report"}, r.List())

	def, ok := r.Get("daily-report")
	require.True(t, ok)
	assert.Equal(t, "daily-report", def.Name, "map key becomes the workflow name")
	assert.Equal(t, "0 6 * * *", def.Schedule)
	require.Len(t, def.Tasks, 1)
	assert.Equal(t, Command{"make", "report"}, def.Tasks[0].Command)

	_, ok = r.Get("unknown")
	assert.False(t, ok)
}

func TestRegistryLoadInvalid(t *testing.T) {
	r := NewRegistry()

	err := r.Load([]byte("workflows: [not, a, mapping]"))
	assert.Error(t, err)

	invalid := `
workflows:
  broken:
    tasks:
      - name: a
      - name: a
`
	err = r.Load([]byte(invalid))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate task")
	assert.Empty(t, r.List(), "a failed load must register nothing")
}

func TestRegistryLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gantry.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	r := NewRegistry()
	require.NoError(t, r.LoadFile(path))
	assert.Len(t, r.List(), 2)

	err := r.LoadFile(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestRegistryAdd(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(&Definition{
		Name:  "adhoc",
		Tasks: []TaskDef{{Name: "only", Command: Command{"true"}}},
	}))

	def, ok := r.Get("adhoc")
	require.True(t, ok)
	assert.Equal(t, "adhoc", def.Name)

	assert.Error(t, r.Add(&Definition{}), "invalid definitions are rejected")
}
