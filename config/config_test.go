package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ".gantry", filepath.Base(cfg.BaseDir))
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 2, cfg.DispatchSlots)
	assert.Equal(t, 100, cfg.HistoryLimit)
	assert.Equal(t, 500, cfg.ScheduledLogLimit)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GANTRY_BASE_DIR", dir)
	t.Setenv("GANTRY_WORKERS", "8")
	t.Setenv("GANTRY_DISPATCH_SLOTS", "3")
	t.Setenv("GANTRY_HISTORY_LIMIT", "10")
	t.Setenv("GANTRY_SCHEDULED_LOG_LIMIT", "20")
	t.Setenv("GANTRY_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.BaseDir)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 3, cfg.DispatchSlots)
	assert.Equal(t, 10, cfg.HistoryLimit)
	assert.Equal(t, 20, cfg.ScheduledLogLimit)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadInvalid(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{name: "bad_log_level", key: "GANTRY_LOG_LEVEL", value: "chatty"},
		{name: "zero_workers", key: "GANTRY_WORKERS", value: "0"},
		{name: "negative_slots", key: "GANTRY_DISPATCH_SLOTS", value: "-1"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Setenv(c.key, c.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
