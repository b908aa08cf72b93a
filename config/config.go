// Package config resolves runtime settings of the scheduling engine from
// built-in defaults and GANTRY_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const envPrefix = "GANTRY"

// Config holds the runtime settings of the scheduling engine.
type Config struct {
	// BaseDir is where state, queue and history files live.
	BaseDir string
	// Workers bounds per-layer task concurrency inside one run.
	Workers int
	// DispatchSlots bounds concurrently running workflows.
	DispatchSlots int
	// HistoryLimit caps the workflow execution history.
	HistoryLimit int
	// ScheduledLogLimit caps the scheduled execution log.
	ScheduledLogLimit int
	// LogLevel is a logrus level name.
	LogLevel string
}

// Default returns the built-in settings with state under ~/.gantry.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		BaseDir:           filepath.Join(home, ".gantry"),
		Workers:           4,
		DispatchSlots:     2,
		HistoryLimit:      100,
		ScheduledLogLimit: 500,
		LogLevel:          "info",
	}
}

// Load reads settings from the environment on top of the defaults and
// validates them.
func Load() (*Config, error) {
	def := Default()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("base_dir", def.BaseDir)
	v.SetDefault("workers", def.Workers)
	v.SetDefault("dispatch_slots", def.DispatchSlots)
	v.SetDefault("history_limit", def.HistoryLimit)
	v.SetDefault("scheduled_log_limit", def.ScheduledLogLimit)
	v.SetDefault("log_level", def.LogLevel)

	cfg := &Config{
		BaseDir:           v.GetString("base_dir"),
		Workers:           v.GetInt("workers"),
		DispatchSlots:     v.GetInt("dispatch_slots"),
		HistoryLimit:      v.GetInt("history_limit"),
		ScheduledLogLimit: v.GetInt("scheduled_log_limit"),
		LogLevel:          v.GetString("log_level"),
	}
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("base dir must not be empty")
	}
	if cfg.Workers <= 0 || cfg.DispatchSlots <= 0 {
		return nil, fmt.Errorf("workers and dispatch slots must be positive")
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	return cfg, nil
}

// ApplyLogging configures the global logger according to the config.
func (c *Config) ApplyLogging() error {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	return nil
}
