package config

import (
	"os"
	"strconv"

	"sherlock/persist"
)

// FromEnv overlays SHERLOCK_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("SHERLOCK_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SHERLOCK_HTTP"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("SHERLOCK_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("SHERLOCK_FSYNC"); v != "" {
		switch v {
		case "always":
			cfg.Fsync = persist.FsyncAlways
		case "interval":
			cfg.Fsync = persist.FsyncInterval
		case "never":
			cfg.Fsync = persist.FsyncNever
		}
	}
	if v := os.Getenv("SHERLOCK_FSYNC_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FsyncIntervalMs = n
		}
	}
	if v := os.Getenv("SHERLOCK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SHERLOCK_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
}
