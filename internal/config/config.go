package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"sherlock/persist"
)

// Config is the top-level configuration for the sherlockd binary: where to
// keep data, how durably to write it, and how to log.
type Config struct {
	DataDir         string           `json:"dataDir"`
	HTTPAddr        string           `json:"httpAddr"`
	Backend         string           `json:"backend"` // memory|file|pebble
	Fsync           persist.FsyncMode `json:"fsync"`
	FsyncIntervalMs int              `json:"fsyncIntervalMs"`
	LogLevel        string           `json:"logLevel"`
	LogFormat       string           `json:"logFormat"`
}

// Default returns built-in defaults: a Pebble-backed store under the
// OS-appropriate data directory, always-fsync durability, text logs at
// info level.
func Default() Config {
	return Config{
		DataDir:         DefaultDataDir(),
		HTTPAddr:        ":8080",
		Backend:         "pebble",
		Fsync:           persist.FsyncAlways,
		FsyncIntervalMs: 5,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load reads configuration from a JSON file, overlaying it onto Default().
// If path is empty, returns Default() unchanged.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return Config{}, errors.New("yaml config not supported; use JSON")
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}
