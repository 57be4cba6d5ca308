package config

import (
	"os"
	"path/filepath"
	"testing"

	"sherlock/persist"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Backend != "pebble" {
		t.Fatalf("default backend should be pebble, got %q", cfg.Backend)
	}
	if cfg.Fsync != persist.FsyncAlways {
		t.Fatalf("default fsync should be always")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("default http addr")
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sherlockd.json")
	data := []byte(`{"backend":"file","httpAddr":":9090","logLevel":"debug"}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != "file" {
		t.Fatalf("expected file backend, got %q", cfg.Backend)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("expected :9090, got %q", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected debug, got %q", cfg.LogLevel)
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	os.Setenv("SHERLOCK_BACKEND", "memory")
	os.Setenv("SHERLOCK_HTTP", ":7070")
	os.Setenv("SHERLOCK_FSYNC", "never")
	t.Cleanup(func() {
		os.Unsetenv("SHERLOCK_BACKEND")
		os.Unsetenv("SHERLOCK_HTTP")
		os.Unsetenv("SHERLOCK_FSYNC")
	})
	FromEnv(&cfg)
	if cfg.Backend != "memory" {
		t.Fatalf("env override backend")
	}
	if cfg.HTTPAddr != ":7070" {
		t.Fatalf("env override http addr")
	}
	if cfg.Fsync != persist.FsyncNever {
		t.Fatalf("env override fsync")
	}
}
