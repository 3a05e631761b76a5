package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/maruel/recipebook/internal/config"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.FileName)
	if err := os.WriteFile(path, []byte("backend: bogus\nlog_level: trace\n"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	t.Run("invalid file values", func(t *testing.T) {
		if _, err := loadConfig(path, nil); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("flags override before validation", func(t *testing.T) {
		cfg, err := loadConfig(path, map[string]string{
			"backend":   config.BackendFile,
			"log-level": "debug",
			"data-dir":  dir,
		})
		if err != nil {
			t.Fatalf("loadConfig failed: %v", err)
		}
		if cfg.Backend != config.BackendFile || cfg.LogLevel != "debug" || cfg.DataDir != dir {
			t.Errorf("got %+v", cfg)
		}
	})

	t.Run("invalid flag value", func(t *testing.T) {
		if _, err := loadConfig(filepath.Join(dir, "absent.yaml"), map[string]string{"backend": "sqlite"}); err == nil {
			t.Fatal("expected error")
		}
	})
}
