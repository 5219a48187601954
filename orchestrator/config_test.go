package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Steps != 10 {
		t.Errorf("expected default 10 steps, got %d", cfg.Steps)
	}
	if cfg.Workers < 1 {
		t.Errorf("expected at least 1 worker, got %d", cfg.Workers)
	}
	if cfg.LockTimeout != 5*time.Second {
		t.Errorf("expected 5s lock timeout, got %s", cfg.LockTimeout)
	}
	if cfg.SnapshotFormat != "json" {
		t.Errorf("expected json snapshot format, got %q", cfg.SnapshotFormat)
	}
}

func TestLoadConfigFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "josh.yaml")
	content := "steps: 25\nworkers: 2\nstrict: true\nlock_timeout: 250ms\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadConfig(nil, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Steps != 25 || cfg.Workers != 2 || !cfg.Strict {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.LockTimeout != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %s", cfg.LockTimeout)
	}
}

func TestConfigValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative_steps", func(c *Config) { c.Steps = -1 }},
		{"zero_workers", func(c *Config) { c.Workers = 0 }},
		{"zero_lock_timeout", func(c *Config) { c.LockTimeout = 0 }},
		{"bad_snapshot_format", func(c *Config) { c.SnapshotFormat = "xml" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}
