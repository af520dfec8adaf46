package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadWritesDefaultConfigOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if resolved != path {
		t.Fatalf("resolved path %q, want %q", resolved, path)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatalf("default config not written: %v", statErr)
	}

	want := Default()
	if cfg.HostURL != want.HostURL || cfg.LogLevel != want.LogLevel {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Reads.MaxAttempts != 4 || cfg.Reads.BaseDelay != 250*time.Millisecond {
		t.Fatalf("unexpected read policy: %+v", cfg.Reads)
	}
	if cfg.Mutations.MaxAttempts != 1 {
		t.Fatalf("mutations must default to a single attempt, got %d", cfg.Mutations.MaxAttempts)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, strings.Join([]string{
		"log_level: debug",
		"host_url: https://host.example",
		"reads:",
		"  max_attempts: 6",
		"  base_delay: 100ms",
	}, "\n"))

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.HostURL != "https://host.example" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Reads.MaxAttempts != 6 || cfg.Reads.BaseDelay != 100*time.Millisecond {
		t.Fatalf("nested file values not applied: %+v", cfg.Reads)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Reads.MaxDelay != Default().Reads.MaxDelay {
		t.Fatalf("untouched key lost its default: %+v", cfg.Reads)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "log_level: debug\n")
	t.Setenv("GAMENIGHT_LOG_LEVEL", "error")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Fatalf("env must beat file, got %q", cfg.LogLevel)
	}
}

func TestLoadRejectsRetryingMutations(t *testing.T) {
	path := writeConfig(t, strings.Join([]string{
		"mutations:",
		"  max_attempts: 3",
	}, "\n"))

	if _, _, err := Load(nil, path); err == nil {
		t.Fatal("expected rejection of mutations.max_attempts > 1")
	}
}
