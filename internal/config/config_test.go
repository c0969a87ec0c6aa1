package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "3001" {
		t.Errorf("Expected default port 3001, got %s", cfg.Port)
	}
	if cfg.SnapshotPath != "data/memory_snapshot.json" {
		t.Errorf("Unexpected default snapshot path %s", cfg.SnapshotPath)
	}
	if cfg.AutosaveInterval != 30*time.Second {
		t.Errorf("Expected default autosave interval 30s, got %v", cfg.AutosaveInterval)
	}
	if !cfg.AutosaveEnabled {
		t.Error("Expected autosave enabled by default")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("AUTOSAVE_INTERVAL", "5m")
	t.Setenv("AUTOSAVE_ENABLED", "false")

	cfg := Load()
	if cfg.Port != "9000" {
		t.Errorf("Expected port 9000, got %s", cfg.Port)
	}
	if cfg.AutosaveInterval != 5*time.Minute {
		t.Errorf("Expected interval 5m, got %v", cfg.AutosaveInterval)
	}
	if cfg.AutosaveEnabled {
		t.Error("Expected autosave disabled")
	}
}

func TestInvalidEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("AUTOSAVE_INTERVAL", "often")
	t.Setenv("AUTOSAVE_ENABLED", "maybe")

	cfg := Load()
	if cfg.AutosaveInterval != 30*time.Second {
		t.Errorf("Expected fallback interval 30s, got %v", cfg.AutosaveInterval)
	}
	if !cfg.AutosaveEnabled {
		t.Error("Expected fallback to enabled")
	}
}

func TestConfigFileOverridesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engram.yaml")
	content := "port: \"7777\"\nsnapshot_path: /tmp/custom.json\nautosave_interval: 2m\nautosave_enabled: false\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	t.Setenv("PORT", "9000")
	t.Setenv("ENGRAM_CONFIG", path)

	cfg := Load()
	if cfg.Port != "7777" {
		t.Errorf("Expected file port 7777 to win, got %s", cfg.Port)
	}
	if cfg.SnapshotPath != "/tmp/custom.json" {
		t.Errorf("Expected file snapshot path, got %s", cfg.SnapshotPath)
	}
	if cfg.AutosaveInterval != 2*time.Minute {
		t.Errorf("Expected file interval 2m, got %v", cfg.AutosaveInterval)
	}
	if cfg.AutosaveEnabled {
		t.Error("Expected file to disable autosave")
	}
}

func TestPartialConfigFileKeepsOtherValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engram.yaml")
	if err := os.WriteFile(path, []byte("port: \"7777\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	t.Setenv("ENGRAM_CONFIG", path)
	t.Setenv("AUTOSAVE_INTERVAL", "1m")

	cfg := Load()
	if cfg.Port != "7777" {
		t.Errorf("Expected file port, got %s", cfg.Port)
	}
	if cfg.AutosaveInterval != time.Minute {
		t.Errorf("Expected env interval to survive partial file, got %v", cfg.AutosaveInterval)
	}
}
