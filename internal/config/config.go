package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Port             string
	SnapshotPath     string
	AutosaveInterval time.Duration
	AutosaveEnabled  bool
	Environment      string // "production" or "development"
}

// fileConfig is the optional YAML overlay written by the desktop shell.
// Any field left empty keeps the environment/default value.
type fileConfig struct {
	Port             string `yaml:"port"`
	SnapshotPath     string `yaml:"snapshot_path"`
	AutosaveInterval string `yaml:"autosave_interval"`
	AutosaveEnabled  *bool  `yaml:"autosave_enabled"`
}

// Load loads configuration from environment variables with defaults.
// When ENGRAM_CONFIG points at a YAML file, its values override the
// environment.
func Load() *Config {
	cfg := &Config{
		Port:             getEnv("PORT", "3001"),
		SnapshotPath:     getEnv("SNAPSHOT_PATH", "data/memory_snapshot.json"),
		AutosaveInterval: getDurationEnv("AUTOSAVE_INTERVAL", 30*time.Second),
		AutosaveEnabled:  getBoolEnv("AUTOSAVE_ENABLED", true),
		Environment:      getEnv("ENVIRONMENT", "development"),
	}

	if path := os.Getenv("ENGRAM_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			log.Printf("⚠️  Could not apply config file %s: %v", path, err)
		}
	}
	return cfg
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if fc.Port != "" {
		c.Port = fc.Port
	}
	if fc.SnapshotPath != "" {
		c.SnapshotPath = fc.SnapshotPath
	}
	if fc.AutosaveInterval != "" {
		d, err := time.ParseDuration(fc.AutosaveInterval)
		if err != nil {
			return fmt.Errorf("invalid autosave_interval %q: %w", fc.AutosaveInterval, err)
		}
		c.AutosaveInterval = d
	}
	if fc.AutosaveEnabled != nil {
		c.AutosaveEnabled = *fc.AutosaveEnabled
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			log.Printf("⚠️  Invalid boolean for %s: %q, using default %v", key, value, defaultValue)
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			log.Printf("⚠️  Invalid duration for %s: %q, using default %v", key, value, defaultValue)
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}
