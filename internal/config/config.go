// Package config loads pimdb settings from built-in defaults, an optional
// pimdb.yaml file and PIMDB_ environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "pimdb.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "pimdb.yml"

// Config holds everything pimdb needs to run. The database URL selects the
// backend; there are no backend-specific settings.
type Config struct {
	DatabaseURL    string `koanf:"database_url"`
	DataDir        string `koanf:"data_dir"`
	BatchSize      int    `koanf:"batch_size"`
	TimeoutSeconds int    `koanf:"timeout_seconds"`
	LogLevel       string `koanf:"log_level"`
}

// Timeout returns the per-backend-call deadline. Zero disables it.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load builds the configuration, looking for pimdb.yaml in dir.
// Environment variables use the PIMDB_ prefix: PIMDB_DATABASE_URL maps to
// database_url and so on.
func Load(dir string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"data_dir":        ".pimdb",
		"batch_size":      1000,
		"timeout_seconds": 30,
		"log_level":       "info",
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(dir); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configPath, err)
		}
	}

	// PIMDB_DATABASE_URL -> database_url
	if err := k.Load(env.Provider("PIMDB_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "PIMDB_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// findConfigFile finds the config file in the given directory. Returns empty
// string if not found.
func findConfigFile(dir string) string {
	yamlPath := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}

	ymlPath := filepath.Join(dir, ConfigFileNameAlt)
	if _, err := os.Stat(ymlPath); err == nil {
		return ymlPath
	}

	return ""
}
