// Package config loads the optional YAML configuration file. Flags and
// environment variables always win over file values.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds file-sourced settings for the CLI and server.
type Config struct {
	// DSN is the usage-store connection string (snowflake:// or
	// postgres://).
	DSN string `yaml:"dsn"`

	// Port for the HTTP API server.
	Port int `yaml:"port"`

	// CORSOrigins allowed by the API server.
	CORSOrigins []string `yaml:"cors_origins"`

	// EditionOverride forces a pricing edition instead of querying
	// ORGANIZATION_USAGE.ACCOUNTS (useful when the view is not granted).
	EditionOverride string `yaml:"edition_override"`

	// Windows are the default report windows in days.
	Windows []int `yaml:"windows"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:        8080,
		CORSOrigins: []string{"*"},
		Windows:     []int{1, 3, 7, 30},
	}
}

// Load reads a config file, falling back to defaults when the path is empty
// or the file does not exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if len(cfg.Windows) == 0 {
		cfg.Windows = []int{1, 3, 7, 30}
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	return cfg, nil
}
