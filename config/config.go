// Package config loads application configuration from an optional YAML file
// plus environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all configuration for the mirror.
type Config struct {
	// GitHub API token. Usually supplied via the GITHUB_TOKEN environment
	// variable rather than the config file.
	GitHubToken string `mapstructure:"github_token"`

	// Path to the SQLite database file.
	DatabasePath string `mapstructure:"database_path"`

	// Organization whose activity is mirrored.
	Organization string `mapstructure:"organization"`

	// Project board titles whose status changes override the derived
	// activity timeline of an issue. Matched case-insensitively.
	TrackedProjects []string `mapstructure:"tracked_projects"`

	// Log level: debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
}

// Load reads configuration from path (optional; pass "" to rely on defaults
// and environment variables alone).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ORGMIRROR")
	v.AutomaticEnv()
	v.BindEnv("github_token", "GITHUB_TOKEN", "ORGMIRROR_GITHUB_TOKEN")
	v.BindEnv("database_path", "ORGMIRROR_DATABASE_PATH")
	v.BindEnv("organization", "ORGMIRROR_ORGANIZATION")
	v.BindEnv("log_level", "LOG_LEVEL")

	v.SetDefault("database_path", "orgmirror.db")
	v.SetDefault("log_level", "info")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Resolve a relative database path against the config file's directory
	// so runs behave the same regardless of the working directory.
	if path != "" && !filepath.IsAbs(cfg.DatabasePath) {
		cfg.DatabasePath = filepath.Join(filepath.Dir(path), cfg.DatabasePath)
	}

	return &cfg, nil
}

// WriteDefault creates a starter config file at path if none exists.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil // don't overwrite an existing config
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	starter := []byte(`# orgmirror configuration
organization: example-org
database_path: orgmirror.db
log_level: info
tracked_projects: []
# github_token can be set here, but prefer the GITHUB_TOKEN environment variable.
`)
	if err := os.WriteFile(path, starter, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks that the fields required for a sync run are present.
func (c *Config) Validate() error {
	if c.GitHubToken == "" {
		return fmt.Errorf("github token not set (GITHUB_TOKEN)")
	}
	if c.Organization == "" {
		return fmt.Errorf("organization not set")
	}
	return nil
}
