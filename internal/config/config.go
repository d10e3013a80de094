// Package config loads and validates the gateway configuration.
//
// DESIGN: Configuration comes from a YAML file with ${VAR:-default}
// environment expansion. Server and upstream settings are required;
// optimizer knobs fall back to defaults so a minimal config stays small.
//
// FILES:
//   - config.go:    Root Config struct, Load(), Validate()
//   - optimizer.go: Optimizer knobs (thresholds, cache control)
//   - defaults.go:  Centralized default values
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wakedock/nextjs-gateway/internal/monitoring"
)

// Config is the root configuration for the optimization gateway.
type Config struct {
	Server     ServerConfig     `yaml:"server"`     // HTTP server settings
	Upstream   UpstreamConfig   `yaml:"upstream"`   // Backend API to proxy
	Optimizer  OptimizerConfig  `yaml:"optimizer"`  // Header/compression rules
	Monitoring MonitoringConfig `yaml:"monitoring"` // Logging and telemetry
	History    HistoryConfig    `yaml:"history"`    // SQLite request history
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // Port to listen on
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // Max time to read request
	WriteTimeout time.Duration `yaml:"write_timeout"` // Max time to write response
}

// UpstreamConfig describes the backend API the gateway fronts.
type UpstreamConfig struct {
	URL     string        `yaml:"url"`     // Base URL of the backend API
	Timeout time.Duration `yaml:"timeout"` // Per-request upstream timeout
}

// MonitoringConfig contains logging and telemetry settings.
type MonitoringConfig struct {
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // json, console, auto
	LogOutput string `yaml:"log_output"` // stdout, stderr, or file path

	TelemetryEnabled bool   `yaml:"telemetry_enabled"` // Enable JSONL telemetry
	TelemetryPath    string `yaml:"telemetry_path"`    // Path to telemetry JSONL file
	LogToStdout      bool   `yaml:"log_to_stdout"`     // Also log telemetry to stdout
	VerbosePayloads  bool   `yaml:"verbose_payloads"`  // Include request headers in events
}

// HistoryConfig contains request history settings.
type HistoryConfig struct {
	Enabled   bool          `yaml:"enabled"`   // Persist per-request rows
	Path      string        `yaml:"path"`      // SQLite database path
	Retention time.Duration `yaml:"retention"` // How long rows are kept
}

// expandEnvWithDefaults expands environment variables with support for
// default values. Supports both ${VAR} and ${VAR:-default} syntax.
func expandEnvWithDefaults(s string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes.
// Supports ${VAR:-default} env var expansion, env overrides, and validation.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// This lets deployment tooling redirect log paths without editing the
// base config files.
func (c *Config) applyEnvOverrides() {
	if envPath := os.Getenv("GATEWAY_TELEMETRY_LOG"); envPath != "" {
		c.Monitoring.TelemetryPath = envPath
		c.Monitoring.TelemetryEnabled = true
	}
	if envPath := os.Getenv("GATEWAY_HISTORY_DB"); envPath != "" {
		c.History.Path = envPath
		c.History.Enabled = true
	}
}

// applyDefaults fills optional fields that were omitted from the file.
func (c *Config) applyDefaults() {
	c.Optimizer.applyDefaults()
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = DefaultUpstreamTimeout
	}
	if c.History.Enabled && c.History.Retention == 0 {
		c.History.Retention = DefaultHistoryRetention
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ReadTimeout == 0 {
		return fmt.Errorf("server.read_timeout is required")
	}
	if c.Server.WriteTimeout == 0 {
		return fmt.Errorf("server.write_timeout is required")
	}

	if c.Upstream.URL == "" {
		return fmt.Errorf("upstream.url is required")
	}
	u, err := url.Parse(c.Upstream.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid upstream.url: %q", c.Upstream.URL)
	}

	if err := c.Optimizer.Validate(); err != nil {
		return err
	}

	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history.path is required when history.enabled")
	}

	return nil
}

// LoggerConfig converts the monitoring section for the logger.
func (c *Config) LoggerConfig() monitoring.LoggerConfig {
	return monitoring.LoggerConfig{
		Level:  c.Monitoring.LogLevel,
		Format: c.Monitoring.LogFormat,
		Output: c.Monitoring.LogOutput,
	}
}

// TelemetryConfig converts the monitoring section for the tracker.
func (c *Config) TelemetryConfig() monitoring.TelemetryConfig {
	return monitoring.TelemetryConfig{
		Enabled:         c.Monitoring.TelemetryEnabled,
		LogPath:         c.Monitoring.TelemetryPath,
		LogToStdout:     c.Monitoring.LogToStdout,
		VerbosePayloads: c.Monitoring.VerbosePayloads,
	}
}
