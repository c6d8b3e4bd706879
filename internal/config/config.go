// ABOUTME: Configuration loading and parsing for fold-client
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete fold-client configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	User       UserConfig       `yaml:"user"`
	Connection ConnectionConfig `yaml:"connection"`
	Operations OperationsConfig `yaml:"operations"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds the chat server endpoints and optional auth token.
type ServerConfig struct {
	WSURL   string `yaml:"ws_url"`   // persistent connection endpoint, e.g. ws://localhost:8001
	HTTPURL string `yaml:"http_url"` // companion REST API base, e.g. http://localhost:8001
	Token   string `yaml:"token"`    // optional bearer token for the REST API
}

// UserConfig identifies the user on whose behalf the client operates.
type UserConfig struct {
	ID string `yaml:"id"`
}

// ConnectionConfig holds reconnection backoff tuning.
type ConnectionConfig struct {
	BackoffBase time.Duration `yaml:"-"`
	BackoffCap  time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	BackoffBaseRaw string `yaml:"backoff_base"`
	BackoffCapRaw  string `yaml:"backoff_cap"`
}

// OperationsConfig holds pending-operation tuning.
type OperationsConfig struct {
	Timeout time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the config file omits a value.
const (
	DefaultUserID           = "default_user"
	DefaultBackoffBase      = time.Second
	DefaultBackoffCap       = 30 * time.Second
	DefaultOperationTimeout = 30 * time.Second
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in zero-valued fields.
func (c *Config) applyDefaults() {
	if c.User.ID == "" {
		c.User.ID = DefaultUserID
	}
	if c.Connection.BackoffBase == 0 {
		c.Connection.BackoffBase = DefaultBackoffBase
	}
	if c.Connection.BackoffCap == 0 {
		c.Connection.BackoffCap = DefaultBackoffCap
	}
	if c.Operations.Timeout == 0 {
		c.Operations.Timeout = DefaultOperationTimeout
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.WSURL == "" {
		return fmt.Errorf("server.ws_url is required")
	}
	u, err := url.Parse(c.Server.WSURL)
	if err != nil {
		return fmt.Errorf("server.ws_url is not a valid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("server.ws_url must use ws or wss scheme")
	}

	if c.Server.HTTPURL == "" {
		return fmt.Errorf("server.http_url is required")
	}
	u, err = url.Parse(c.Server.HTTPURL)
	if err != nil {
		return fmt.Errorf("server.http_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.http_url must use http or https scheme")
	}

	if c.Connection.BackoffBase > c.Connection.BackoffCap {
		return fmt.Errorf("connection.backoff_base must not exceed connection.backoff_cap")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Connection.BackoffBaseRaw != "" {
		cfg.Connection.BackoffBase, err = time.ParseDuration(cfg.Connection.BackoffBaseRaw)
		if err != nil {
			return fmt.Errorf("parsing backoff_base %q: %w", cfg.Connection.BackoffBaseRaw, err)
		}
	}

	if cfg.Connection.BackoffCapRaw != "" {
		cfg.Connection.BackoffCap, err = time.ParseDuration(cfg.Connection.BackoffCapRaw)
		if err != nil {
			return fmt.Errorf("parsing backoff_cap %q: %w", cfg.Connection.BackoffCapRaw, err)
		}
	}

	if cfg.Operations.TimeoutRaw != "" {
		cfg.Operations.Timeout, err = time.ParseDuration(cfg.Operations.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing operations timeout %q: %w", cfg.Operations.TimeoutRaw, err)
		}
	}

	return nil
}
