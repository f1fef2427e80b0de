// ABOUTME: Configuration loading and parsing for wisp-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete wisp-gateway configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Workflow    WorkflowConfig    `yaml:"workflow"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// WorkflowConfig holds the external workflow engine configuration
type WorkflowConfig struct {
	// WebhookURL is where chat input is dispatched for processing
	WebhookURL string `yaml:"webhook_url"`

	DispatchTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	DispatchTimeoutRaw string `yaml:"dispatch_timeout"`
}

// CorrelationConfig holds pending-correlation lifetime configuration
type CorrelationConfig struct {
	TTL           time.Duration `yaml:"-"`
	SweepInterval time.Duration `yaml:"-"`
	MaxPending    int           `yaml:"max_pending"`

	// Raw string values for YAML unmarshaling
	TTLRaw           string `yaml:"ttl"`
	SweepIntervalRaw string `yaml:"sweep_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the corresponding field is absent from the file.
const (
	DefaultDispatchTimeout = 10 * time.Second
	DefaultCorrelationTTL  = 5 * time.Minute
	DefaultSweepInterval   = time.Minute
	DefaultMaxPending      = 100_000
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

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Workflow.WebhookURL == "" {
		return fmt.Errorf("workflow.webhook_url is required")
	}

	if c.Correlation.MaxPending <= 0 {
		return fmt.Errorf("correlation.max_pending must be positive")
	}

	return nil
}

// applyDefaults fills in zero values left by an incomplete config file.
func (c *Config) applyDefaults() {
	if c.Workflow.DispatchTimeout == 0 {
		c.Workflow.DispatchTimeout = DefaultDispatchTimeout
	}
	if c.Correlation.TTL == 0 {
		c.Correlation.TTL = DefaultCorrelationTTL
	}
	if c.Correlation.SweepInterval == 0 {
		c.Correlation.SweepInterval = DefaultSweepInterval
	}
	if c.Correlation.MaxPending == 0 {
		c.Correlation.MaxPending = DefaultMaxPending
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Workflow.DispatchTimeoutRaw != "" {
		cfg.Workflow.DispatchTimeout, err = time.ParseDuration(cfg.Workflow.DispatchTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing dispatch_timeout %q: %w", cfg.Workflow.DispatchTimeoutRaw, err)
		}
	}

	if cfg.Correlation.TTLRaw != "" {
		cfg.Correlation.TTL, err = time.ParseDuration(cfg.Correlation.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing ttl %q: %w", cfg.Correlation.TTLRaw, err)
		}
	}

	if cfg.Correlation.SweepIntervalRaw != "" {
		cfg.Correlation.SweepInterval, err = time.ParseDuration(cfg.Correlation.SweepIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing sweep_interval %q: %w", cfg.Correlation.SweepIntervalRaw, err)
		}
	}

	return nil
}
