// ABOUTME: Configuration loading and parsing for lamp
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete lamp configuration
type Config struct {
	Environment string          `yaml:"environment" toml:"environment"`
	Gateway     GatewayConfig   `yaml:"gateway" toml:"gateway"`
	Analytics   AnalyticsConfig `yaml:"analytics" toml:"analytics"`
	Phones      PhonesConfig    `yaml:"phones" toml:"phones"`
	Database    DatabaseConfig  `yaml:"database" toml:"database"`
	Latch       LatchConfig     `yaml:"latch" toml:"latch"`
	Logging     LoggingConfig   `yaml:"logging" toml:"logging"`
}

// GatewayConfig holds the account gateway connection settings
type GatewayConfig struct {
	BaseURL       string        `yaml:"base_url" toml:"base_url"`
	SessionCookie string        `yaml:"session_cookie" toml:"session_cookie"`
	Timeout       time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// AnalyticsConfig holds the analytics identity backend settings
type AnalyticsConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Host      string `yaml:"host" toml:"host"`
	APIKey    string `yaml:"api_key" toml:"api_key"`
	SMSPrefix string `yaml:"sms_prefix" toml:"sms_prefix"`
	QueueSize int    `yaml:"queue_size" toml:"queue_size"`
}

// PhonesConfig holds display phone numbers. They are shown, never dialed.
type PhonesConfig struct {
	SMS     string `yaml:"sms" toml:"sms"`
	Support string `yaml:"support" toml:"support"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LatchConfig selects where one-shot latches are kept
type LatchConfig struct {
	Backend  string        `yaml:"backend" toml:"backend"` // memory | redis
	RedisURL string        `yaml:"redis_url" toml:"redis_url"`
	TTL      time.Duration `yaml:"-" toml:"-"`

	TTLRaw string `yaml:"ttl" toml:"ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Latch backends
const (
	LatchMemory = "memory"
	LatchRedis  = "redis"
)

// Default returns a configuration with every optional field filled in.
func Default() *Config {
	return &Config{
		Environment: "development",
		Gateway: GatewayConfig{
			SessionCookie: "token",
			Timeout:       30 * time.Second,
		},
		Analytics: AnalyticsConfig{
			SMSPrefix: "sms_",
			QueueSize: 256,
		},
		Database: DatabaseConfig{Path: filepath.Join(dataDir(), "lamp.db")},
		Latch: LatchConfig{
			Backend: LatchMemory,
			TTL:     24 * time.Hour,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// DefaultPath returns LAMP_CONFIG if set, else $XDG_CONFIG_HOME/lamp/config.yaml.
func DefaultPath() string {
	if p := os.Getenv("LAMP_CONFIG"); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "lamp", "config.yaml")
}

func dataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "lamp")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are read as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	cfg.Database.Path = expandHome(cfg.Database.Path)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
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

// expandHome replaces a leading ~/ with the user's home directory.
func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Environment {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("environment must be development, staging, or production, got %q", c.Environment)
	}

	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url is required")
	}
	if err := validateHTTPURL(c.Gateway.BaseURL); err != nil {
		return fmt.Errorf("gateway.base_url: %w", err)
	}

	if c.Analytics.Enabled {
		if c.Analytics.Host == "" {
			return fmt.Errorf("analytics.host is required when analytics is enabled")
		}
		if err := validateHTTPURL(c.Analytics.Host); err != nil {
			return fmt.Errorf("analytics.host: %w", err)
		}
		if c.Analytics.APIKey == "" {
			return fmt.Errorf("analytics.api_key is required when analytics is enabled")
		}
	}
	if c.Analytics.SMSPrefix == "" {
		return fmt.Errorf("analytics.sms_prefix must not be empty")
	}
	if strings.Contains(c.Analytics.SMSPrefix, "-") {
		return fmt.Errorf("analytics.sms_prefix must not contain '-'")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Latch.Backend {
	case LatchMemory:
	case LatchRedis:
		if c.Latch.RedisURL == "" {
			return fmt.Errorf("latch.redis_url is required when latch.backend is redis")
		}
	default:
		return fmt.Errorf("latch.backend must be memory or redis, got %q", c.Latch.Backend)
	}
	if c.Latch.TTL <= 0 {
		return fmt.Errorf("latch.ttl must be positive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https scheme")
	}
	if u.Host == "" {
		return fmt.Errorf("must include a host")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Gateway.TimeoutRaw != "" {
		cfg.Gateway.Timeout, err = time.ParseDuration(cfg.Gateway.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing gateway.timeout %q: %w", cfg.Gateway.TimeoutRaw, err)
		}
	}

	if cfg.Latch.TTLRaw != "" {
		cfg.Latch.TTL, err = time.ParseDuration(cfg.Latch.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing latch.ttl %q: %w", cfg.Latch.TTLRaw, err)
		}
	}

	return nil
}
