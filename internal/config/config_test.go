// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
environment: staging

gateway:
  base_url: "https://api.example.com"
  timeout: "10s"

analytics:
  enabled: true
  host: "https://events.example.com"
  api_key: "phc_test"
  sms_prefix: "txt_"

phones:
  sms: "+1 (202) 555-0100"

database:
  path: "./test.db"

latch:
  backend: redis
  redis_url: "redis://localhost:6379/0"
  ttl: "1h"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Environment != "staging" {
		t.Errorf("Environment = %q, want %q", cfg.Environment, "staging")
	}
	if cfg.Gateway.BaseURL != "https://api.example.com" {
		t.Errorf("Gateway.BaseURL = %q", cfg.Gateway.BaseURL)
	}
	if cfg.Gateway.Timeout != 10*time.Second {
		t.Errorf("Gateway.Timeout = %v, want 10s", cfg.Gateway.Timeout)
	}
	if cfg.Gateway.SessionCookie != "token" {
		t.Errorf("Gateway.SessionCookie = %q, want default %q", cfg.Gateway.SessionCookie, "token")
	}
	if !cfg.Analytics.Enabled || cfg.Analytics.APIKey != "phc_test" || cfg.Analytics.SMSPrefix != "txt_" {
		t.Errorf("Analytics = %+v", cfg.Analytics)
	}
	if cfg.Analytics.QueueSize != 256 {
		t.Errorf("Analytics.QueueSize = %d, want default 256", cfg.Analytics.QueueSize)
	}
	if cfg.Phones.SMS != "+1 (202) 555-0100" {
		t.Errorf("Phones.SMS = %q", cfg.Phones.SMS)
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Latch.Backend != LatchRedis || cfg.Latch.TTL != time.Hour {
		t.Errorf("Latch = %+v", cfg.Latch)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_ValidTOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
environment = "production"

[gateway]
base_url = "https://api.example.com"

[latch]
backend = "memory"
ttl = "30m"

[logging]
level = "warn"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Environment != "production" {
		t.Errorf("Environment = %q", cfg.Environment)
	}
	if cfg.Latch.TTL != 30*time.Minute {
		t.Errorf("Latch.TTL = %v, want 30m", cfg.Latch.TTL)
	}
	if cfg.Logging.Level != "warn" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/lamp-data")
	path := writeConfig(t, "config.yaml", `
gateway:
  base_url: "http://localhost:8080"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %q, want development", cfg.Environment)
	}
	if cfg.Gateway.Timeout != 30*time.Second {
		t.Errorf("Gateway.Timeout = %v, want 30s", cfg.Gateway.Timeout)
	}
	if cfg.Analytics.Enabled {
		t.Error("Analytics.Enabled = true, want false by default")
	}
	if cfg.Analytics.SMSPrefix != "sms_" {
		t.Errorf("Analytics.SMSPrefix = %q, want sms_", cfg.Analytics.SMSPrefix)
	}
	if cfg.Database.Path != "/tmp/lamp-data/lamp/lamp.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Latch.Backend != LatchMemory || cfg.Latch.TTL != 24*time.Hour {
		t.Errorf("Latch = %+v", cfg.Latch)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_LAMP_KEY", "phc_from_env")
	t.Setenv("TEST_LAMP_GATEWAY", "https://env.example.com")
	path := writeConfig(t, "config.yaml", `
gateway:
  base_url: "${TEST_LAMP_GATEWAY}"
analytics:
  enabled: true
  host: "https://events.example.com"
  api_key: "${TEST_LAMP_KEY}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Gateway.BaseURL != "https://env.example.com" {
		t.Errorf("Gateway.BaseURL = %q", cfg.Gateway.BaseURL)
	}
	if cfg.Analytics.APIKey != "phc_from_env" {
		t.Errorf("Analytics.APIKey = %q", cfg.Analytics.APIKey)
	}
}

func TestLoad_HomeExpansion(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	path := writeConfig(t, "config.yaml", `
gateway:
  base_url: "https://api.example.com"
database:
  path: "~/lamp/test.db"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if want := filepath.Join(home, "lamp", "test.db"); cfg.Database.Path != want {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, want)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{
			name:    "missing base url",
			file:    "config.yaml",
			content: "environment: development\n",
			wantErr: "gateway.base_url is required",
		},
		{
			name:    "bad scheme",
			file:    "config.yaml",
			content: "gateway:\n  base_url: \"ftp://api.example.com\"\n",
			wantErr: "http or https",
		},
		{
			name:    "unknown environment",
			file:    "config.yaml",
			content: "environment: qa\ngateway:\n  base_url: \"https://api.example.com\"\n",
			wantErr: "environment must be",
		},
		{
			name:    "analytics without key",
			file:    "config.yaml",
			content: "gateway:\n  base_url: \"https://api.example.com\"\nanalytics:\n  enabled: true\n  host: \"https://events.example.com\"\n",
			wantErr: "analytics.api_key is required",
		},
		{
			name:    "sms prefix with separator",
			file:    "config.yaml",
			content: "gateway:\n  base_url: \"https://api.example.com\"\nanalytics:\n  sms_prefix: \"sms-\"\n",
			wantErr: "must not contain",
		},
		{
			name:    "redis without url",
			file:    "config.yaml",
			content: "gateway:\n  base_url: \"https://api.example.com\"\nlatch:\n  backend: redis\n",
			wantErr: "latch.redis_url is required",
		},
		{
			name:    "bad duration",
			file:    "config.yaml",
			content: "gateway:\n  base_url: \"https://api.example.com\"\n  timeout: \"soon\"\n",
			wantErr: "parsing gateway.timeout",
		},
		{
			name:    "bad log level",
			file:    "config.toml",
			content: "[gateway]\nbase_url = \"https://api.example.com\"\n[logging]\nlevel = \"loud\"\n",
			wantErr: "logging.level",
		},
		{
			name:    "invalid yaml",
			file:    "config.yaml",
			content: "gateway: [unclosed",
			wantErr: "parsing config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.content))
			if err == nil {
				t.Fatal("Load() should have returned an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("Load() error = %v", err)
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("LAMP_CONFIG", "/etc/lamp.toml")
	if got := DefaultPath(); got != "/etc/lamp.toml" {
		t.Errorf("DefaultPath() = %q, want LAMP_CONFIG value", got)
	}

	t.Setenv("LAMP_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got := DefaultPath(); got != "/tmp/xdg/lamp/config.yaml" {
		t.Errorf("DefaultPath() = %q", got)
	}
}
