// Package config handles configuration loading for lamp.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from LAMP_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/lamp/config.yaml (~/.config when unset)
//
// A path ending in .toml is parsed as TOML; anything else as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	analytics:
//	  api_key: "${LAMP_ANALYTICS_KEY}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	gateway:
//	  timeout: "30s"
//	latch:
//	  ttl: "24h"
//
// # Configuration Sections
//
//	environment: development          # development | staging | production
//
//	gateway:
//	  base_url: "https://api.example.com"
//	  session_cookie: "token"
//	  timeout: "30s"
//
//	analytics:
//	  enabled: true
//	  host: "https://events.example.com"
//	  api_key: "${LAMP_ANALYTICS_KEY}"
//	  sms_prefix: "sms_"
//	  queue_size: 256
//
//	phones:
//	  sms: "+1 (202) 555-0100"
//	  support: "+1 (202) 555-0199"
//
//	database:
//	  path: "~/.local/share/lamp/lamp.db"
//
//	latch:
//	  backend: memory                 # memory | redis
//	  redis_url: "redis://localhost:6379/0"
//	  ttl: "24h"
//
//	logging:
//	  level: info                     # debug | info | warn | error
//	  format: text                    # text | json
//
// Every field except gateway.base_url has a default; see Default.
package config
