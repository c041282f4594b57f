// Package config handles configuration loading for noty-gateway.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from NOTY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/noty/gateway.yaml
//  3. ~/.config/noty/gateway.yaml
//
// Files ending in .toml are read as TOML; anything else as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  secret_key: "${NOTY_SECRET_KEY}"
//	  publisher_token: "${NOTY_PUBLISHER_TOKEN}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Durations
//
// Duration fields take Go duration strings or a bare integer of seconds:
//
//	auth:
//	  validity_window: 3600   # same as "1h"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:8080"
//	  shutdown_timeout: "10s"
//
//	tailscale:
//	  enabled: false
//	  hostname: "noty"
//	  auth_key: "${TS_AUTHKEY}"
//	  https: true
//
//	auth:
//	  mac_algorithm: "HmacSHA256"   # HmacSHA256, HmacSHA384, HmacSHA512
//	  secret_key: "${NOTY_SECRET_KEY}"   # at least 32 bytes
//	  validity_window: "1h"
//	  publisher_token: "${NOTY_PUBLISHER_TOKEN}"   # empty disables publishers
//	  password_check: "none"        # or "store"
//	  cookie_expiry: "relative"     # or "absolute"
//
//	database:
//	  path: "/var/lib/noty/users.db"   # required for password_check: store
//
//	pipeline:
//	  upstream_url: ""              # empty uses the built-in broker
//	  dedupe_ttl: "5m"
//	  dedupe_max_entries: 100000
//
//	logging:
//	  level: "info"                 # debug, info, warn, error
//	  format: "text"                # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
package config
