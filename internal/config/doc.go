// Package config handles configuration loading for stingray-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML file with environment variable
// expansion, defaults and validation.
//
// # Configuration File
//
// Locations, first match wins:
//
//  1. The --config flag
//  2. Path from the STINGRAY_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/stingray/gateway.yaml, or ~/.config/stingray/gateway.yaml
//
// # Environment Variable Expansion
//
// Values can reference environment variables with ${VAR_NAME}; unset
// variables expand to the empty string:
//
//	discord:
//	  bot_token: "${DISCORD_BOT_TOKEN}"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8080"    # interactions endpoint, health, metrics, admin API
//	  grpc_addr: "0.0.0.0:50051"   # gRPC health service (optional)
//
//	database:
//	  driver: "sqlite"             # sqlite or postgres
//	  path: "/var/lib/stingray/gateway.db"
//	  url: "${DATABASE_URL}"       # postgres only
//
//	discord:
//	  application_id: "1234"
//	  public_key: "<hex ed25519 key>"
//	  bot_token: "${DISCORD_BOT_TOKEN}"
//	  defer_after: "2.5s"
//	  requests_per_second: 40
//
//	matrix:
//	  enabled: false
//	  homeserver: "https://matrix.org"
//	  user_id: "@stingray:matrix.org"
//	  access_token: "${MATRIX_TOKEN}"
//	  command_prefix: "!"
//
//	policy:
//	  on_store_error: "allow"      # allow, defaults, deny
//	  defaults_file: ""            # optional TOML rule table
//
//	sessions:
//	  backend: "memory"            # memory, sqlite, postgres
//	  ttl: "15m"
//
//	admin:
//	  jwt_secret: "${STINGRAY_JWT_SECRET}"   # at least 32 bytes; API disabled when empty
//
//	logging:
//	  level: "info"                # debug, info, warn, error
//	  format: "text"               # text, json
//
// Tailscale and metrics sections follow the same shape as the server's
// other listeners; see TailscaleConfig and MetricsConfig.
package config
