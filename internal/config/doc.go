// Package config handles configuration loading for mapgate.
//
// # Overview
//
// Configuration comes from an optional YAML or TOML file, then MAPGATE_*
// environment variables, then the OS keyring for a missing client secret.
//
// # Configuration File
//
// Resolve picks the source in order:
//
//  1. Path passed on the command line (-config)
//  2. Path from MAPGATE_CONFIG environment variable
//  3. Environment variables only (FromEnv)
//
// Files ending in .toml are decoded as TOML; anything else as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	platform:
//	  client_secret: "${MAPGATE_CLIENT_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
// LoadDotEnv reads a .env file first without overriding the real environment.
//
// # Configuration Sections
//
// Platform:
//
//	platform:
//	  base_url: "https://api.example.com"
//	  client_id: "my-client"
//	  client_secret: "${MAPGATE_CLIENT_SECRET}"
//	  api_key: ""                 # set to use API-key mode instead of OAuth
//	  api_key_header: "X-API-Key"
//	  keyring: false              # read client_secret from the OS keyring
//	  auth_timeout: "10s"
//	  request_timeout: "30s"
//
// Server:
//
//	server:
//	  http_addr: "127.0.0.1:8080"
//	  jwt_secret: "${MAPGATE_JWT_SECRET}"
//	  require_auth: false
//
// Audit:
//
//	audit:
//	  enabled: true
//	  path: "mapgate.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Environment Overrides
//
//	MAPGATE_BASE_URL, MAPGATE_CLIENT_ID, MAPGATE_CLIENT_SECRET,
//	MAPGATE_API_KEY, MAPGATE_HTTP_ADDR, MAPGATE_LOG_LEVEL
//
// # Validation
//
// Validate checks:
//
//   - platform.base_url is an http(s) URL
//   - timeouts are positive
//   - JWT secret minimum length (32 bytes) when require_auth is set
//   - audit path when audit is enabled
//   - logging level and format values
//
// Credentials are not required here; a client without them fails its first
// call with platform.ErrAuthConfig.
package config
