// ABOUTME: Configuration loading and parsing for mapgate
// ABOUTME: Supports YAML or TOML files with env expansion, env overrides, and keyring secrets

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	"github.com/2389/mapgate/internal/platform"
)

// Environment variables read by FromEnv and applied over file values by Load.
const (
	EnvBaseURL      = "MAPGATE_BASE_URL"
	EnvClientID     = "MAPGATE_CLIENT_ID"
	EnvClientSecret = "MAPGATE_CLIENT_SECRET"
	EnvAPIKey       = "MAPGATE_API_KEY"
	EnvHTTPAddr     = "MAPGATE_HTTP_ADDR"
	EnvLogLevel     = "MAPGATE_LOG_LEVEL"
	EnvConfigPath   = "MAPGATE_CONFIG"
)

// KeyringService is the OS keyring service holding client secrets, keyed by client id.
const KeyringService = "mapgate"

// Defaults applied before file and environment values.
const (
	DefaultHTTPAddr  = "127.0.0.1:8080"
	DefaultAuditPath = "mapgate.db"
)

// minJWTSecretLength matches the HS256 key size.
const minJWTSecretLength = 32

// Config represents the complete mapgate configuration
type Config struct {
	Platform PlatformConfig `yaml:"platform" toml:"platform"`
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Audit    AuditConfig    `yaml:"audit" toml:"audit"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// PlatformConfig holds the upstream platform endpoint and process-level credentials
type PlatformConfig struct {
	BaseURL      string `yaml:"base_url" toml:"base_url"`
	ClientID     string `yaml:"client_id" toml:"client_id"`
	ClientSecret string `yaml:"client_secret" toml:"client_secret"`
	APIKey       string `yaml:"api_key" toml:"api_key"`
	APIKeyHeader string `yaml:"api_key_header" toml:"api_key_header"`
	// Keyring resolves a missing client secret from the OS keyring.
	Keyring bool `yaml:"keyring" toml:"keyring"`

	AuthTimeout    time.Duration `yaml:"-" toml:"-"`
	RequestTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	AuthTimeoutRaw    string `yaml:"auth_timeout" toml:"auth_timeout"`
	RequestTimeoutRaw string `yaml:"request_timeout" toml:"request_timeout"`
}

// ServerConfig holds HTTP listener and inbound auth configuration
type ServerConfig struct {
	HTTPAddr    string `yaml:"http_addr" toml:"http_addr"`
	JWTSecret   string `yaml:"jwt_secret" toml:"jwt_secret"`
	RequireAuth bool   `yaml:"require_auth" toml:"require_auth"`
}

// AuditConfig holds tool call audit log configuration
type AuditConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns a Config with every default filled in and no credentials.
func Default() *Config {
	return &Config{
		Platform: PlatformConfig{
			APIKeyHeader:   platform.DefaultAPIKeyHeader,
			AuthTimeout:    platform.DefaultAuthTimeout,
			RequestTimeout: platform.DefaultRequestTimeout,
		},
		Server:  ServerConfig{HTTPAddr: DefaultHTTPAddr},
		Audit:   AuditConfig{Path: DefaultAuditPath},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded, then MAPGATE_*
// variables override the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	return finish(cfg)
}

// FromEnv builds a Config from defaults and MAPGATE_* environment variables only.
func FromEnv() (*Config, error) {
	return finish(Default())
}

// Resolve loads path when given, else the file named by MAPGATE_CONFIG, else FromEnv.
func Resolve(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return FromEnv()
	}
	return Load(path)
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ./.env) into the
// environment without overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

func finish(cfg *Config) (*Config, error) {
	applyEnv(cfg)

	if err := resolveKeyring(cfg); err != nil {
		return nil, err
	}

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

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	override(&cfg.Platform.BaseURL, EnvBaseURL)
	override(&cfg.Platform.ClientID, EnvClientID)
	override(&cfg.Platform.ClientSecret, EnvClientSecret)
	override(&cfg.Platform.APIKey, EnvAPIKey)
	override(&cfg.Server.HTTPAddr, EnvHTTPAddr)
	override(&cfg.Logging.Level, EnvLogLevel)
}

func resolveKeyring(cfg *Config) error {
	p := &cfg.Platform
	if !p.Keyring || p.ClientSecret != "" || p.ClientID == "" || p.APIKey != "" {
		return nil
	}
	secret, err := keyring.Get(KeyringService, p.ClientID)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("reading client secret from keyring: %w", err)
	}
	p.ClientSecret = secret
	return nil
}

// StoreSecret saves a client secret in the OS keyring under clientID.
func StoreSecret(clientID, secret string) error {
	if clientID == "" {
		return fmt.Errorf("client id is required")
	}
	if err := keyring.Set(KeyringService, clientID, secret); err != nil {
		return fmt.Errorf("writing client secret to keyring: %w", err)
	}
	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
// Credentials are optional: a missing pair surfaces on the first platform call.
func (c *Config) Validate() error {
	if c.Platform.BaseURL == "" {
		return fmt.Errorf("platform.base_url is required (or set %s)", EnvBaseURL)
	}
	u, err := url.Parse(c.Platform.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("platform.base_url %q must be an http(s) URL", c.Platform.BaseURL)
	}

	if c.Platform.AuthTimeout <= 0 {
		return fmt.Errorf("platform.auth_timeout must be positive")
	}
	if c.Platform.RequestTimeout <= 0 {
		return fmt.Errorf("platform.request_timeout must be positive")
	}

	if c.Server.RequireAuth && len(c.Server.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("server.jwt_secret must be at least %d bytes when require_auth is set", minJWTSecretLength)
	}

	if c.Audit.Enabled && c.Audit.Path == "" {
		return fmt.Errorf("audit.path is required when audit is enabled")
	}

	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	return nil
}

// Credentials returns the process-level platform credentials.
func (p PlatformConfig) Credentials() platform.Credentials {
	return platform.Credentials{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		APIKey:       p.APIKey,
	}
}

// ClientConfig returns a platform client configuration carrying these settings.
func (p PlatformConfig) ClientConfig(logger *slog.Logger) platform.Config {
	return platform.Config{
		BaseURL:        p.BaseURL,
		Credentials:    p.Credentials(),
		AuthTimeout:    p.AuthTimeout,
		RequestTimeout: p.RequestTimeout,
		APIKeyHeader:   p.APIKeyHeader,
		Logger:         logger,
	}
}

// SlogLevel returns the configured log level, defaulting to info.
func (l LoggingConfig) SlogLevel() slog.Level {
	level, err := parseLevel(l.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging.level %q must be debug, info, warn or error", s)
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Platform.AuthTimeoutRaw != "" {
		cfg.Platform.AuthTimeout, err = time.ParseDuration(cfg.Platform.AuthTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing auth_timeout %q: %w", cfg.Platform.AuthTimeoutRaw, err)
		}
	}

	if cfg.Platform.RequestTimeoutRaw != "" {
		cfg.Platform.RequestTimeout, err = time.ParseDuration(cfg.Platform.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Platform.RequestTimeoutRaw, err)
		}
	}

	return nil
}
