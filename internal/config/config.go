// ABOUTME: Configuration loading and parsing for stingray-gateway
// ABOUTME: Supports YAML files with environment variable expansion, duration parsing and defaults

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that points at the config file.
const EnvConfigPath = "STINGRAY_CONFIG"

// Config represents the complete stingray-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database"`
	Discord   DiscordConfig   `yaml:"discord"`
	Matrix    MatrixConfig    `yaml:"matrix"`
	Policy    PolicyConfig    `yaml:"policy"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Admin     AdminConfig     `yaml:"admin"`
	Handlers  HandlersConfig  `yaml:"handlers"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
	Funnel    bool   `yaml:"funnel"` // expose the HTTP listener publicly over HTTPS
}

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"` // sqlite file
	URL    string `yaml:"url"`  // postgres connection string
}

// DiscordConfig holds the interactions endpoint and REST client settings
type DiscordConfig struct {
	ApplicationID     string  `yaml:"application_id"`
	PublicKey         string  `yaml:"public_key"`
	BotToken          string  `yaml:"bot_token"`
	APIBase           string  `yaml:"api_base"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	DeferAfter    time.Duration `yaml:"-"`
	DeferAfterRaw string        `yaml:"defer_after"`
}

// Enabled reports whether the interactions endpoint can be served.
func (d DiscordConfig) Enabled() bool {
	return d.PublicKey != ""
}

// MatrixConfig holds Matrix integration configuration
type MatrixConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Homeserver    string   `yaml:"homeserver"`
	UserID        string   `yaml:"user_id"`
	AccessToken   string   `yaml:"access_token"`
	CommandPrefix string   `yaml:"command_prefix"`
	AllowedRooms  []string `yaml:"allowed_rooms"`
}

// PolicyConfig controls how command rules are resolved
type PolicyConfig struct {
	OnStoreError string `yaml:"on_store_error"` // allow | defaults | deny
	DefaultsFile string `yaml:"defaults_file"`  // optional TOML rule table
}

// Session backends.
const (
	SessionsMemory   = "memory"
	SessionsSQLite   = "sqlite"
	SessionsPostgres = "postgres"
)

// SessionsConfig holds confirmation session storage configuration
type SessionsConfig struct {
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"-"` // zero keeps a flow until it finishes or is replaced
	TTLRaw  string        `yaml:"ttl"`
}

// AdminConfig holds admin API configuration. The API is off without a secret.
type AdminConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// HandlersConfig holds settings for individual commands
type HandlersConfig struct {
	TripcodeSalt string `yaml:"tripcode_salt"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Path returns the config file to load.
// Priority: flag value > STINGRAY_CONFIG env var > XDG_CONFIG_HOME/stingray/gateway.yaml > ~/.config/stingray/gateway.yaml
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "stingray", "gateway.yaml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates raw YAML.
func Parse(data []byte) (*Config, error) {
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

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Discord.DeferAfter == 0 {
		c.Discord.DeferAfter = 2500 * time.Millisecond
	}
	if c.Matrix.CommandPrefix == "" {
		c.Matrix.CommandPrefix = "!"
	}
	if c.Policy.OnStoreError == "" {
		c.Policy.OnStoreError = "allow"
	}
	if c.Sessions.Backend == "" {
		c.Sessions.Backend = SessionsMemory
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// Server addresses are required unless Tailscale is enabled
	if !c.Tailscale.Enabled {
		if c.Server.HTTPAddr == "" {
			return fmt.Errorf("server.http_addr is required (or enable tailscale)")
		}
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}

	if !c.Discord.Enabled() && !c.Matrix.Enabled {
		return fmt.Errorf("configure discord.public_key or enable matrix")
	}
	if c.Discord.Enabled() && c.Discord.ApplicationID == "" {
		return fmt.Errorf("discord.application_id is required with discord.public_key")
	}
	if c.Discord.RequestsPerSecond < 0 {
		return fmt.Errorf("discord.requests_per_second must not be negative")
	}
	if c.Matrix.Enabled {
		if c.Matrix.Homeserver == "" || c.Matrix.UserID == "" || c.Matrix.AccessToken == "" {
			return fmt.Errorf("matrix.homeserver, matrix.user_id and matrix.access_token are required when matrix is enabled")
		}
	}

	if !slices.Contains([]string{"allow", "defaults", "deny"}, c.Policy.OnStoreError) {
		return fmt.Errorf("policy.on_store_error must be allow, defaults or deny, got %q", c.Policy.OnStoreError)
	}

	switch c.Sessions.Backend {
	case SessionsMemory:
	case SessionsSQLite, SessionsPostgres:
		if c.Sessions.Backend != c.Database.Driver {
			return fmt.Errorf("sessions.backend %q needs database.driver %q", c.Sessions.Backend, c.Sessions.Backend)
		}
	default:
		return fmt.Errorf("sessions.backend must be memory, sqlite or postgres, got %q", c.Sessions.Backend)
	}
	if c.Sessions.TTL < 0 {
		return fmt.Errorf("sessions.ttl must not be negative")
	}

	if c.Admin.JWTSecret != "" && len(c.Admin.JWTSecret) < 32 {
		return fmt.Errorf("admin.jwt_secret must be at least 32 bytes")
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	if !slices.Contains([]string{"text", "json"}, c.Logging.Format) {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Discord.DeferAfterRaw != "" {
		cfg.Discord.DeferAfter, err = time.ParseDuration(cfg.Discord.DeferAfterRaw)
		if err != nil {
			return fmt.Errorf("parsing defer_after %q: %w", cfg.Discord.DeferAfterRaw, err)
		}
	}

	if cfg.Sessions.TTLRaw != "" {
		cfg.Sessions.TTL, err = time.ParseDuration(cfg.Sessions.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing ttl %q: %w", cfg.Sessions.TTLRaw, err)
		}
	}

	return nil
}
