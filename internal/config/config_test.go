// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, defaults, duration parsing and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalConfig = `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
discord:
  application_id: "app-1"
  public_key: "abcd"
`

const withoutDatabase = `
server:
  http_addr: "0.0.0.0:8080"
discord:
  application_id: "app-1"
  public_key: "abcd"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  grpc_addr: "0.0.0.0:50051"
  http_addr: "0.0.0.0:8080"

database:
  driver: "sqlite"
  path: "./test.db"

discord:
  application_id: "app-1"
  public_key: "abcd"
  bot_token: "bot"
  defer_after: "1500ms"
  requests_per_second: 10

matrix:
  enabled: true
  homeserver: "https://matrix.org"
  user_id: "@bot:matrix.org"
  access_token: "matrix-token"
  command_prefix: "?"
  allowed_rooms:
    - "!room1:matrix.org"

policy:
  on_store_error: "deny"

sessions:
  backend: "sqlite"
  ttl: "5m"

handlers:
  tripcode_salt: "pepper"

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/metrics"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.GRPCAddr != "0.0.0.0:50051" {
		t.Errorf("Server.GRPCAddr = %q, want %q", cfg.Server.GRPCAddr, "0.0.0.0:50051")
	}
	if cfg.Discord.DeferAfter != 1500*time.Millisecond {
		t.Errorf("Discord.DeferAfter = %v, want %v", cfg.Discord.DeferAfter, 1500*time.Millisecond)
	}
	if cfg.Discord.RequestsPerSecond != 10 {
		t.Errorf("Discord.RequestsPerSecond = %v, want 10", cfg.Discord.RequestsPerSecond)
	}
	if !cfg.Matrix.Enabled || cfg.Matrix.CommandPrefix != "?" {
		t.Errorf("Matrix = %+v, want enabled with prefix ?", cfg.Matrix)
	}
	if len(cfg.Matrix.AllowedRooms) != 1 {
		t.Errorf("Matrix.AllowedRooms len = %d, want 1", len(cfg.Matrix.AllowedRooms))
	}
	if cfg.Policy.OnStoreError != "deny" {
		t.Errorf("Policy.OnStoreError = %q, want deny", cfg.Policy.OnStoreError)
	}
	if cfg.Sessions.Backend != SessionsSQLite || cfg.Sessions.TTL != 5*time.Minute {
		t.Errorf("Sessions = %+v, want sqlite/5m", cfg.Sessions)
	}
	if cfg.Handlers.TripcodeSalt != "pepper" {
		t.Errorf("Handlers.TripcodeSalt = %q, want pepper", cfg.Handlers.TripcodeSalt)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("Database.Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Discord.DeferAfter != 2500*time.Millisecond {
		t.Errorf("Discord.DeferAfter = %v, want 2.5s", cfg.Discord.DeferAfter)
	}
	if cfg.Policy.OnStoreError != "allow" {
		t.Errorf("Policy.OnStoreError = %q, want allow", cfg.Policy.OnStoreError)
	}
	if cfg.Sessions.Backend != SessionsMemory || cfg.Sessions.TTL != 0 {
		t.Errorf("Sessions = %+v, want memory with no expiry", cfg.Sessions)
	}
	if cfg.Matrix.CommandPrefix != "!" {
		t.Errorf("Matrix.CommandPrefix = %q, want !", cfg.Matrix.CommandPrefix)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want /metrics", cfg.Metrics.Path)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want info/text", cfg.Logging)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "bot-from-env")
	t.Setenv("TEST_JWT_SECRET", strings.Repeat("s", 32))

	cfg, err := Load(writeConfig(t, minimalConfig+`
  bot_token: "${TEST_BOT_TOKEN}"
admin:
  jwt_secret: "${TEST_JWT_SECRET}"
  `+"\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Discord.BotToken != "bot-from-env" {
		t.Errorf("Discord.BotToken = %q, want %q", cfg.Discord.BotToken, "bot-from-env")
	}
	if cfg.Admin.JWTSecret != strings.Repeat("s", 32) {
		t.Errorf("Admin.JWTSecret = %q, want expanded secret", cfg.Admin.JWTSecret)
	}
}

func TestLoad_UnsetEnvVarIsEmpty(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
  bot_token: "${STINGRAY_TEST_DEFINITELY_UNSET}"
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Discord.BotToken != "" {
		t.Errorf("Discord.BotToken = %q, want empty", cfg.Discord.BotToken)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() expected error for nonexistent file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server:\n  http_addr: [unclosed"))
	if err == nil {
		t.Fatal("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
sessions:
  ttl: "soon"
`))
	if err == nil || !strings.Contains(err.Error(), "ttl") {
		t.Fatalf("Load() error = %v, want ttl parse error", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		extra   string
		base    string
		wantErr string
	}{
		{
			name:    "missing http addr",
			base:    "database:\n  path: x\ndiscord:\n  application_id: a\n  public_key: k\n",
			wantErr: "server.http_addr",
		},
		{
			name:    "postgres without url",
			base:    withoutDatabase,
			extra:   "database:\n  driver: postgres\n  path: x\n",
			wantErr: "database.url",
		},
		{
			name:    "unknown driver",
			base:    withoutDatabase,
			extra:   "database:\n  driver: mysql\n  path: x\n",
			wantErr: "database.driver",
		},
		{
			name:    "no frontend",
			base:    "server:\n  http_addr: :8080\ndatabase:\n  path: x\n",
			wantErr: "discord.public_key",
		},
		{
			name:    "matrix without token",
			extra:   "matrix:\n  enabled: true\n  homeserver: h\n  user_id: u\n",
			wantErr: "matrix.access_token",
		},
		{
			name:    "bad store error mode",
			extra:   "policy:\n  on_store_error: maybe\n",
			wantErr: "policy.on_store_error",
		},
		{
			name:    "sessions backend needs matching driver",
			extra:   "sessions:\n  backend: postgres\n",
			wantErr: "sessions.backend",
		},
		{
			name:    "short jwt secret",
			extra:   "admin:\n  jwt_secret: short\n",
			wantErr: "admin.jwt_secret",
		},
		{
			name:    "bad log level",
			extra:   "logging:\n  level: loud\n",
			wantErr: "logging.level",
		},
		{
			name:    "tailscale without hostname",
			base:    "tailscale:\n  enabled: true\ndatabase:\n  path: x\ndiscord:\n  application_id: a\n  public_key: k\n",
			wantErr: "tailscale.hostname",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := tt.base
			if base == "" {
				base = minimalConfig
			}
			_, err := Parse([]byte(base + tt.extra))
			if err == nil {
				t.Fatalf("Parse() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	if got := Path("/flag.yaml"); got != "/flag.yaml" {
		t.Errorf("Path(flag) = %q, want /flag.yaml", got)
	}
	if got := Path(""); got != filepath.Join("/xdg", "stingray", "gateway.yaml") {
		t.Errorf("Path() = %q, want XDG location", got)
	}

	t.Setenv(EnvConfigPath, "/env.yaml")
	if got := Path(""); got != "/env.yaml" {
		t.Errorf("Path() = %q, want /env.yaml", got)
	}
	if got := Path("/flag.yaml"); got != "/flag.yaml" {
		t.Errorf("Path(flag) = %q, flag must win over env", got)
	}
}
