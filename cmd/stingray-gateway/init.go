// ABOUTME: Interactive config file generator for the init subcommand
// ABOUTME: Prompts for transports and storage, then writes a validated YAML file

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/2389/stingray-gateway/internal/config"
)

// initAnswers holds everything the init prompts collect.
type initAnswers struct {
	HTTPAddr string
	GRPCAddr string

	Driver string
	DBPath string
	DBURL  string

	DiscordAppID     string
	DiscordPublicKey string

	MatrixEnabled    bool
	MatrixHomeserver string
	MatrixUserID     string

	TailscaleEnabled  bool
	TailscaleHostname string
	TailscaleFunnel   bool

	JWTSecret string
	LogLevel  string
	LogFormat string
}

// getDataPath returns the path to the stingray data directory.
// Priority: XDG_DATA_HOME/stingray > ~/.local/share/stingray
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "stingray")
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func isYes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Fprintln(out)
		return defaultVal
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}

// askInit runs the prompts. Secrets that belong in the environment are
// written as ${VAR} references instead of being asked for.
func askInit(reader *bufio.Reader, out io.Writer) (initAnswers, error) {
	var a initAnswers

	fmt.Fprintln(out, "\n--- Server Configuration ---")
	a.HTTPAddr = prompt(reader, out, "HTTP address", "localhost:8080")
	a.GRPCAddr = prompt(reader, out, "gRPC health address (empty to disable)", "")

	fmt.Fprintln(out, "\n--- Database Configuration ---")
	a.Driver = prompt(reader, out, "Driver (sqlite/postgres)", config.DriverSQLite)
	switch a.Driver {
	case config.DriverSQLite:
		a.DBPath = prompt(reader, out, "SQLite database path", filepath.Join(getDataPath(), "gateway.db"))
	case config.DriverPostgres:
		a.DBURL = prompt(reader, out, "Postgres URL", "${STINGRAY_DATABASE_URL}")
	default:
		return a, fmt.Errorf("unknown driver %q", a.Driver)
	}

	fmt.Fprintln(out, "\n--- Discord ---")
	a.DiscordAppID = prompt(reader, out, "Application ID (empty to skip Discord)", "")
	if a.DiscordAppID != "" {
		a.DiscordPublicKey = prompt(reader, out, "Interactions public key (hex)", "")
	}

	fmt.Fprintln(out, "\n--- Matrix ---")
	a.MatrixEnabled = isYes(prompt(reader, out, "Enable Matrix?", "no"))
	if a.MatrixEnabled {
		a.MatrixHomeserver = prompt(reader, out, "Homeserver URL", "https://matrix.org")
		a.MatrixUserID = prompt(reader, out, "Bot user ID", "@stingray:matrix.org")
	}

	if a.DiscordPublicKey == "" && !a.MatrixEnabled {
		return a, fmt.Errorf("at least one of Discord or Matrix must be configured")
	}

	fmt.Fprintln(out, "\n--- Tailscale Configuration ---")
	a.TailscaleEnabled = isYes(prompt(reader, out, "Enable Tailscale?", "no"))
	if a.TailscaleEnabled {
		a.TailscaleHostname = prompt(reader, out, "Tailscale hostname", "stingray-gateway")
		a.TailscaleFunnel = isYes(prompt(reader, out, "Enable Funnel (public HTTPS)?", "yes"))
	}

	fmt.Fprintln(out, "\n--- Admin API ---")
	if isYes(prompt(reader, out, "Enable the admin API?", "yes")) {
		secret, err := randomSecret()
		if err != nil {
			return a, err
		}
		a.JWTSecret = secret
	}

	fmt.Fprintln(out, "\n--- Logging Configuration ---")
	a.LogLevel = prompt(reader, out, "Log level (debug/info/warn/error)", "info")
	a.LogFormat = prompt(reader, out, "Log format (text/json)", "text")
	return a, nil
}

// renderConfig produces the YAML for a set of answers.
func renderConfig(a initAnswers) string {
	var cfg strings.Builder
	cfg.WriteString("# stingray-gateway configuration\n")
	cfg.WriteString("# Generated by stingray-gateway init\n\n")

	cfg.WriteString("server:\n")
	fmt.Fprintf(&cfg, "  http_addr: %q\n", a.HTTPAddr)
	if a.GRPCAddr != "" {
		fmt.Fprintf(&cfg, "  grpc_addr: %q\n", a.GRPCAddr)
	}
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	fmt.Fprintf(&cfg, "  driver: %q\n", a.Driver)
	if a.Driver == config.DriverPostgres {
		fmt.Fprintf(&cfg, "  url: %q\n", a.DBURL)
	} else {
		fmt.Fprintf(&cfg, "  path: %q\n", a.DBPath)
	}
	cfg.WriteString("\n")

	if a.DiscordPublicKey != "" {
		cfg.WriteString("discord:\n")
		fmt.Fprintf(&cfg, "  application_id: %q\n", a.DiscordAppID)
		fmt.Fprintf(&cfg, "  public_key: %q\n", a.DiscordPublicKey)
		cfg.WriteString("  bot_token: \"${DISCORD_BOT_TOKEN}\"\n")
		cfg.WriteString("  defer_after: \"2500ms\"\n")
		cfg.WriteString("\n")
	}

	if a.MatrixEnabled {
		cfg.WriteString("matrix:\n")
		cfg.WriteString("  enabled: true\n")
		fmt.Fprintf(&cfg, "  homeserver: %q\n", a.MatrixHomeserver)
		fmt.Fprintf(&cfg, "  user_id: %q\n", a.MatrixUserID)
		cfg.WriteString("  access_token: \"${MATRIX_ACCESS_TOKEN}\"\n")
		cfg.WriteString("  command_prefix: \"!\"\n")
		cfg.WriteString("\n")
	}

	cfg.WriteString("tailscale:\n")
	fmt.Fprintf(&cfg, "  enabled: %t\n", a.TailscaleEnabled)
	if a.TailscaleEnabled {
		fmt.Fprintf(&cfg, "  hostname: %q\n", a.TailscaleHostname)
		fmt.Fprintf(&cfg, "  funnel: %t\n", a.TailscaleFunnel)
	}
	cfg.WriteString("\n")

	cfg.WriteString("policy:\n")
	cfg.WriteString("  on_store_error: \"allow\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("sessions:\n")
	cfg.WriteString("  backend: \"memory\"\n")
	cfg.WriteString("  # ttl: \"15m\"  # expire abandoned confirmation flows\n")
	cfg.WriteString("\n")

	if a.JWTSecret != "" {
		cfg.WriteString("admin:\n")
		fmt.Fprintf(&cfg, "  jwt_secret: %q\n", a.JWTSecret)
		cfg.WriteString("\n")
	}

	cfg.WriteString("logging:\n")
	fmt.Fprintf(&cfg, "  level: %q\n", a.LogLevel)
	fmt.Fprintf(&cfg, "  format: %q\n", a.LogFormat)
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: true\n")
	cfg.WriteString("  path: \"/metrics\"\n")
	return cfg.String()
}

func runInit(args []string) error {
	var configFlag string
	fs := newFlagSet("init", &configFlag)
	if err := fs.Parse(args); err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)
	out := os.Stdout

	fmt.Fprintln(out, "stingray-gateway configuration setup")
	fmt.Fprintln(out, "====================================")
	fmt.Fprintln(out)

	outputFile := prompt(reader, out, "Config file path", config.Path(configFlag))
	if _, err := os.Stat(outputFile); err == nil {
		if !isYes(prompt(reader, out, "File exists. Overwrite?", "no")) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	answers, err := askInit(reader, out)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// 0600: the file may carry the admin secret
	if err := os.WriteFile(outputFile, []byte(renderConfig(answers)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if answers.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(answers.DBPath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", outputFile)
	fmt.Fprintln(out, "\nNext steps:")
	if answers.DiscordPublicKey != "" {
		fmt.Fprintln(out, "  export DISCORD_BOT_TOKEN=...")
		fmt.Fprintln(out, "  stingray-gateway commands   # register slash commands")
	}
	if answers.MatrixEnabled {
		fmt.Fprintln(out, "  export MATRIX_ACCESS_TOKEN=...")
	}
	fmt.Fprintln(out, "  stingray-gateway serve")
	return nil
}
