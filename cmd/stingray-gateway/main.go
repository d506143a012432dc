// ABOUTME: Entry point for the stingray-gateway interaction server
// ABOUTME: Subcommands: serve, init, token, commands, health, ready

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/stingray-gateway/internal/auth"
	"github.com/2389/stingray-gateway/internal/config"
	"github.com/2389/stingray-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
     _   _
 ___| |_(_)_ __   __ _ _ __ __ _ _   _
/ __| __| | '_ \ / _' | '__/ _' | | | |
\__ \ |_| | | | | (_| | | | (_| | |_| |
|___/\__|_|_| |_|\__, |_|  \__,_|\__, |
                 |___/           |___/
`

func usage() {
	fmt.Println("Usage: stingray-gateway <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                      Start the gateway server")
	fmt.Println("  init                       Create a new config file interactively")
	fmt.Println("  token --name NAME          Mint an admin API token")
	fmt.Println("  commands [--workspace ID]  Register slash commands with the platform")
	fmt.Println("  health                     Check gateway liveness")
	fmt.Println("  ready                      Check gateway readiness")
	fmt.Println()
	fmt.Println("Every command accepts --config PATH.")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, args)
	case "init":
		err = runInit(args)
	case "token":
		err = runToken(args, os.Stdout)
	case "commands":
		err = runCommands(ctx, args)
	case "health":
		err = runProbe(ctx, args, "/health")
	case "ready":
		err = runProbe(ctx, args, "/health/ready")
	case "version", "--version":
		fmt.Println(version)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newFlagSet returns a flag set carrying the shared --config flag.
func newFlagSet(name string, configPath *string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringVarP(configPath, "config", "c", "", "config file (default $STINGRAY_CONFIG or ~/.config/stingray/gateway.yaml)")
	return fs
}

func loadConfig(flagValue string) (*config.Config, string, error) {
	path := config.Path(flagValue)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func runServe(ctx context.Context, args []string) error {
	var configFlag string
	fs := newFlagSet("serve", &configFlag)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig(configFlag)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	if cfg.Server.GRPCAddr != "" {
		green.Print("    ▶ ")
		fmt.Printf("gRPC:      %s\n", cfg.Server.GRPCAddr)
	}
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Driver)
	if cfg.Discord.Enabled() {
		green.Print("    ▶ ")
		fmt.Printf("Discord:   application %s\n", cfg.Discord.ApplicationID)
	}
	if cfg.Matrix.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Matrix:    %s on %s\n", cfg.Matrix.UserID, cfg.Matrix.Homeserver)
	}

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	fmt.Println()

	logger.Info("starting stingray-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"grpc_addr", cfg.Server.GRPCAddr,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

// runToken mints an admin API token signed with admin.jwt_secret.
func runToken(args []string, out io.Writer) error {
	var configFlag, name string
	var ttl time.Duration
	fs := newFlagSet("token", &configFlag)
	fs.StringVarP(&name, "name", "n", "", "admin name recorded in the token subject and audit log")
	fs.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if name == "" {
		return errors.New("--name is required")
	}
	if ttl <= 0 {
		return errors.New("--ttl must be positive")
	}

	cfg, _, err := loadConfig(configFlag)
	if err != nil {
		return err
	}
	if cfg.Admin.JWTSecret == "" {
		return errors.New("admin.jwt_secret is not configured")
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Admin.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}
	token, err := verifier.Generate(name, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

// runCommands bulk-overwrites the platform's slash command list.
func runCommands(ctx context.Context, args []string) error {
	var configFlag, workspaceID string
	fs := newFlagSet("commands", &configFlag)
	fs.StringVarP(&workspaceID, "workspace", "w", "", "register to one workspace instead of globally")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _, err := loadConfig(configFlag)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging, os.Stderr)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = gw.Shutdown(shutdownCtx)
	}()

	n, err := gw.RegisterCommands(ctx, workspaceID)
	if err != nil {
		return err
	}
	scope := "globally"
	if workspaceID != "" {
		scope = "in workspace " + workspaceID
	}
	color.New(color.FgGreen).Printf("  ✓ Registered %d commands %s\n", n, scope)
	return nil
}

// runProbe requests a health endpoint and prints its body.
func runProbe(ctx context.Context, args []string, path string) error {
	var configFlag string
	fs := newFlagSet("probe", &configFlag)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _, err := loadConfig(configFlag)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s%s", cfg.Server.HTTPAddr, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, body)
	}

	fmt.Println(string(body))
	return nil
}
