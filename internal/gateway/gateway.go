// ABOUTME: Gateway orchestrator that wires stores, policy, handlers and transports
// ABOUTME: Manages HTTP and gRPC listeners, the Matrix frontend and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/keepalive"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/stingray-gateway/internal/auth"
	"github.com/2389/stingray-gateway/internal/command"
	"github.com/2389/stingray-gateway/internal/config"
	"github.com/2389/stingray-gateway/internal/discord"
	"github.com/2389/stingray-gateway/internal/dispatch"
	"github.com/2389/stingray-gateway/internal/handlers"
	"github.com/2389/stingray-gateway/internal/matrix"
	"github.com/2389/stingray-gateway/internal/metrics"
	"github.com/2389/stingray-gateway/internal/platform"
	"github.com/2389/stingray-gateway/internal/policy"
	"github.com/2389/stingray-gateway/internal/session"
	"github.com/2389/stingray-gateway/internal/store"
	"github.com/2389/stingray-gateway/internal/supervisor"
)

// postgresMaxConns bounds the pgx pool.
const postgresMaxConns = 10

// Gateway orchestrates the stingray-gateway components.
type Gateway struct {
	config     *config.Config
	store      store.Store
	sessions   session.Store
	resolver   *policy.Resolver
	registry   *command.Registry
	dispatcher *dispatch.Dispatcher
	supervisor *supervisor.Supervisor
	verifier   *auth.JWTVerifier // nil when the admin API is off

	discordClient *discord.Client
	matrix        *matrix.Frontend

	handler     http.Handler
	httpServer  *http.Server
	grpcServer  *grpc.Server
	health      *health.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger
}

// initStore opens the configured database.
func initStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		s, err := store.NewPostgresStore(ctx, cfg.Database.URL, postgresMaxConns)
		if err != nil {
			return nil, fmt.Errorf("initializing postgres store: %w", err)
		}
		return s, nil
	default:
		dbPath := cfg.Database.Path
		if envPath := os.Getenv("STINGRAY_DB_PATH"); envPath != "" {
			dbPath = envPath
		}
		s, err := store.NewSQLiteStore(dbPath)
		if err != nil {
			return nil, fmt.Errorf("initializing store: %w", err)
		}
		return s, nil
	}
}

// initSessions picks where confirmation flows live.
func initSessions(cfg *config.Config, s store.Store) session.Store {
	if cfg.Sessions.Backend == config.SessionsMemory {
		return session.NewMemoryStore(cfg.Sessions.TTL)
	}
	return session.NewPersistentStore(s, cfg.Sessions.TTL)
}

// initResolver builds the policy resolver over the store.
func initResolver(cfg *config.Config, s store.Store, logger *slog.Logger) (*policy.Resolver, error) {
	mode, err := policy.ParseStoreErrorMode(cfg.Policy.OnStoreError)
	if err != nil {
		return nil, err
	}
	var defaults policy.Defaults
	if cfg.Policy.DefaultsFile != "" {
		defaults, err = policy.LoadDefaults(cfg.Policy.DefaultsFile)
		if err != nil {
			return nil, fmt.Errorf("loading policy defaults: %w", err)
		}
		logger.Info("loaded policy defaults", "path", cfg.Policy.DefaultsFile, "commands", len(defaults))
	}
	return policy.NewResolver(policy.ResolverConfig{
		Settings:     s,
		Defaults:     defaults,
		OnStoreError: mode,
		Logger:       logger,
	}), nil
}

func newGRPCServer() *grpc.Server {
	return grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	gw, err := newWithStore(cfg, s, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return gw, nil
}

func newWithStore(cfg *config.Config, s store.Store, logger *slog.Logger) (*Gateway, error) {
	resolver, err := initResolver(cfg, s, logger)
	if err != nil {
		return nil, err
	}

	registry := command.NewRegistry(logger)
	if err := handlers.RegisterAll(handlers.Deps{
		Store:        s,
		Resolver:     resolver,
		Registry:     registry,
		Logger:       logger,
		TripcodeSalt: cfg.Handlers.TripcodeSalt,
	}); err != nil {
		return nil, fmt.Errorf("registering commands: %w", err)
	}

	sup := supervisor.New(logger)
	gw := &Gateway{
		config:     cfg,
		store:      s,
		sessions:   initSessions(cfg, s),
		resolver:   resolver,
		registry:   registry,
		supervisor: sup,
		logger:     logger.With("component", "gateway"),
	}

	platforms := map[string]platform.Guilds{}
	if cfg.Discord.BotToken != "" {
		gw.discordClient = discord.NewClient(discord.ClientConfig{
			BaseURL:           cfg.Discord.APIBase,
			BotToken:          cfg.Discord.BotToken,
			ApplicationID:     cfg.Discord.ApplicationID,
			RequestsPerSecond: cfg.Discord.RequestsPerSecond,
			Logger:            logger,
		})
		platforms[discord.FrontendName] = gw.discordClient
	}

	gw.dispatcher = dispatch.New(dispatch.Config{
		Registry:   registry,
		Resolver:   resolver,
		Sessions:   gw.sessions,
		Supervisor: sup,
		Logger:     logger,
		Platforms:  platforms,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/health/ready", gw.handleReady)

	if cfg.Discord.Enabled() {
		if err := gw.registerDiscord(mux, logger); err != nil {
			return nil, err
		}
	}

	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
		logger.Info("metrics endpoint enabled", "path", cfg.Metrics.Path)
	}

	if err := gw.registerAdminAPI(mux, logger); err != nil {
		return nil, err
	}

	if cfg.Matrix.Enabled {
		gw.matrix, err = matrix.New(matrix.Config{
			Homeserver:    cfg.Matrix.Homeserver,
			UserID:        cfg.Matrix.UserID,
			AccessToken:   cfg.Matrix.AccessToken,
			CommandPrefix: cfg.Matrix.CommandPrefix,
			AllowedRooms:  cfg.Matrix.AllowedRooms,
			Handler:       gw.dispatcher,
			Supervisor:    sup,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
	}

	gw.grpcServer = newGRPCServer()
	gw.health = registerHealthService(gw.grpcServer)

	gw.handler = mux
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	gw.logger.Info("=== GATEWAY CONFIGURED ===",
		"commands", len(registry.Names()),
		"database", cfg.Database.Driver,
		"sessions", cfg.Sessions.Backend,
		"discord", cfg.Discord.Enabled(),
		"matrix", cfg.Matrix.Enabled,
		"admin_api", gw.verifier != nil,
	)
	return gw, nil
}

// registerDiscord mounts the signed interactions endpoint.
func (g *Gateway) registerDiscord(mux *http.ServeMux, logger *slog.Logger) error {
	verifier, err := discord.NewVerifier(g.config.Discord.PublicKey)
	if err != nil {
		return fmt.Errorf("discord public key: %w", err)
	}
	cfg := discord.ServerConfig{
		Verifier:   verifier,
		Handler:    g.dispatcher,
		DeferAfter: g.config.Discord.DeferAfter,
		Logger:     logger,
	}
	if g.discordClient != nil {
		cfg.Webhooks = g.discordClient
		cfg.Owners = g.discordClient
	} else {
		logger.Warn("discord.bot_token not set - deferred replies and workspace actions are unavailable")
	}
	mux.Handle("POST /interactions", discord.NewServer(cfg))
	return nil
}

// Handler returns the HTTP handler serving every route.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Registry returns the command registry.
func (g *Gateway) Registry() *command.Registry {
	return g.registry
}

// setupTCPListeners creates standard TCP listeners. The gRPC listener is nil
// when no gRPC address is configured.
func (g *Gateway) setupTCPListeners() (grpcLn, httpLn net.Listener, err error) {
	g.logger.Info("starting gateway",
		"grpc_addr", g.config.Server.GRPCAddr,
		"http_addr", g.config.Server.HTTPAddr,
	)

	httpLn, err = net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	if g.config.Server.GRPCAddr != "" {
		grpcLn, err = net.Listen("tcp", g.config.Server.GRPCAddr)
		if err != nil {
			_ = httpLn.Close()
			return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
		}
	}

	return grpcLn, httpLn, nil
}

// warnIgnoredAddresses logs a warning if server addresses are configured but Tailscale is enabled.
func (g *Gateway) warnIgnoredAddresses() {
	if g.config.Server.GRPCAddr != "" || g.config.Server.HTTPAddr != "" {
		g.logger.Warn("server.grpc_addr and server.http_addr are ignored when tailscale is enabled",
			"grpc_addr", g.config.Server.GRPCAddr,
			"http_addr", g.config.Server.HTTPAddr,
		)
	}
}

// setupListeners creates listeners based on configuration (Tailscale or TCP).
func (g *Gateway) setupListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	if g.config.Tailscale.Enabled {
		g.warnIgnoredAddresses()
		return g.setupTailscaleListeners(ctx)
	}
	return g.setupTCPListeners()
}

// Run starts the servers and the Matrix frontend and blocks until ctx is
// canceled or one of them fails. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	grpcLn, httpLn, err := g.setupListeners(ctx)
	if err != nil {
		return err
	}
	return g.serve(ctx, grpcLn, httpLn)
}

func (g *Gateway) serve(ctx context.Context, grpcLn, httpLn net.Listener) error {
	grp, gctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	if grpcLn != nil {
		grp.Go(func() error {
			g.logger.Info("gRPC server listening", "addr", grpcLn.Addr().String())
			if err := g.grpcServer.Serve(grpcLn); err != nil {
				return fmt.Errorf("gRPC server: %w", err)
			}
			return nil
		})
	}

	if g.matrix != nil {
		grp.Go(func() error {
			return g.matrix.Run(gctx)
		})
	}

	grp.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			g.logger.Info("context canceled, initiating shutdown")
		}
		return g.gracefulShutdown()
	})

	g.logger.Info("=== GATEWAY RUNNING ===")
	return grp.Wait()
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() since the run context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "stingray-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListeners creates a tsnet node and returns listeners for gRPC and HTTP.
// With funnel on, the HTTP listener is public so the platform can reach /interactions.
func (g *Gateway) setupTailscaleListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	grpcLn, err = g.tsnetServer.Listen("tcp", ":50051")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("listening on tailscale gRPC port: %w", err)
	}

	if tsCfg.Funnel {
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		httpLn, err = g.tsnetServer.ListenFunnel("tcp", ":443")
	} else {
		httpLn, err = g.tsnetServer.Listen("tcp", ":80")
	}
	if err != nil {
		_ = grpcLn.Close()
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return grpcLn, httpLn, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (g *Gateway) shutdownGRPCServer(ctx context.Context) {
	stopped := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// closeOptionalComponents closes optional components that may be nil.
func (g *Gateway) closeOptionalComponents() {
	if g.discordClient != nil {
		g.discordClient.Close()
	}
	if g.matrix != nil {
		g.matrix.Close()
	}
}

// Shutdown gracefully stops all gateway servers and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	g.health.Shutdown()
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	g.shutdownGRPCServer(ctx)

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", g.store.Close())

	g.closeOptionalComponents()

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the database answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := g.store.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d commands)", len(g.registry.Names()))
}

// RegisterCommands publishes the registry to the platform, globally or to a
// single workspace.
func (g *Gateway) RegisterCommands(ctx context.Context, workspaceID string) (int, error) {
	if g.discordClient == nil {
		return 0, errors.New("discord.bot_token is required to register commands")
	}
	registered, err := g.discordClient.RegisterCommands(ctx, workspaceID, g.registry.Specs())
	if err != nil {
		return 0, fmt.Errorf("registering commands: %w", err)
	}
	return len(registered), nil
}
