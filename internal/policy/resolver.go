// ABOUTME: Policy resolver: derives the effective rule for a workspace and command
// ABOUTME: One settings round trip per resolution, with a named store-failure mode

package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/stingray-gateway/internal/metrics"
	"github.com/2389/stingray-gateway/internal/store"
)

// StoreErrorMode decides what a resolution yields when settings cannot be read.
type StoreErrorMode string

const (
	// OnStoreErrorAllow treats the command as unrestricted (fail open).
	OnStoreErrorAllow StoreErrorMode = "allow"
	// OnStoreErrorDefaults applies the compiled-in default only.
	OnStoreErrorDefaults StoreErrorMode = "defaults"
	// OnStoreErrorDeny refuses the invocation.
	OnStoreErrorDeny StoreErrorMode = "deny"
)

// ParseStoreErrorMode validates a configured mode; empty means allow.
func ParseStoreErrorMode(s string) (StoreErrorMode, error) {
	switch StoreErrorMode(s) {
	case "", OnStoreErrorAllow:
		return OnStoreErrorAllow, nil
	case OnStoreErrorDefaults, OnStoreErrorDeny:
		return StoreErrorMode(s), nil
	}
	return "", fmt.Errorf("unknown store error mode %q", s)
}

// SettingsSource is the slice of the store the resolver reads.
type SettingsSource interface {
	GetWorkspaceSettings(ctx context.Context, workspaceID string) (*store.WorkspaceSettings, error)
}

// Resolution is an effective rule plus what evaluation needs alongside it.
type Resolution struct {
	Command      string
	Rule         Rule
	BypassRoleID string
	Exempt       bool // configuration surface; ignores Enabled
	Degraded     bool // settings could not be read
	Unavailable  bool // degraded under OnStoreErrorDeny
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	Settings     SettingsSource
	Defaults     Defaults
	OnStoreError StoreErrorMode
	Exempt       []string
	Logger       *slog.Logger
}

// Resolver derives effective policies.
type Resolver struct {
	settings     SettingsSource
	defaults     Defaults
	onStoreError StoreErrorMode
	exempt       map[string]bool
	logger       *slog.Logger
}

// DefaultExempt are the commands that stay usable while disabled.
var DefaultExempt = []string{"config", "dashboard"}

// NewResolver creates a Resolver. Nil defaults mean the embedded table; a nil
// exempt list means DefaultExempt.
func NewResolver(cfg ResolverConfig) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defaults := cfg.Defaults
	if defaults == nil {
		defaults = BuiltinDefaults()
	}
	exemptList := cfg.Exempt
	if exemptList == nil {
		exemptList = DefaultExempt
	}
	exempt := make(map[string]bool, len(exemptList))
	for _, name := range exemptList {
		exempt[name] = true
	}
	mode := cfg.OnStoreError
	if mode == "" {
		mode = OnStoreErrorAllow
	}

	return &Resolver{
		settings:     cfg.Settings,
		defaults:     defaults,
		onStoreError: mode,
		exempt:       exempt,
		logger:       logger.With("component", "policy"),
	}
}

// Defaults returns the table the resolver overlays onto.
func (r *Resolver) Defaults() Defaults {
	return r.defaults
}

// IsExempt reports whether a command ignores enabled=false.
func (r *Resolver) IsExempt(command string) bool {
	return r.exempt[command]
}

// Settings returns the workspace settings, or an empty row when none exist.
func (r *Resolver) Settings(ctx context.Context, workspaceID string) (*store.WorkspaceSettings, error) {
	if workspaceID == "" {
		return &store.WorkspaceSettings{Rules: map[string]store.CommandRule{}}, nil
	}
	ws, err := r.settings.GetWorkspaceSettings(ctx, workspaceID)
	if errors.Is(err, store.ErrNotFound) {
		return &store.WorkspaceSettings{WorkspaceID: workspaceID, Rules: map[string]store.CommandRule{}}, nil
	}
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// Resolve returns the effective policy for one command. It never fails: a
// store error yields a degraded resolution shaped by the store error mode.
func (r *Resolver) Resolve(ctx context.Context, workspaceID, command string) Resolution {
	ws, err := r.Settings(ctx, workspaceID)
	if err != nil {
		metrics.PolicyStoreErrors.Inc()
		r.logger.Warn("policy store unavailable",
			"workspace_id", workspaceID,
			"command", command,
			"mode", r.onStoreError,
			"error", err,
		)
		return r.degraded(command)
	}
	return r.FromSettings(ws, command)
}

// FromSettings resolves a command against settings already in hand.
func (r *Resolver) FromSettings(ws *store.WorkspaceSettings, command string) Resolution {
	rule := r.defaults.Rule(command)
	if o, ok := ws.Rule(command); ok {
		rule = Overlay(rule, o)
	}
	return Resolution{
		Command:      command,
		Rule:         rule,
		BypassRoleID: ws.BypassRoleID,
		Exempt:       r.exempt[command],
	}
}

// ResolveAll resolves several commands with one settings read. Unlike
// Resolve it reports store errors, since its callers display policy rather
// than enforce it.
func (r *Resolver) ResolveAll(ctx context.Context, workspaceID string, commands []string) (map[string]Resolution, error) {
	ws, err := r.Settings(ctx, workspaceID)
	if err != nil {
		metrics.PolicyStoreErrors.Inc()
		return nil, fmt.Errorf("reading workspace settings: %w", err)
	}
	out := make(map[string]Resolution, len(commands))
	for _, c := range commands {
		out[c] = r.FromSettings(ws, c)
	}
	return out, nil
}

func (r *Resolver) degraded(command string) Resolution {
	res := Resolution{Command: command, Exempt: r.exempt[command], Degraded: true}
	switch r.onStoreError {
	case OnStoreErrorDefaults:
		res.Rule = r.defaults.Rule(command)
	case OnStoreErrorDeny:
		res.Rule = r.defaults.Rule(command)
		res.Unavailable = true
	default:
		res.Rule = Unrestricted()
	}
	return res
}
