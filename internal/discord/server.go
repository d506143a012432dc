// ABOUTME: HTTP endpoint receiving signed interaction callbacks
// ABOUTME: Verifies, decodes and hands each event to the dispatcher on its own goroutine

package discord

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/stingray-gateway/internal/interaction"
)

const (
	// DefaultDeferAfter leaves headroom under the platform's three second ack deadline.
	DefaultDeferAfter = 2500 * time.Millisecond

	// handlerTimeout matches the lifetime of an interaction token.
	handlerTimeout = 15 * time.Minute

	maxBodyBytes = 1 << 20
)

// Handler processes one event. Implementations own fault containment.
type Handler interface {
	Handle(ctx context.Context, ev *interaction.Event, respond interaction.Responder)
}

// OwnerLookup resolves a workspace's owner.
type OwnerLookup interface {
	OwnerID(ctx context.Context, workspaceID string) (string, error)
}

// ServerConfig configures a Server.
type ServerConfig struct {
	Verifier   *Verifier
	Handler    Handler
	Webhooks   Webhooks
	Owners     OwnerLookup // optional
	DeferAfter time.Duration
	Logger     *slog.Logger
}

// Server is the interactions endpoint.
type Server struct {
	verifier   *Verifier
	handler    Handler
	hooks      Webhooks
	owners     OwnerLookup
	deferAfter time.Duration
	logger     *slog.Logger
}

// NewServer creates a Server.
func NewServer(cfg ServerConfig) *Server {
	if cfg.DeferAfter <= 0 {
		cfg.DeferAfter = DefaultDeferAfter
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Webhooks == nil {
		cfg.Webhooks = noWebhooks{}
	}
	return &Server{
		verifier:   cfg.Verifier,
		handler:    cfg.Handler,
		hooks:      cfg.Webhooks,
		owners:     cfg.Owners,
		deferAfter: cfg.DeferAfter,
		logger:     cfg.Logger.With("component", "discord"),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
		return
	}

	if err := s.verifier.Verify(r.Header.Get("X-Signature-Ed25519"), r.Header.Get("X-Signature-Timestamp"), body); err != nil {
		s.logger.Debug("rejected unsigned request", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "invalid request signature", http.StatusUnauthorized)
		return
	}

	ev, err := Decode(body)
	if err != nil {
		s.logger.Warn("undecodable interaction", "error", err)
		status := http.StatusBadRequest
		if errors.Is(err, ErrUnsupportedType) {
			status = http.StatusNotImplemented
		}
		http.Error(w, err.Error(), status)
		return
	}
	if ev == nil {
		writeJSON(w, callback{Type: callbackPong})
		return
	}

	resp := newResponder(ev, s.hooks)
	done := make(chan struct{})

	// The handler outlives this request; its webhook follow-ups run on the
	// interaction token for up to fifteen minutes.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), handlerTimeout)
	go func() {
		defer close(done)
		defer cancel()
		s.enrich(ctx, ev)
		s.handler.Handle(ctx, ev, resp)
	}()

	timer := time.NewTimer(s.deferAfter)
	defer timer.Stop()

	var cb callback
	select {
	case cb = <-resp.initial:
	case <-timer.C:
		cb = resp.autoDefer()
		s.logger.Debug("auto-deferred slow interaction", "kind", ev.Kind, "id", ev.ID)
	case <-done:
		cb = resp.autoDefer()
	}
	writeJSON(w, cb)
	close(resp.written)
}

// enrich fills in what the payload does not carry. Owner lookup failures
// leave IsOwner false.
func (s *Server) enrich(ctx context.Context, ev *interaction.Event) {
	if s.owners == nil || ev.WorkspaceID == "" || ev.Kind == interaction.KindAutocomplete {
		return
	}
	owner, err := s.owners.OwnerID(ctx, ev.WorkspaceID)
	if err != nil {
		s.logger.Warn("owner lookup failed", "workspace_id", ev.WorkspaceID, "error", err)
		return
	}
	ev.Member.IsOwner = owner != "" && owner == ev.Member.ID
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
