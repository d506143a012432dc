// ABOUTME: Admin HTTP API for reading and replacing workspace command policy
// ABOUTME: Bearer-JWT protected; every replacement is written to the audit log

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/stingray-gateway/internal/auth"
	"github.com/2389/stingray-gateway/internal/policy"
	"github.com/2389/stingray-gateway/internal/store"
)

const maxRuleBody = 64 << 10

// CommandPolicyResponse is the effective policy of one command.
type CommandPolicyResponse struct {
	Command       string             `json:"command"`
	Enabled       bool               `json:"enabled"`
	MinPermission string             `json:"min_permission,omitempty"`
	AllowChannels []string           `json:"allow_channels"`
	BlockChannels []string           `json:"block_channels"`
	Exempt        bool               `json:"exempt,omitempty"`
	Override      *store.CommandRule `json:"override"`
}

// PolicyResponse is the JSON response for GET /api/workspaces/{id}/policy.
type PolicyResponse struct {
	WorkspaceID  string                  `json:"workspace_id"`
	BypassRoleID string                  `json:"bypass_role_id,omitempty"`
	Commands     []CommandPolicyResponse `json:"commands"`
}

// AuditEntryResponse is one entry of GET /api/workspaces/{id}/audit.
type AuditEntryResponse struct {
	ID        string         `json:"id"`
	ActorID   string         `json:"actor_id"`
	Action    string         `json:"action"`
	Target    string         `json:"target"`
	Timestamp string         `json:"timestamp"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// AuditResponse is the JSON response for GET /api/workspaces/{id}/audit.
type AuditResponse struct {
	Entries []AuditEntryResponse `json:"entries"`
}

// registerAdminAPI mounts the /api routes when a JWT secret is configured.
func (g *Gateway) registerAdminAPI(mux *http.ServeMux, logger *slog.Logger) error {
	if g.config.Admin.JWTSecret == "" {
		logger.Warn("admin API disabled - no admin.jwt_secret configured")
		return nil
	}
	verifier, err := auth.NewJWTVerifier([]byte(g.config.Admin.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating admin JWT verifier: %w", err)
	}
	g.verifier = verifier

	authMiddleware := auth.HTTPAuthMiddleware(verifier)
	mux.Handle("GET /api/workspaces/{id}/policy", authMiddleware(http.HandlerFunc(g.handleGetPolicy)))
	mux.Handle("PUT /api/workspaces/{id}/policy/{command}", authMiddleware(http.HandlerFunc(g.handlePutRule)))
	mux.Handle("GET /api/workspaces/{id}/audit", authMiddleware(http.HandlerFunc(g.handleListAudit)))
	logger.Info("admin API enabled at /api/")
	return nil
}

// sendJSONError sends a JSON error response with the given status code and message.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

// handleGetPolicy handles GET /api/workspaces/{id}/policy.
func (g *Gateway) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")

	ws, err := g.resolver.Settings(r.Context(), workspaceID)
	if err != nil {
		g.logger.Error("failed to read workspace settings", "workspace_id", workspaceID, "error", err)
		g.sendJSONError(w, http.StatusServiceUnavailable, "policy store unavailable")
		return
	}

	resp := PolicyResponse{
		WorkspaceID:  workspaceID,
		BypassRoleID: ws.BypassRoleID,
		Commands:     []CommandPolicyResponse{},
	}
	for _, name := range g.registry.Names() {
		res := g.resolver.FromSettings(ws, name)
		entry := CommandPolicyResponse{
			Command:       name,
			Enabled:       res.Rule.Enabled,
			MinPermission: string(res.Rule.MinPermission),
			AllowChannels: nonNil(res.Rule.AllowChannels),
			BlockChannels: nonNil(res.Rule.BlockChannels),
			Exempt:        res.Exempt,
		}
		if o, ok := ws.Rule(name); ok {
			entry.Override = &o
		}
		resp.Commands = append(resp.Commands, entry)
	}
	g.sendJSON(w, http.StatusOK, resp)
}

// validateRule rejects permission tokens the resolver would never match.
func validateRule(rule *store.CommandRule) error {
	if rule == nil || rule.MinPerm == nil || *rule.MinPerm == "" {
		return nil
	}
	if _, ok := policy.ParsePermission(*rule.MinPerm); !ok {
		return fmt.Errorf("unknown permission %q", *rule.MinPerm)
	}
	return nil
}

// handlePutRule handles PUT /api/workspaces/{id}/policy/{command}.
// The body is the override object, or null to remove the override.
func (g *Gateway) handlePutRule(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	name := r.PathValue("command")

	if _, ok := g.registry.Command(name); !ok {
		g.sendJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown command %q", name))
		return
	}

	var rule *store.CommandRule
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRuleBody)).Decode(&rule); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validateRule(rule); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if err := g.store.ReplaceCommandRule(ctx, workspaceID, name, rule); err != nil {
		g.logger.Error("failed to replace command rule", "workspace_id", workspaceID, "command", name, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	actor := "admin:" + auth.AdminFromContext(ctx)
	detail := map[string]any{"override": rule}
	if err := g.store.SaveAuditEntry(ctx, &store.AuditEntry{
		WorkspaceID: workspaceID,
		ActorID:     actor,
		Action:      store.AuditReplaceRule,
		Target:      name,
		Detail:      detail,
	}); err != nil {
		g.logger.Warn("failed to audit rule replacement", "workspace_id", workspaceID, "command", name, "error", err)
	}
	g.logger.Info("command rule replaced via API", "workspace_id", workspaceID, "command", name, "actor", actor)

	res := g.resolver.Resolve(ctx, workspaceID, name)
	g.sendJSON(w, http.StatusOK, CommandPolicyResponse{
		Command:       name,
		Enabled:       res.Rule.Enabled,
		MinPermission: string(res.Rule.MinPermission),
		AllowChannels: nonNil(res.Rule.AllowChannels),
		BlockChannels: nonNil(res.Rule.BlockChannels),
		Exempt:        res.Exempt,
		Override:      rule,
	})
}

// parseAuditFilter reads limit, target and since query parameters.
func parseAuditFilter(r *http.Request, workspaceID string) (store.AuditFilter, error) {
	f := store.AuditFilter{WorkspaceID: workspaceID}
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("limit must be a non-negative integer")
		}
		f.Limit = n
	}
	if v := q.Get("target"); v != "" {
		f.Target = &v
	}
	if v := q.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("since must be an RFC 3339 timestamp")
		}
		f.Since = &ts
	}
	return f, nil
}

// handleListAudit handles GET /api/workspaces/{id}/audit.
func (g *Gateway) handleListAudit(w http.ResponseWriter, r *http.Request) {
	f, err := parseAuditFilter(r, r.PathValue("id"))
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := g.store.ListAuditEntries(r.Context(), f)
	if err != nil {
		g.logger.Error("failed to list audit entries", "workspace_id", f.WorkspaceID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := AuditResponse{Entries: make([]AuditEntryResponse, len(entries))}
	for i, e := range entries {
		resp.Entries[i] = AuditEntryResponse{
			ID:        e.ID,
			ActorID:   e.ActorID,
			Action:    string(e.Action),
			Target:    e.Target,
			Timestamp: e.Timestamp.Format(time.RFC3339),
			Detail:    e.Detail,
		}
	}
	g.sendJSON(w, http.StatusOK, resp)
}
