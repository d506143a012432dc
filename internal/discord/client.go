// ABOUTME: Rate-limited REST client for webhook edits, follow-ups and workspace role management
// ABOUTME: Implements platform.Guilds; guild owner lookups are cached

package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/2389/stingray-gateway/internal/cache"
	"github.com/2389/stingray-gateway/internal/interaction"
	"github.com/2389/stingray-gateway/internal/platform"
)

const (
	// DefaultAPIBase is the platform's REST root.
	DefaultAPIBase = "https://discord.com/api/v10"

	maxRetries     = 3
	memberPageSize = 1000
	ownerCacheTTL  = 10 * time.Minute
)

// APIError is a non-2xx REST response.
type APIError struct {
	Status  int
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord api: %d %s (code %d)", e.Status, e.Message, e.Code)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL           string
	BotToken          string
	ApplicationID     string
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// Client talks to the REST API.
type Client struct {
	base    string
	token   string
	appID   string
	http    *http.Client
	limiter *rate.Limiter
	owners  *cache.TTL[string]
	logger  *slog.Logger
}

// NewClient creates a Client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAPIBase
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 40
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		base:    cfg.BaseURL,
		token:   cfg.BotToken,
		appID:   cfg.ApplicationID,
		http:    cfg.HTTPClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1),
		owners:  cache.New[string](ownerCacheTTL, 10_000),
		logger:  cfg.Logger.With("component", "discord-rest"),
	}
}

// Close stops the owner cache sweeper.
func (c *Client) Close() {
	c.owners.Close()
}

// do sends one request, waiting on the limiter and retrying 429s after the
// advertised delay.
func (c *Client) do(ctx context.Context, method, path, reason string, in, out any) error {
	var payload []byte
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		payload = data
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bot "+c.token)
		}
		if reason != "" {
			req.Header.Set("X-Audit-Log-Reason", url.PathEscape(reason))
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		data, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRetries {
			wait := retryAfter(resp.Header, data)
			c.logger.Warn("rate limited", "method", method, "path", path, "retry_after", wait)
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if resp.StatusCode >= 300 {
			apiErr := &APIError{Status: resp.StatusCode}
			_ = json.Unmarshal(data, apiErr)
			return apiErr
		}
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("decoding response: %w", err)
			}
		}
		return nil
	}
}

func retryAfter(h http.Header, body []byte) time.Duration {
	var payload struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.RetryAfter > 0 {
		return time.Duration(payload.RetryAfter * float64(time.Second))
	}
	if secs, err := strconv.ParseFloat(h.Get("Retry-After"), 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return time.Second
}

// EditOriginal edits the interaction's original response.
func (c *Client) EditOriginal(ctx context.Context, token string, msg interaction.Message) error {
	body := messageBody(msg)
	delete(body, "flags")
	return c.do(ctx, http.MethodPatch, "/webhooks/"+c.appID+"/"+token+"/messages/@original", "", body, nil)
}

// DeleteOriginal removes the interaction's original response.
func (c *Client) DeleteOriginal(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodDelete, "/webhooks/"+c.appID+"/"+token+"/messages/@original", "", nil, nil)
}

// CreateFollowup posts a new message on the interaction's webhook.
func (c *Client) CreateFollowup(ctx context.Context, token string, msg interaction.Message) error {
	return c.do(ctx, http.MethodPost, "/webhooks/"+c.appID+"/"+token, "", messageBody(msg), nil)
}

type rolePayload struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Color       int    `json:"color"`
	Position    int    `json:"position,omitempty"`
	Hoist       bool   `json:"hoist"`
	Managed     bool   `json:"managed,omitempty"`
	Mentionable bool   `json:"mentionable"`
}

func (r rolePayload) role() platform.Role {
	return platform.Role{ID: r.ID, Name: r.Name, Color: r.Color, Position: r.Position, Hoist: r.Hoist, Managed: r.Managed}
}

func (c *Client) Roles(ctx context.Context, workspaceID string) ([]platform.Role, error) {
	var payload []rolePayload
	if err := c.do(ctx, http.MethodGet, "/guilds/"+workspaceID+"/roles", "", nil, &payload); err != nil {
		return nil, err
	}
	roles := make([]platform.Role, len(payload))
	for i, r := range payload {
		roles[i] = r.role()
	}
	return roles, nil
}

// Members pages through the full member list.
func (c *Client) Members(ctx context.Context, workspaceID string) ([]platform.Member, error) {
	var members []platform.Member
	after := "0"
	for {
		var page []memberPayload
		path := fmt.Sprintf("/guilds/%s/members?limit=%d&after=%s", workspaceID, memberPageSize, after)
		if err := c.do(ctx, http.MethodGet, path, "", nil, &page); err != nil {
			return nil, err
		}
		for _, m := range page {
			members = append(members, platform.Member{UserID: m.User.ID, Username: m.User.Username, RoleIDs: m.Roles})
		}
		if len(page) < memberPageSize {
			return members, nil
		}
		after = page[len(page)-1].User.ID
	}
}

func (c *Client) CreateRole(ctx context.Context, workspaceID string, spec platform.RoleSpec, reason string) (*platform.Role, error) {
	var out rolePayload
	in := rolePayload{Name: spec.Name, Color: spec.Color, Hoist: spec.Hoist, Mentionable: spec.Mentionable}
	if err := c.do(ctx, http.MethodPost, "/guilds/"+workspaceID+"/roles", reason, in, &out); err != nil {
		return nil, err
	}
	r := out.role()
	return &r, nil
}

func (c *Client) DeleteRole(ctx context.Context, workspaceID, roleID, reason string) error {
	return c.do(ctx, http.MethodDelete, "/guilds/"+workspaceID+"/roles/"+roleID, reason, nil, nil)
}

func (c *Client) AddMemberRole(ctx context.Context, workspaceID, userID, roleID, reason string) error {
	return c.do(ctx, http.MethodPut, "/guilds/"+workspaceID+"/members/"+userID+"/roles/"+roleID, reason, nil, nil)
}

// OwnerID returns the workspace owner, cached for a few minutes.
func (c *Client) OwnerID(ctx context.Context, workspaceID string) (string, error) {
	if owner, ok := c.owners.Get(workspaceID); ok {
		return owner, nil
	}
	var guild struct {
		OwnerID string `json:"owner_id"`
	}
	if err := c.do(ctx, http.MethodGet, "/guilds/"+workspaceID, "", nil, &guild); err != nil {
		return "", err
	}
	c.owners.Set(workspaceID, guild.OwnerID)
	return guild.OwnerID, nil
}

var _ platform.Guilds = (*Client)(nil)
