// ABOUTME: Gateway-owned command handlers and their registration
// ABOUTME: Deps carries the collaborators every handler may need

package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/2389/stingray-gateway/internal/command"
	"github.com/2389/stingray-gateway/internal/interaction"
	"github.com/2389/stingray-gateway/internal/platform"
	"github.com/2389/stingray-gateway/internal/policy"
	"github.com/2389/stingray-gateway/internal/store"
)

// Deps are the collaborators handlers are built with.
type Deps struct {
	Store    store.Store
	Resolver *policy.Resolver
	Registry *command.Registry
	Logger   *slog.Logger

	// TripcodeSalt is mixed into anonymous board tripcodes.
	TripcodeSalt string
}

// RegisterAll builds every handler and registers it.
func RegisterAll(deps Deps) error {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	cmds := []command.Command{
		NewConfig(deps),
		NewDashboard(deps),
		NewRole(),
		NewCustom(deps.Store),
		NewAudit(),
		NewHelp(deps.Registry),
		NewBoard(deps.Store, deps.TripcodeSalt),
		NewPing(),
	}
	for _, c := range cmds {
		if err := deps.Registry.Register(c); err != nil {
			return fmt.Errorf("registering %s: %w", c.Spec().Name, err)
		}
	}
	return nil
}

const (
	colorPurple  = 0xa45ee5
	colorGreen   = 0x00ff00
	colorOrange  = 0xffa500
	colorRed     = 0xff0055
	colorNeutral = 0x2b2d31
)

var hexColor = regexp.MustCompile(`^[0-9A-Fa-f]{6}$`)

// parseHex accepts "FF0055" or "#FF0055".
func parseHex(s string) (int, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if !hexColor.MatchString(s) {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 16, 32)
	if err != nil {
		return 0, false
	}
	return int(v), true
}

func formatHex(color int) string {
	return fmt.Sprintf("#%06X", color)
}

// guilds returns the workspace API or tells the user it is missing.
func guilds(ctx context.Context, req *command.Request) (platform.Guilds, bool) {
	if req.Guilds == nil || req.Event.WorkspaceID == "" {
		_ = req.Reply(ctx, interaction.Ephemeral("❌ This command needs a server to work in."))
		return nil, false
	}
	return req.Guilds, true
}

// Tally collects the per-item results of a bulk operation. Each item is
// attempted on its own; a failure never stops the rest.
type Tally struct {
	Applied int
	Failed  []string
}

// Run applies fn to every item and records the outcome.
func (t *Tally) Run(items []string, label func(string) string, fn func(string) error) {
	for _, item := range items {
		if err := fn(item); err != nil {
			t.Failed = append(t.Failed, label(item))
			continue
		}
		t.Applied++
	}
}

// Summary renders "**Applied:** N\n**Failed:** K" plus the failed items.
func (t Tally) Summary() string {
	s := fmt.Sprintf("**Applied:** %d\n**Failed:** %d", t.Applied, len(t.Failed))
	if len(t.Failed) > 0 {
		s += "\n" + strings.Join(t.Failed, ", ")
	}
	return s
}

// Color is green for a clean run and orange when anything failed.
func (t Tally) Color() int {
	if len(t.Failed) > 0 {
		return colorOrange
	}
	return colorGreen
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
