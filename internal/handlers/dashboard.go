// ABOUTME: The dashboard command: a select menu that enables and disables commands in bulk
// ABOUTME: Protected modules are never listed so the configuration surface cannot be switched off here

package handlers

import (
	"context"
	"fmt"
	"slices"

	"github.com/2389/stingray-gateway/internal/command"
	"github.com/2389/stingray-gateway/internal/interaction"
	"github.com/2389/stingray-gateway/internal/policy"
	"github.com/2389/stingray-gateway/internal/store"
)

var protectedModules = []string{"config", "dashboard", "help"}

// Dashboard toggles commands from a select menu.
type Dashboard struct {
	settings store.Store
	resolver *policy.Resolver
	registry *command.Registry
}

// NewDashboard creates the dashboard command.
func NewDashboard(deps Deps) *Dashboard {
	return &Dashboard{settings: deps.Store, resolver: deps.Resolver, registry: deps.Registry}
}

func (d *Dashboard) Spec() command.Spec {
	return command.Spec{
		Name:              "dashboard",
		Description:       "Configure which bot modules are enabled in this server.",
		DefaultPermission: policy.ManageGuild,
	}
}

func (d *Dashboard) Families() []command.Family {
	return []command.Family{{Name: "dashboard_select", Ownership: command.OwnerEmbedded}}
}

// toggleable lists the commands shown in the menu, capped at the select limit.
func (d *Dashboard) toggleable() []string {
	var out []string
	for _, name := range d.registry.Names() {
		if !slices.Contains(protectedModules, name) {
			out = append(out, name)
		}
	}
	if len(out) > interaction.MaxChoices {
		out = out[:interaction.MaxChoices]
	}
	return out
}

func (d *Dashboard) Execute(ctx context.Context, req *command.Request) error {
	msg, err := d.render(ctx, req)
	if err != nil {
		return err
	}
	return req.Reply(ctx, msg)
}

// HandleComponent enables every selected command and disables every other
// listed one. Only commands whose state changes are written.
func (d *Dashboard) HandleComponent(ctx context.Context, req *command.Request) error {
	names := d.toggleable()
	current, err := d.resolver.ResolveAll(ctx, req.Event.WorkspaceID, names)
	if err != nil {
		return err
	}

	for _, name := range names {
		enabled := slices.Contains(req.Event.Values, name)
		if current[name].Rule.Enabled == enabled {
			continue
		}
		if err := d.settings.UpdateCommandRule(ctx, req.Event.WorkspaceID, name, func(r *store.CommandRule) {
			r.Enabled = &enabled
		}); err != nil {
			return fmt.Errorf("updating %s: %w", name, err)
		}
		if err := d.settings.SaveAuditEntry(ctx, &store.AuditEntry{
			WorkspaceID: req.Event.WorkspaceID,
			ActorID:     req.UserID(),
			Action:      store.AuditToggleCommand,
			Target:      name,
			Detail:      map[string]any{"enabled": enabled, "via": "dashboard"},
		}); err != nil {
			req.Logger.Warn("failed to write audit entry", "target", name, "error", err)
		}
	}

	msg, err := d.render(ctx, req)
	if err != nil {
		return err
	}
	return req.Update(ctx, msg)
}

func (d *Dashboard) render(ctx context.Context, req *command.Request) (interaction.Message, error) {
	names := d.toggleable()
	resolved, err := d.resolver.ResolveAll(ctx, req.Event.WorkspaceID, names)
	if err != nil {
		return interaction.Message{}, err
	}

	options := make([]interaction.SelectOption, 0, len(names))
	for _, name := range names {
		cmd, _ := d.registry.Command(name)
		desc := "No description provided."
		if cmd != nil && cmd.Spec().Description != "" {
			desc = cmd.Spec().Description
		}
		enabled := resolved[name].Rule.Enabled
		options = append(options, interaction.SelectOption{
			Label:       statusIcon(enabled) + " " + titleCase(name),
			Value:       name,
			Description: clip(desc, 100),
			Default:     enabled,
		})
	}

	msg := interaction.Message{
		Replace: true,
		Embeds: []interaction.Embed{{
			Title:       "🎛️ Dynamic Server Dashboard",
			Description: "Select modules to enable/disable.",
			Color:       colorNeutral,
			Footer:      &interaction.EmbedFooter{Text: fmt.Sprintf("Total Modules: %d", len(names))},
		}},
	}
	if len(options) > 0 {
		msg.Components = []interaction.ActionRow{interaction.Row(
			interaction.Select(interaction.OwnedKey("dashboard_select", req.UserID()),
				"Select active modules...", 0, len(options), options...),
		)}
	}
	return msg, nil
}
