// ABOUTME: The custom command: each member's personal role, replaced behind a confirmation
// ABOUTME: Its buttons carry no owner; the clicker's role-overwrite session scopes them

package handlers

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/2389/stingray-gateway/internal/command"
	"github.com/2389/stingray-gateway/internal/interaction"
	"github.com/2389/stingray-gateway/internal/platform"
	"github.com/2389/stingray-gateway/internal/session"
	"github.com/2389/stingray-gateway/internal/store"
)

// Custom manages personal roles.
type Custom struct {
	roles store.CustomRoleStore
}

// NewCustom creates the custom command.
func NewCustom(roles store.CustomRoleStore) *Custom {
	return &Custom{roles: roles}
}

type overwritePayload struct {
	Name      string `json:"name"`
	Color     int    `json:"color"`
	OldRoleID string `json:"old_role_id"`
}

func (c *Custom) Spec() command.Spec {
	return command.Spec{
		Name:        "custom",
		Description: "Manage your personal custom role.",
		Options: []command.OptionSpec{{
			Name: "role", Description: "Create or replace your personal custom role.", Type: interaction.OptionSubcommand,
			Options: []command.OptionSpec{
				{Name: "name", Description: "The name of your role.", Type: interaction.OptionString, Required: true},
				{Name: "hex", Description: "The color hex code (e.g. FF0055).", Type: interaction.OptionString, Required: true},
			},
		}},
	}
}

func (c *Custom) Families() []command.Family {
	return []command.Family{{
		Name:        "custom",
		Ownership:   command.SessionScoped,
		Flow:        session.KindRoleOverwrite,
		ExpiredHint: "/custom role",
	}}
}

func (c *Custom) Execute(ctx context.Context, req *command.Request) error {
	sub, opts := req.Event.Subcommand()
	if sub != "role" {
		return req.Reply(ctx, interaction.Ephemeral("❌ Unknown subcommand."))
	}
	g, ok := guilds(ctx, req)
	if !ok {
		return nil
	}

	name := interaction.StringOption(opts, "name")
	color, ok := parseHex(interaction.StringOption(opts, "hex"))
	if !ok {
		return req.Reply(ctx, interaction.Ephemeral("❌ **Invalid Color.** Please use a valid 6-digit Hex code (e.g., `00FF00`)."))
	}

	ws, user := req.Event.WorkspaceID, req.UserID()
	existing, err := c.roles.GetCustomRole(ctx, ws, user)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return fmt.Errorf("reading custom role: %w", err)
	default:
		stillThere, err := roleExists(ctx, g, ws, existing.RoleID)
		if err != nil {
			return err
		}
		if stillThere {
			return c.askOverwrite(ctx, req, overwritePayload{Name: name, Color: color, OldRoleID: existing.RoleID})
		}
		// Deleted by hand; forget it and create afresh.
		if err := c.roles.DeleteCustomRole(ctx, ws, user); err != nil {
			return fmt.Errorf("clearing stale custom role: %w", err)
		}
	}

	if err := req.Respond.Defer(ctx, false); err != nil {
		return err
	}
	msg := c.fabricate(ctx, req, g, name, color)
	return req.Reply(ctx, msg)
}

func roleExists(ctx context.Context, g platform.Guilds, ws, roleID string) (bool, error) {
	roles, err := g.Roles(ctx, ws)
	if err != nil {
		return false, fmt.Errorf("listing roles: %w", err)
	}
	return slices.ContainsFunc(roles, func(r platform.Role) bool { return r.ID == roleID }), nil
}

func (c *Custom) askOverwrite(ctx context.Context, req *command.Request, p overwritePayload) error {
	if err := req.BeginFlow(ctx, session.KindRoleOverwrite, session.StepAwaitingConfirmation, p); err != nil {
		return fmt.Errorf("starting overwrite flow: %w", err)
	}
	return req.Reply(ctx, interaction.Message{
		Ephemeral: true,
		Embeds: []interaction.Embed{{
			Title:       "Identity Conflict",
			Description: "You already have a registered custom role.\nDo you want to **delete** the old one and create this new one?",
			Color:       colorOrange,
		}},
		Components: []interaction.ActionRow{interaction.Row(
			interaction.Button(interaction.ButtonDanger, "Overwrite Identity", interaction.ActionKey("custom", "confirm_overwrite")),
			interaction.Button(interaction.ButtonSecondary, "Cancel", interaction.ActionKey("custom", "cancel")),
		)},
	})
}

func (c *Custom) HandleComponent(ctx context.Context, req *command.Request) error {
	switch req.Key.Action() {
	case "cancel":
		if err := req.EndFlow(ctx); err != nil {
			req.Logger.Warn("failed to end overwrite flow", "error", err)
		}
		return req.Update(ctx, interaction.Message{
			Replace: true,
			Embeds: []interaction.Embed{{
				Title:       "Operation Cancelled",
				Description: "Your existing role remains unchanged.",
				Color:       colorNeutral,
			}},
		})
	case "confirm_overwrite":
		g, ok := guilds(ctx, req)
		if !ok {
			return req.EndFlow(ctx)
		}
		var p overwritePayload
		if err := req.Session.Decode(&p); err != nil {
			return err
		}
		if err := req.EndFlow(ctx); err != nil {
			req.Logger.Warn("failed to end overwrite flow", "error", err)
		}
		if err := req.Update(ctx, interaction.Final("⏳ **Fabricating new identity...**")); err != nil {
			return err
		}
		// A role someone already removed is fine.
		if err := g.DeleteRole(ctx, req.Event.WorkspaceID, p.OldRoleID, "Custom Role Overwrite"); err != nil {
			req.Logger.Debug("old custom role not deleted", "role_id", p.OldRoleID, "error", err)
		}
		return req.Update(ctx, c.fabricate(ctx, req, g, p.Name, p.Color))
	}
	return nil
}

// fabricate creates the role, assigns it and records it. Failures become
// the returned message rather than an error.
func (c *Custom) fabricate(ctx context.Context, req *command.Request, g platform.Guilds, name string, color int) interaction.Message {
	ws, user := req.Event.WorkspaceID, req.UserID()
	failed := interaction.Final("❌ **Error:** Could not create role. I might lack permissions (Manage Roles) or the role list is full.")

	role, err := g.CreateRole(ctx, ws, platform.RoleSpec{Name: name, Color: color}, "Custom Role for "+req.Event.Member.Username)
	if err != nil {
		req.Logger.Warn("custom role creation failed", "error", err)
		return failed
	}
	if err := g.AddMemberRole(ctx, ws, user, role.ID, "Custom Role Assignment"); err != nil {
		req.Logger.Warn("custom role assignment failed", "role_id", role.ID, "error", err)
		return failed
	}
	if err := c.roles.SetCustomRole(ctx, &store.CustomRole{WorkspaceID: ws, UserID: user, RoleID: role.ID}); err != nil {
		req.Logger.Warn("failed to record custom role", "role_id", role.ID, "error", err)
	}

	return interaction.Message{
		Replace: true,
		Embeds: []interaction.Embed{{
			Title:       "Identity Fabricated",
			Description: fmt.Sprintf("**Role:** <@&%s>\n**Hex:** %s\n\nThis role has been assigned to you.", role.ID, formatHex(color)),
			Color:       color,
			Footer:      &interaction.EmbedFooter{Text: "Use /custom role again to change it."},
		}},
	}
}
