// ABOUTME: The role command: create and bulk-assign roles behind a confirmation step
// ABOUTME: Confirming runs every item independently and reports an applied/failed tally

package handlers

import (
	"context"
	"fmt"
	"slices"

	"github.com/2389/stingray-gateway/internal/command"
	"github.com/2389/stingray-gateway/internal/interaction"
	"github.com/2389/stingray-gateway/internal/platform"
	"github.com/2389/stingray-gateway/internal/policy"
	"github.com/2389/stingray-gateway/internal/session"
)

const maxAssignTargets = 5

// Role manages workspace roles.
type Role struct{}

// NewRole creates the role command.
func NewRole() *Role {
	return &Role{}
}

type roleCreatePayload struct {
	Name  string `json:"name"`
	Color int    `json:"color"`
}

type bulkAssignPayload struct {
	RoleID  string   `json:"role_id"`
	UserIDs []string `json:"user_ids"`
}

func (r *Role) Spec() command.Spec {
	assign := []command.OptionSpec{
		{Name: "role", Description: "The role to give.", Type: interaction.OptionRole, Required: true},
	}
	for i := 1; i <= maxAssignTargets; i++ {
		assign = append(assign, command.OptionSpec{
			Name:        fmt.Sprintf("user%d", i),
			Description: fmt.Sprintf("Patron %d", i),
			Type:        interaction.OptionUser,
			Required:    i == 1,
		})
	}
	return command.Spec{
		Name:              "role",
		Description:       "Role management: create and assign.",
		DefaultPermission: policy.ManageRoles,
		Options: []command.OptionSpec{
			{
				Name: "create", Description: "Design a new role with a custom color.", Type: interaction.OptionSubcommand,
				Options: []command.OptionSpec{
					{Name: "name", Description: "Name of the role.", Type: interaction.OptionString, Required: true},
					{Name: "hex", Description: "Hex color (e.g. FF0055).", Type: interaction.OptionString, Required: true},
				},
			},
			{Name: "assign", Description: "Grant a role to multiple patrons at once.", Type: interaction.OptionSubcommand, Options: assign},
		},
	}
}

func (r *Role) Families() []command.Family {
	return []command.Family{
		{Name: "confirm_role_create", Ownership: command.OwnerEmbedded, Flow: session.KindRoleCreate},
		{Name: "confirm_assign_role", Ownership: command.OwnerEmbedded, Flow: session.KindBulkAssign, Deferred: true},
	}
}

func confirmRow(confirmLabel, confirmKey, owner string) interaction.ActionRow {
	return interaction.Row(
		interaction.Button(interaction.ButtonSuccess, confirmLabel, confirmKey),
		interaction.Button(interaction.ButtonDanger, "Cancel", interaction.OwnedKey(command.CancelFamily, owner)),
	)
}

func (r *Role) Execute(ctx context.Context, req *command.Request) error {
	sub, opts := req.Event.Subcommand()
	switch sub {
	case "create":
		return r.create(ctx, req, opts)
	case "assign":
		return r.assign(ctx, req, opts)
	}
	return req.Reply(ctx, interaction.Ephemeral("❌ Unknown subcommand."))
}

func (r *Role) create(ctx context.Context, req *command.Request, opts []interaction.Option) error {
	name := interaction.StringOption(opts, "name")
	color, ok := parseHex(interaction.StringOption(opts, "hex"))
	if !ok {
		return req.Reply(ctx, interaction.Ephemeral("❌ Invalid Hex Code. Use format like `FF0055`."))
	}

	if err := req.BeginFlow(ctx, session.KindRoleCreate, session.StepAwaitingConfirmation, roleCreatePayload{Name: name, Color: color}); err != nil {
		return fmt.Errorf("starting role-create flow: %w", err)
	}

	owner := req.UserID()
	return req.Reply(ctx, interaction.Message{
		Content:   "Please confirm this design.",
		Ephemeral: true,
		Embeds: []interaction.Embed{{
			Title:       "✨ Role Preview",
			Description: fmt.Sprintf("**Name:** %s\n**Color:** %s", name, formatHex(color)),
			Color:       color,
			Footer:      &interaction.EmbedFooter{Text: "Role will be hoisted (Prioritized)"},
		}},
		Components: []interaction.ActionRow{
			confirmRow("Create Role", interaction.OwnedKey("confirm_role_create", owner), owner),
		},
	})
}

func (r *Role) assign(ctx context.Context, req *command.Request, opts []interaction.Option) error {
	roleID := interaction.StringOption(opts, "role")
	var users []string
	for i := 1; i <= maxAssignTargets; i++ {
		id := interaction.StringOption(opts, fmt.Sprintf("user%d", i))
		if id != "" && !slices.Contains(users, id) {
			users = append(users, id)
		}
	}
	if roleID == "" || len(users) == 0 {
		return req.Reply(ctx, interaction.Ephemeral("❌ Pick a role and at least one patron."))
	}

	if err := req.BeginFlow(ctx, session.KindBulkAssign, session.StepAwaitingConfirmation, bulkAssignPayload{RoleID: roleID, UserIDs: users}); err != nil {
		return fmt.Errorf("starting bulk-assign flow: %w", err)
	}

	recipients := ""
	for _, id := range users {
		recipients += fmt.Sprintf("• <@%s>\n", id)
	}
	owner := req.UserID()
	return req.Reply(ctx, interaction.Message{
		Content:   "Please confirm the following targets:",
		Ephemeral: true,
		Embeds: []interaction.Embed{{
			Title:       "📋 Assignment Manifest",
			Description: fmt.Sprintf("Preparing to assign role: <@&%s>\n\n%s", roleID, recipients),
			Color:       colorPurple,
			Footer:      &interaction.EmbedFooter{Text: "Review the recipients below."},
		}},
		Components: []interaction.ActionRow{
			confirmRow("Confirm Assignment", interaction.OwnedKey("confirm_assign_role", owner), owner),
		},
	})
}

func (r *Role) HandleComponent(ctx context.Context, req *command.Request) error {
	g, ok := guilds(ctx, req)
	if !ok {
		return req.EndFlow(ctx)
	}
	switch req.Key.Family {
	case "confirm_role_create":
		return r.confirmCreate(ctx, req, g)
	case "confirm_assign_role":
		return r.confirmAssign(ctx, req, g)
	}
	return nil
}

func (r *Role) confirmCreate(ctx context.Context, req *command.Request, g platform.Guilds) error {
	var p roleCreatePayload
	if err := req.Session.Decode(&p); err != nil {
		return err
	}
	role, err := g.CreateRole(ctx, req.Event.WorkspaceID, platform.RoleSpec{Name: p.Name, Color: p.Color, Hoist: true}, "Role creation")
	// The reply below is final either way, so the flow ends here.
	if endErr := req.EndFlow(ctx); endErr != nil {
		req.Logger.Warn("failed to end role-create flow", "error", endErr)
	}
	if err != nil {
		req.Logger.Warn("role creation failed", "name", p.Name, "error", err)
		return req.Update(ctx, interaction.Final("❌ Could not create the role. I might lack the Manage Roles permission."))
	}
	return req.Update(ctx, interaction.Final(fmt.Sprintf("✅ Role **%s** created successfully!", role.Name)))
}

func (r *Role) confirmAssign(ctx context.Context, req *command.Request, g platform.Guilds) error {
	var p bulkAssignPayload
	if err := req.Session.Decode(&p); err != nil {
		return err
	}
	if err := req.Update(ctx, interaction.Final("Processing...")); err != nil {
		return err
	}

	var tally Tally
	tally.Run(p.UserIDs,
		func(id string) string { return "<@" + id + ">" },
		func(id string) error {
			return g.AddMemberRole(ctx, req.Event.WorkspaceID, id, p.RoleID, "Bulk Assignment")
		})

	if err := req.EndFlow(ctx); err != nil {
		req.Logger.Warn("failed to end bulk-assign flow", "error", err)
	}
	req.Logger.Info("bulk assignment processed",
		"role_id", p.RoleID,
		"applied", tally.Applied,
		"failed", len(tally.Failed),
	)
	return req.Update(ctx, interaction.Message{
		Replace: true,
		Embeds: []interaction.Embed{{
			Title:       "✅ Manifest Processed",
			Description: fmt.Sprintf("**Role:** <@&%s>\n%s", p.RoleID, tally.Summary()),
			Color:       tally.Color(),
		}},
	})
}
