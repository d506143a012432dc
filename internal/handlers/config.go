// ABOUTME: The config command: per-workspace policy editor and paginated overview
// ABOUTME: Every change goes through the settings store and is written to the audit log

package handlers

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/2389/stingray-gateway/internal/command"
	"github.com/2389/stingray-gateway/internal/interaction"
	"github.com/2389/stingray-gateway/internal/policy"
	"github.com/2389/stingray-gateway/internal/store"
)

const configPageSize = 10

// Special values of the permission option.
const (
	permissionReset    = "DEFAULT"
	permissionEveryone = "null"
)

// Config edits command policy.
type Config struct {
	settings store.Store
	resolver *policy.Resolver
	registry *command.Registry
}

// NewConfig creates the config command.
func NewConfig(deps Deps) *Config {
	return &Config{settings: deps.Store, resolver: deps.Resolver, registry: deps.Registry}
}

func commandOption(required bool) command.OptionSpec {
	return command.OptionSpec{
		Name:         "command",
		Description:  "The command to configure.",
		Type:         interaction.OptionString,
		Required:     required,
		Autocomplete: true,
	}
}

func (c *Config) Spec() command.Spec {
	return command.Spec{
		Name:              "config",
		Description:       "Manage bot settings for this server.",
		DefaultPermission: policy.ManageGuild,
		Options: []command.OptionSpec{
			{
				Name: "toggle", Description: "Enable or disable a command.", Type: interaction.OptionSubcommand,
				Options: []command.OptionSpec{
					commandOption(true),
					{Name: "status", Description: "New status for the command.", Type: interaction.OptionBoolean, Required: true},
				},
			},
			{
				Name: "channel", Description: "Toggle a channel on the command's allow list.", Type: interaction.OptionSubcommand,
				Options: []command.OptionSpec{
					commandOption(true),
					{Name: "channel", Description: "The channel to allow (leave empty to allow everywhere).", Type: interaction.OptionChannel},
				},
			},
			{
				Name: "block", Description: "Toggle a channel on the command's block list.", Type: interaction.OptionSubcommand,
				Options: []command.OptionSpec{
					commandOption(true),
					{Name: "channel", Description: "The channel to block (leave empty to clear the list).", Type: interaction.OptionChannel},
				},
			},
			{
				Name: "permission", Description: "Set the minimum permission required to use a command.", Type: interaction.OptionSubcommand,
				Options: []command.OptionSpec{
					commandOption(true),
					{
						Name: "level", Description: "The permission required.", Type: interaction.OptionString, Required: true,
						Choices: []interaction.Choice{
							{Name: "Reset to Default", Value: permissionReset},
							{Name: "Administrator", Value: string(policy.Administrator)},
							{Name: "Manage Server", Value: string(policy.ManageGuild)},
							{Name: "Manage Roles", Value: string(policy.ManageRoles)},
							{Name: "Manage Messages", Value: string(policy.ManageMessages)},
							{Name: "Kick Members", Value: string(policy.KickMembers)},
							{Name: "Ban Members", Value: string(policy.BanMembers)},
							{Name: "Everyone (None)", Value: permissionEveryone},
						},
					},
				},
			},
			{
				Name: "manager", Description: "Set the role that bypasses permission requirements.", Type: interaction.OptionSubcommand,
				Options: []command.OptionSpec{
					{Name: "role", Description: "The manager role (leave empty to clear).", Type: interaction.OptionRole},
				},
			},
			{
				Name: "overview", Description: "View settings. Leave \"command\" empty to see all commands.", Type: interaction.OptionSubcommand,
				Options: []command.OptionSpec{commandOption(false)},
			},
		},
	}
}

func (c *Config) Families() []command.Family {
	return []command.Family{{Name: "config_page", Ownership: command.OwnerEmbedded}}
}

// configurable lists the commands the editor shows.
func (c *Config) configurable() []string {
	var out []string
	for _, name := range c.registry.Names() {
		if name != "config" && name != "help" {
			out = append(out, name)
		}
	}
	return out
}

func (c *Config) Execute(ctx context.Context, req *command.Request) error {
	sub, opts := req.Event.Subcommand()
	name := interaction.StringOption(opts, "command")

	switch sub {
	case "overview":
		return c.overview(ctx, req, name)
	case "manager":
		return c.setManager(ctx, req, interaction.StringOption(opts, "role"))
	}

	if name == "" {
		return req.Reply(ctx, interaction.Ephemeral("❌ You must specify a command."))
	}
	if _, ok := c.registry.Command(name); !ok {
		return req.Reply(ctx, interaction.Ephemeral(fmt.Sprintf("❌ Command `%s` not found.", name)))
	}

	var (
		text   string
		action store.AuditAction
		detail map[string]any
		err    error
	)
	switch sub {
	case "toggle":
		text, action, detail, err = c.toggle(ctx, req, name, opts)
	case "channel":
		text, action, detail, err = c.toggleChannel(ctx, req, name, interaction.StringOption(opts, "channel"), false)
	case "block":
		text, action, detail, err = c.toggleChannel(ctx, req, name, interaction.StringOption(opts, "channel"), true)
	case "permission":
		text, action, detail, err = c.setPermission(ctx, req, name, interaction.StringOption(opts, "level"))
	default:
		return req.Reply(ctx, interaction.Ephemeral("❌ Unknown subcommand."))
	}
	if err != nil {
		return err
	}
	if action == "" {
		return req.Reply(ctx, interaction.Ephemeral(text))
	}

	c.audit(ctx, req, action, name, detail)
	return req.Reply(ctx, interaction.Text(text))
}

func (c *Config) audit(ctx context.Context, req *command.Request, action store.AuditAction, target string, detail map[string]any) {
	err := c.settings.SaveAuditEntry(ctx, &store.AuditEntry{
		WorkspaceID: req.Event.WorkspaceID,
		ActorID:     req.UserID(),
		Action:      action,
		Target:      target,
		Detail:      detail,
	})
	if err != nil {
		req.Logger.Warn("failed to write audit entry", "action", action, "target", target, "error", err)
	}
}

func (c *Config) toggle(ctx context.Context, req *command.Request, name string, opts []interaction.Option) (string, store.AuditAction, map[string]any, error) {
	o, _ := interaction.Lookup(opts, "status")
	status := o.Bool()
	err := c.settings.UpdateCommandRule(ctx, req.Event.WorkspaceID, name, func(r *store.CommandRule) {
		r.Enabled = &status
	})
	if err != nil {
		return "", "", nil, fmt.Errorf("updating rule: %w", err)
	}
	word := "DISABLED"
	if status {
		word = "ENABLED"
	}
	return fmt.Sprintf("✅ **%s** is now **%s**.", name, word),
		store.AuditToggleCommand, map[string]any{"enabled": status}, nil
}

// toggleChannel adds or removes channelID from the allow (or block) list.
// An empty channelID clears the list.
func (c *Config) toggleChannel(ctx context.Context, req *command.Request, name, channelID string, block bool) (string, store.AuditAction, map[string]any, error) {
	def := c.resolver.Defaults().Rule(name)

	var text string
	var result []string
	err := c.settings.UpdateCommandRule(ctx, req.Event.WorkspaceID, name, func(r *store.CommandRule) {
		field, inherited := &r.AllowChannels, def.AllowChannels
		if block {
			field, inherited = &r.BlockChannels, def.BlockChannels
		}
		list := *field
		if list == nil {
			list = slices.Clone(inherited)
		}

		switch {
		case channelID == "":
			list = []string{}
			if block {
				text = fmt.Sprintf("✅ **%s** is no longer blocked anywhere.", name)
			} else {
				text = fmt.Sprintf("✅ **%s** is now allowed in **ALL** channels.", name)
			}
		case slices.Contains(list, channelID):
			list = slices.DeleteFunc(list, func(id string) bool { return id == channelID })
			if block {
				text = fmt.Sprintf("✅ **%s** is no longer blocked in <#%s>.", name, channelID)
			} else {
				text = fmt.Sprintf("✅ **%s** is no longer restricted to <#%s>.", name, channelID)
			}
		default:
			list = append(list, channelID)
			if block {
				text = fmt.Sprintf("✅ **%s** is now blocked in <#%s>.", name, channelID)
			} else {
				text = fmt.Sprintf("✅ **%s** is now allowed in <#%s>.", name, channelID)
			}
		}
		*field = list
		result = slices.Clone(list)
	})
	if err != nil {
		return "", "", nil, fmt.Errorf("updating rule: %w", err)
	}

	key := "allow_channels"
	if block {
		key = "block_channels"
	}
	return text, store.AuditSetChannels, map[string]any{key: result}, nil
}

func (c *Config) setPermission(ctx context.Context, req *command.Request, name, level string) (string, store.AuditAction, map[string]any, error) {
	var stored *string
	var text string
	switch level {
	case permissionReset:
		text = fmt.Sprintf("✅ **%s** permission reset to default.", name)
	case permissionEveryone, "":
		none := ""
		stored = &none
		text = fmt.Sprintf("✅ **%s** is now available to **everyone**.", name)
	default:
		p, ok := policy.ParsePermission(level)
		if !ok {
			return fmt.Sprintf("❌ Unknown permission `%s`.", level), "", nil, nil
		}
		token := string(p)
		stored = &token
		text = fmt.Sprintf("✅ **%s** now requires **%s**.", name, p.Readable())
	}

	err := c.settings.UpdateCommandRule(ctx, req.Event.WorkspaceID, name, func(r *store.CommandRule) {
		r.MinPerm = stored
	})
	if err != nil {
		return "", "", nil, fmt.Errorf("updating rule: %w", err)
	}
	return text, store.AuditSetPermission, map[string]any{"min_perm": level}, nil
}

func (c *Config) setManager(ctx context.Context, req *command.Request, roleID string) error {
	if err := c.settings.SetBypassRole(ctx, req.Event.WorkspaceID, roleID); err != nil {
		return fmt.Errorf("setting manager role: %w", err)
	}
	c.audit(ctx, req, store.AuditSetManagerRole, "workspace", map[string]any{"role_id": roleID})
	if roleID == "" {
		return req.Reply(ctx, interaction.Text("✅ Manager role cleared."))
	}
	return req.Reply(ctx, interaction.Text(fmt.Sprintf(
		"✅ Members with <@&%s> now bypass permission requirements.", roleID)))
}

func (c *Config) overview(ctx context.Context, req *command.Request, name string) error {
	if name != "" {
		if _, ok := c.registry.Command(name); !ok {
			return req.Reply(ctx, interaction.Ephemeral(fmt.Sprintf("❌ Command `%s` not found.", name)))
		}
		res, err := c.resolver.ResolveAll(ctx, req.Event.WorkspaceID, []string{name})
		if err != nil {
			return err
		}
		return req.Reply(ctx, interaction.Message{Embeds: []interaction.Embed{singleOverview(name, res[name].Rule)}})
	}

	msg, err := c.listPage(ctx, req, 1)
	if err != nil {
		return err
	}
	return req.Reply(ctx, msg)
}

func (c *Config) HandleComponent(ctx context.Context, req *command.Request) error {
	page, err := strconv.Atoi(req.Key.Arg(0))
	if err != nil {
		page = 1
	}
	msg, err := c.listPage(ctx, req, page)
	if err != nil {
		return err
	}
	return req.Update(ctx, msg)
}

func (c *Config) Autocomplete(ctx context.Context, req *command.Request) ([]interaction.Choice, error) {
	focused, _ := req.Event.Focused()
	prefix := strings.ToLower(focused.String())
	var out []interaction.Choice
	for _, name := range c.configurable() {
		if strings.HasPrefix(strings.ToLower(name), prefix) {
			out = append(out, interaction.Choice{Name: name, Value: name})
		}
		if len(out) == interaction.MaxChoices {
			break
		}
	}
	return out, nil
}

func statusIcon(enabled bool) string {
	if enabled {
		return "🟢"
	}
	return "🔴"
}

func channelList(ids []string, empty string) string {
	if len(ids) == 0 {
		return empty
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = "<#" + id + ">"
	}
	return strings.Join(parts, ", ")
}

func singleOverview(name string, rule policy.Rule) interaction.Embed {
	color, status := 0xf04747, "Disabled"
	if rule.Enabled {
		color, status = 0x43b581, "Enabled"
	}
	return interaction.Embed{
		Title: fmt.Sprintf("%s Settings: %s", statusIcon(rule.Enabled), name),
		Color: color,
		Fields: []interaction.EmbedField{
			{Name: "Status", Value: "**" + status + "**", Inline: true},
			{Name: "Permission", Value: "🔒 " + rule.MinPermission.Readable(), Inline: true},
			{Name: "Channels", Value: channelList(rule.AllowChannels, "🌐 Global")},
			{Name: "Blocked", Value: channelList(rule.BlockChannels, "None")},
		},
	}
}

func (c *Config) listPage(ctx context.Context, req *command.Request, page int) (interaction.Message, error) {
	names := c.configurable()
	resolved, err := c.resolver.ResolveAll(ctx, req.Event.WorkspaceID, names)
	if err != nil {
		return interaction.Message{}, err
	}

	totalPages := max(1, (len(names)+configPageSize-1)/configPageSize)
	page = min(max(page, 1), totalPages)
	start := (page - 1) * configPageSize
	end := min(start+configPageSize, len(names))

	lines := make([]string, 0, end-start)
	for _, name := range names[start:end] {
		rule := resolved[name].Rule
		perm := "All"
		switch rule.MinPermission {
		case "":
		case policy.Administrator:
			perm = "Admin"
		default:
			perm = "Perms"
		}
		chans := "Global"
		if len(rule.AllowChannels) > 0 || len(rule.BlockChannels) > 0 {
			chans = "#Limit"
		}
		lines = append(lines, fmt.Sprintf("%s **%s**: %s | %s", statusIcon(rule.Enabled), name, perm, chans))
	}
	desc := strings.Join(lines, "\n")
	if desc == "" {
		desc = "No commands found."
	}

	msg := interaction.Message{
		Replace: true,
		Embeds: []interaction.Embed{{
			Title:       "🎛️ Server Configuration",
			Description: desc,
			Color:       colorNeutral,
			Footer:      &interaction.EmbedFooter{Text: fmt.Sprintf("Page %d of %d • Total: %d", page, totalPages, len(names))},
		}},
	}
	if totalPages > 1 {
		owner := req.UserID()
		prev := interaction.Button(interaction.ButtonSecondary, "◀ Prev", interaction.OwnedKey("config_page", owner, strconv.Itoa(page-1)))
		prev.Disabled = page == 1
		next := interaction.Button(interaction.ButtonSecondary, "Next ▶", interaction.OwnedKey("config_page", owner, strconv.Itoa(page+1)))
		next.Disabled = page == totalPages
		msg.Components = []interaction.ActionRow{interaction.Row(prev, next)}
	}
	return msg, nil
}
