// ABOUTME: The audit command: role diagnostics with an empty-role purge behind a checklist
// ABOUTME: The purge deletes every selected role independently and reports the tally

package handlers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/2389/stingray-gateway/internal/command"
	"github.com/2389/stingray-gateway/internal/interaction"
	"github.com/2389/stingray-gateway/internal/platform"
	"github.com/2389/stingray-gateway/internal/policy"
	"github.com/2389/stingray-gateway/internal/session"
)

const (
	auditBatch      = 25
	auditLoneLimit  = 20
	auditLadderSize = 15
	auditStepCheck  = "empty_check"
)

// Audit inspects workspace roles.
type Audit struct{}

// NewAudit creates the audit command.
func NewAudit() *Audit {
	return &Audit{}
}

type auditState struct {
	Order      []string          `json:"order,omitempty"`
	Candidates map[string]bool   `json:"candidates,omitempty"`
	Names      map[string]string `json:"names,omitempty"`
}

func (a *Audit) Spec() command.Spec {
	return command.Spec{
		Name:              "audit",
		Description:       "Access server diagnostics and forensic tools.",
		DefaultPermission: policy.ManageRoles,
	}
}

func (a *Audit) Families() []command.Family {
	return []command.Family{{
		Name:               "audit",
		Ownership:          command.SessionScoped,
		Flow:               session.KindAuditSession,
		SessionFree:        []string{"home"},
		RequiredPermission: policy.ManageRoles,
		PermissionMessage:  "🚫 You do not have permission to use the auditor.",
		ExpiredHint:        "/audit",
	}}
}

func (a *Audit) Execute(ctx context.Context, req *command.Request) error {
	if err := req.BeginFlow(ctx, session.KindAuditSession, session.StepMenu, auditState{}); err != nil {
		return fmt.Errorf("starting audit session: %w", err)
	}
	msg := auditMenu()
	msg.Replace = false
	return req.Reply(ctx, msg)
}

func (a *Audit) HandleComponent(ctx context.Context, req *command.Request) error {
	if req.Key.Action() == "home" {
		if err := req.BeginFlow(ctx, session.KindAuditSession, session.StepMenu, auditState{}); err != nil {
			return fmt.Errorf("restarting audit session: %w", err)
		}
		return req.Update(ctx, auditMenu())
	}

	g, ok := guilds(ctx, req)
	if !ok {
		return nil
	}
	switch req.Key.Action() {
	case "scan_empty":
		return a.scanEmpty(ctx, req, g)
	case "toggle_empty":
		return a.toggleEmpty(ctx, req)
	case "confirm_delete":
		return a.confirmDelete(ctx, req, g)
	case "scan_lone":
		return a.scanLone(ctx, req, g)
	case "scan_map":
		return a.scanMap(ctx, req, g)
	}
	return nil
}

// auditableRoles excludes managed roles and the implicit everyone role.
func auditableRoles(ctx context.Context, req *command.Request, g platform.Guilds) ([]platform.Role, map[string][]string, error) {
	ws := req.Event.WorkspaceID
	roles, err := g.Roles(ctx, ws)
	if err != nil {
		return nil, nil, fmt.Errorf("listing roles: %w", err)
	}
	members, err := g.Members(ctx, ws)
	if err != nil {
		return nil, nil, fmt.Errorf("listing members: %w", err)
	}
	out := roles[:0:0]
	for _, r := range roles {
		if r.Managed || r.ID == ws {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position > out[j].Position })
	return out, platform.Holders(members), nil
}

func (a *Audit) scanEmpty(ctx context.Context, req *command.Request, g platform.Guilds) error {
	roles, holders, err := auditableRoles(ctx, req, g)
	if err != nil {
		return err
	}
	var empty []platform.Role
	for _, r := range roles {
		if len(holders[r.ID]) == 0 {
			empty = append(empty, r)
		}
	}
	if len(empty) == 0 {
		return req.Update(ctx, auditResult("Diagnostic: Empty Roles",
			"Scan complete. No obsolete roles detected.", colorGreen))
	}

	total := len(empty)
	if len(empty) > auditBatch {
		empty = empty[:auditBatch]
	}
	state := auditState{Candidates: map[string]bool{}, Names: map[string]string{}}
	for _, r := range empty {
		state.Order = append(state.Order, r.ID)
		state.Candidates[r.ID] = true
		state.Names[r.ID] = r.Name
	}
	if err := req.Advance(ctx, auditStepCheck, state); err != nil {
		return fmt.Errorf("saving checklist: %w", err)
	}
	return req.Update(ctx, auditChecklist(state, total))
}

func (a *Audit) toggleEmpty(ctx context.Context, req *command.Request) error {
	var state auditState
	if err := req.Session.Decode(&state); err != nil {
		return err
	}
	if req.Session.Step != auditStepCheck {
		return req.Update(ctx, auditMenu())
	}
	for id := range state.Candidates {
		state.Candidates[id] = false
	}
	for _, id := range req.Event.Values {
		if _, ok := state.Candidates[id]; ok {
			state.Candidates[id] = true
		}
	}
	if err := req.Advance(ctx, auditStepCheck, state); err != nil {
		return fmt.Errorf("saving checklist: %w", err)
	}
	return req.Update(ctx, auditChecklist(state, len(state.Order)))
}

func (a *Audit) confirmDelete(ctx context.Context, req *command.Request, g platform.Guilds) error {
	var state auditState
	if err := req.Session.Decode(&state); err != nil {
		return err
	}
	var selected []string
	for _, id := range state.Order {
		if state.Candidates[id] {
			selected = append(selected, id)
		}
	}
	if len(selected) == 0 {
		return req.Reply(ctx, interaction.Ephemeral("Selection void. No action taken."))
	}

	if err := req.Update(ctx, interaction.Message{
		Replace: true,
		Embeds: []interaction.Embed{{
			Title:       "Processing Deletion...",
			Description: fmt.Sprintf("Purging %d roles.\nPlease hold...", len(selected)),
			Color:       0xffff00,
		}},
	}); err != nil {
		return err
	}

	var tally Tally
	tally.Run(selected,
		func(id string) string {
			if name := state.Names[id]; name != "" {
				return name
			}
			return id
		},
		func(id string) error {
			return g.DeleteRole(ctx, req.Event.WorkspaceID, id, "Audit: empty role purge")
		})

	if err := req.EndFlow(ctx); err != nil {
		req.Logger.Warn("failed to end audit session", "error", err)
	}
	req.Logger.Info("empty role purge processed", "applied", tally.Applied, "failed", len(tally.Failed))
	return req.Update(ctx, auditResult("Audit Log: Deletion", tally.Summary(), tally.Color()))
}

func (a *Audit) scanLone(ctx context.Context, req *command.Request, g platform.Guilds) error {
	roles, holders, err := auditableRoles(ctx, req, g)
	if err != nil {
		return err
	}
	var lines []string
	for _, r := range roles {
		if len(holders[r.ID]) != 1 {
			continue
		}
		lines = append(lines, fmt.Sprintf("`%s` - <@%s>", r.Name, holders[r.ID][0]))
		if len(lines) == auditLoneLimit {
			break
		}
	}
	desc := "No single-user roles detected."
	if len(lines) > 0 {
		desc = strings.Join(lines, "\n")
	}
	return req.Update(ctx, auditResult("Forensics: Identity Isolation",
		fmt.Sprintf("**Found %d roles with single occupancy:**\n\n%s", len(lines), desc), 0x00ffff))
}

func (a *Audit) scanMap(ctx context.Context, req *command.Request, g platform.Guilds) error {
	roles, _, err := auditableRoles(ctx, req, g)
	if err != nil {
		return err
	}

	byColor := map[int][]string{}
	var colors []int
	hoisted := 0
	for _, r := range roles {
		if r.Hoist {
			hoisted++
		}
		if r.Color == 0 {
			continue
		}
		if _, seen := byColor[r.Color]; !seen {
			colors = append(colors, r.Color)
		}
		byColor[r.Color] = append(byColor[r.Color], r.Name)
	}
	var clones []string
	for _, c := range colors {
		if names := byColor[c]; len(names) > 1 && len(clones) < 10 {
			clones = append(clones, fmt.Sprintf("`%s`: %s", formatHex(c), strings.Join(names, ", ")))
		}
	}

	var ladder []string
	for i, r := range roles {
		if i == auditLadderSize {
			break
		}
		hex := "Default"
		if r.Color != 0 {
			hex = formatHex(r.Color)
		}
		ladder = append(ladder, fmt.Sprintf("`%02d` **%s** (%s)", r.Position, r.Name, hex))
	}
	ladderText := strings.Join(ladder, "\n")
	if ladderText == "" {
		ladderText = "No data available."
	}

	fields := []interaction.EmbedField{{Name: fmt.Sprintf("Hierarchy Ladder (Top %d)", auditLadderSize), Value: ladderText}}
	if len(clones) > 0 {
		fields = append(fields, interaction.EmbedField{Name: "Visual Duplication Alert", Value: "*Detected shared color values:*\n" + strings.Join(clones, "\n")})
	} else {
		fields = append(fields, interaction.EmbedField{Name: "Visual Analysis", Value: "No color conflicts detected."})
	}

	msg := auditResult("Forensics: Structure & Color",
		fmt.Sprintf("**Registry Size:** %d roles\n**Sidebar Visibility:** %d", len(roles), hoisted), 0xff00ff)
	msg.Embeds[0].Fields = fields
	return req.Update(ctx, msg)
}

func returnRow() interaction.ActionRow {
	return interaction.Row(interaction.Button(interaction.ButtonSecondary, "Return", interaction.ActionKey("audit", "home")))
}

func auditResult(title, desc string, color int) interaction.Message {
	return interaction.Message{
		Replace:    true,
		Embeds:     []interaction.Embed{{Title: title, Description: desc, Color: color}},
		Components: []interaction.ActionRow{returnRow()},
	}
}

func auditMenu() interaction.Message {
	return interaction.Message{
		Replace: true,
		Embeds: []interaction.Embed{{
			Title:       "Forensics Suite",
			Description: "Select a diagnostic module.",
			Color:       0x9900ff,
			Fields: []interaction.EmbedField{
				{Name: "Empty Node Scan", Value: "Identifies and purges roles with zero utilization.", Inline: true},
				{Name: "Identity Isolation", Value: "Tracks single-user roles.", Inline: true},
				{Name: "Structure Analysis", Value: "Visualizes hierarchy and color redundancy.", Inline: true},
			},
		}},
		Components: []interaction.ActionRow{interaction.Row(
			interaction.Button(interaction.ButtonPrimary, "Scan Empty Nodes", interaction.ActionKey("audit", "scan_empty")),
			interaction.Button(interaction.ButtonSecondary, "Check Isolations", interaction.ActionKey("audit", "scan_lone")),
			interaction.Button(interaction.ButtonSecondary, "Analyze Structure", interaction.ActionKey("audit", "scan_map")),
		)},
	}
}

func auditChecklist(state auditState, total int) interaction.Message {
	checked := 0
	options := make([]interaction.SelectOption, 0, len(state.Order))
	for _, id := range state.Order {
		if state.Candidates[id] {
			checked++
		}
		options = append(options, interaction.SelectOption{
			Label:       clip(state.Names[id], 100),
			Value:       id,
			Description: "ID: " + id,
			Default:     state.Candidates[id],
		})
	}

	del := interaction.Button(interaction.ButtonDanger, fmt.Sprintf("DELETE SELECTED (%d)", checked), interaction.ActionKey("audit", "confirm_delete"))
	del.Disabled = checked == 0

	return interaction.Message{
		Replace: true,
		Embeds: []interaction.Embed{{
			Title: "Verification Required",
			Description: fmt.Sprintf("Found **%d** empty roles.\n\nSelect the roles you wish to **DELETE**.\nUnchecked roles will be preserved.",
				total),
			Color:  colorRed,
			Fields: []interaction.EmbedField{{Name: "Pending Deletion", Value: fmt.Sprintf("%d roles selected.", checked)}},
		}},
		Components: []interaction.ActionRow{
			interaction.Row(interaction.Select(interaction.ActionKey("audit", "toggle_empty"), "Select roles to purge...", 0, len(options), options...)),
			interaction.Row(del, interaction.Button(interaction.ButtonSecondary, "Cancel", interaction.ActionKey("audit", "home"))),
		},
	}
}
