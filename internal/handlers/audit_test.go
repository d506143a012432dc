// ABOUTME: Tests for the audit command's scans and the empty-role purge
// ABOUTME: The purge deletes selected roles one by one and reports the tally

package handlers

import (
	"errors"
	"testing"

	"github.com/2389/stingray-gateway/internal/interaction"
	"github.com/2389/stingray-gateway/internal/platform"
	"github.com/2389/stingray-gateway/internal/policy"
	"github.com/2389/stingray-gateway/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAuditWorkspace(h *harness) {
	h.guilds.AddRole(platform.Role{ID: testWorkspace, Name: "@everyone"})
	h.guilds.AddRole(platform.Role{ID: "r-busy", Name: "busy", Position: 5, Color: 0xFF0000})
	h.guilds.AddRole(platform.Role{ID: "r-a", Name: "alpha", Position: 3, Color: 0xFF0000})
	h.guilds.AddRole(platform.Role{ID: "r-b", Name: "beta", Position: 4})
	h.guilds.AddRole(platform.Role{ID: "r-bot", Name: "bot", Position: 6, Managed: true})
	h.guilds.AddRole(platform.Role{ID: "r-c", Name: "gamma", Position: 1, Hoist: true})
	h.guilds.AddMember(platform.Member{UserID: "u1", RoleIDs: []string{"r-busy"}})
}

func checklistValues(t *testing.T, msg interaction.Message) []string {
	t.Helper()
	require.NotEmpty(t, msg.Components)
	sel := msg.Components[0].Components[0]
	require.Equal(t, interaction.ComponentStringSelect, sel.Type)
	var out []string
	for _, o := range sel.Options {
		out = append(out, o.Value)
	}
	return out
}

func TestAudit_StartsSessionWithMenu(t *testing.T) {
	h := newHarness(t)

	rec, err := h.execute(t, "admin", "audit")
	require.NoError(t, err)

	sess := h.session(t, "admin")
	require.NotNil(t, sess)
	assert.Equal(t, session.KindAuditSession, sess.Kind)
	assert.Equal(t, session.StepMenu, sess.Step)

	var ids []string
	for _, c := range rec.LastReply().Components[0].Components {
		ids = append(ids, c.CustomID)
	}
	assert.Equal(t, []string{"audit_scan_empty", "audit_scan_lone", "audit_scan_map"}, ids)
}

func TestAudit_EmptyRolePurge(t *testing.T) {
	h := newHarness(t)
	seedAuditWorkspace(h)
	h.guilds.Fail["r-b"] = errors.New("missing access")

	_, err := h.execute(t, "admin", "audit")
	require.NoError(t, err)

	rec, err := h.press(t, "admin", "audit_scan_empty")
	require.NoError(t, err)
	assert.Equal(t, []string{"r-b", "r-a", "r-c"}, checklistValues(t, rec.LastUpdate()),
		"managed and everyone roles are skipped; highest position first")
	assert.Equal(t, "empty_check", h.session(t, "admin").Step)

	// Keep gamma
	rec, err = h.press(t, "admin", "audit_toggle_empty", "r-a", "r-b")
	require.NoError(t, err)
	del := rec.LastUpdate().Components[1].Components[0]
	assert.Equal(t, "DELETE SELECTED (2)", del.Label)
	assert.Equal(t, "audit_confirm_delete", del.CustomID)

	rec, err = h.press(t, "admin", "audit_confirm_delete")
	require.NoError(t, err)

	assert.Equal(t, []string{"r-a"}, h.guilds.Deleted)
	final := rec.LastUpdate()
	require.Len(t, final.Embeds, 1)
	assert.Equal(t, "**Applied:** 1\n**Failed:** 1\nbeta", final.Embeds[0].Description)
	assert.Equal(t, "audit_home", final.Components[0].Components[0].CustomID)
	assert.Nil(t, h.session(t, "admin"), "session ends after the purge")
}

func TestAudit_NothingSelected(t *testing.T) {
	h := newHarness(t)
	seedAuditWorkspace(h)

	_, err := h.execute(t, "admin", "audit")
	require.NoError(t, err)
	_, err = h.press(t, "admin", "audit_scan_empty")
	require.NoError(t, err)
	_, err = h.press(t, "admin", "audit_toggle_empty")
	require.NoError(t, err)

	rec, err := h.press(t, "admin", "audit_confirm_delete")
	require.NoError(t, err)
	assert.Equal(t, interaction.Ephemeral("Selection void. No action taken."), rec.LastReply())
	assert.Empty(t, h.guilds.Deleted)
	assert.NotNil(t, h.session(t, "admin"), "session survives an empty confirmation")
}

func TestAudit_NoEmptyRoles(t *testing.T) {
	h := newHarness(t)
	h.guilds.AddRole(platform.Role{ID: "r1", Name: "one"})
	h.guilds.AddMember(platform.Member{UserID: "u1", RoleIDs: []string{"r1"}})

	_, err := h.execute(t, "admin", "audit")
	require.NoError(t, err)
	rec, err := h.press(t, "admin", "audit_scan_empty")
	require.NoError(t, err)
	assert.Contains(t, rec.LastUpdate().Embeds[0].Description, "No obsolete roles")
	assert.Equal(t, session.StepMenu, h.session(t, "admin").Step)
}

func TestAudit_HomeRestartsSession(t *testing.T) {
	h := newHarness(t)

	rec, err := h.press(t, "admin", "audit_home")
	require.NoError(t, err)
	assert.Equal(t, "Forensics Suite", rec.LastUpdate().Embeds[0].Title)

	sess := h.session(t, "admin")
	require.NotNil(t, sess)
	assert.Equal(t, session.KindAuditSession, sess.Kind)
}

func TestAudit_ScanLone(t *testing.T) {
	h := newHarness(t)
	seedAuditWorkspace(h)

	_, err := h.execute(t, "admin", "audit")
	require.NoError(t, err)
	rec, err := h.press(t, "admin", "audit_scan_lone")
	require.NoError(t, err)

	desc := rec.LastUpdate().Embeds[0].Description
	assert.Contains(t, desc, "Found 1 roles")
	assert.Contains(t, desc, "`busy` - <@u1>")
}

func TestAudit_ScanMap(t *testing.T) {
	h := newHarness(t)
	seedAuditWorkspace(h)

	_, err := h.execute(t, "admin", "audit")
	require.NoError(t, err)
	rec, err := h.press(t, "admin", "audit_scan_map")
	require.NoError(t, err)

	embed := rec.LastUpdate().Embeds[0]
	assert.Contains(t, embed.Description, "**Registry Size:** 4 roles")
	assert.Contains(t, embed.Description, "**Sidebar Visibility:** 1")
	require.Len(t, embed.Fields, 2)
	assert.Equal(t, "Visual Duplication Alert", embed.Fields[1].Name)
	assert.Contains(t, embed.Fields[1].Value, "`#FF0000`: busy, alpha")
}

func TestAudit_FamilyRequiresManageRoles(t *testing.T) {
	h := newHarness(t)
	family, _, ok := h.registry.Family("audit")
	require.True(t, ok)

	assert.Equal(t, policy.ManageRoles, family.RequiredPermission)
	assert.False(t, family.NeedsSession("home"))
	assert.True(t, family.NeedsSession("confirm_delete"))
	assert.Equal(t, "/audit", family.ExpiredHint)
}
