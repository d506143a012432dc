// ABOUTME: Tests for the config and dashboard commands
// ABOUTME: Checks stored overrides, audit entries and the rendered views

package handlers

import (
	"context"
	"testing"

	"github.com/2389/stingray-gateway/internal/interaction"
	"github.com/2389/stingray-gateway/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *harness) rule(t *testing.T, name string) (store.CommandRule, bool) {
	t.Helper()
	ws, err := h.store.GetWorkspaceSettings(context.Background(), testWorkspace)
	if err != nil {
		return store.CommandRule{}, false
	}
	return ws.Rule(name)
}

func (h *harness) auditLog(t *testing.T) []*store.AuditEntry {
	t.Helper()
	entries, err := h.store.ListAuditEntries(context.Background(), store.AuditFilter{WorkspaceID: testWorkspace})
	require.NoError(t, err)
	return entries
}

func boolOpt(name string, v bool) interaction.Option {
	return interaction.Option{Name: name, Type: interaction.OptionBoolean, Value: v}
}

func TestConfig_Toggle(t *testing.T) {
	h := newHarness(t)

	rec, err := h.execute(t, "admin", "config", sub("toggle", opt("command", "role"), boolOpt("status", false)))
	require.NoError(t, err)
	assert.Equal(t, interaction.Text("✅ **role** is now **DISABLED**."), rec.LastReply())

	rule, ok := h.rule(t, "role")
	require.True(t, ok)
	require.NotNil(t, rule.Enabled)
	assert.False(t, *rule.Enabled)

	entries := h.auditLog(t)
	require.Len(t, entries, 1)
	assert.Equal(t, store.AuditToggleCommand, entries[0].Action)
	assert.Equal(t, "role", entries[0].Target)
	assert.Equal(t, "admin", entries[0].ActorID)
	assert.Equal(t, false, entries[0].Detail["enabled"])
}

func TestConfig_UnknownCommand(t *testing.T) {
	h := newHarness(t)

	rec, err := h.execute(t, "admin", "config", sub("toggle", opt("command", "nope"), boolOpt("status", false)))
	require.NoError(t, err)
	assert.Equal(t, interaction.Ephemeral("❌ Command `nope` not found."), rec.LastReply())
	assert.Empty(t, h.auditLog(t))
}

func TestConfig_ChannelToggle(t *testing.T) {
	h := newHarness(t)

	rec, err := h.execute(t, "admin", "config", sub("channel", opt("command", "ping"), opt("channel", "c1")))
	require.NoError(t, err)
	assert.Equal(t, "✅ **ping** is now allowed in <#c1>.", rec.LastReply().Content)
	rule, _ := h.rule(t, "ping")
	assert.Equal(t, []string{"c1"}, rule.AllowChannels)

	rec, err = h.execute(t, "admin", "config", sub("channel", opt("command", "ping"), opt("channel", "c1")))
	require.NoError(t, err)
	assert.Equal(t, "✅ **ping** is no longer restricted to <#c1>.", rec.LastReply().Content)
	rule, ok := h.rule(t, "ping")
	require.True(t, ok, "an emptied list is an explicit override")
	assert.NotNil(t, rule.AllowChannels)
	assert.Empty(t, rule.AllowChannels)

	assert.Len(t, h.auditLog(t), 2)
}

func TestConfig_BlockAndClear(t *testing.T) {
	h := newHarness(t)

	_, err := h.execute(t, "admin", "config", sub("block", opt("command", "ping"), opt("channel", "c9")))
	require.NoError(t, err)
	rule, _ := h.rule(t, "ping")
	assert.Equal(t, []string{"c9"}, rule.BlockChannels)

	rec, err := h.execute(t, "admin", "config", sub("block", opt("command", "ping")))
	require.NoError(t, err)
	assert.Equal(t, "✅ **ping** is no longer blocked anywhere.", rec.LastReply().Content)
	rule, _ = h.rule(t, "ping")
	assert.Empty(t, rule.BlockChannels)
}

func TestConfig_Permission(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		want    *string
		present bool
	}{
		{"capability", "manageMessages", strPtr("manageMessages"), true},
		{"everyone", permissionEveryone, strPtr(""), true},
		{"reset", permissionReset, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.execute(t, "admin", "config", sub("permission", opt("command", "role"), opt("level", "administrator")))
			require.NoError(t, err)

			_, err = h.execute(t, "admin", "config", sub("permission", opt("command", "role"), opt("level", tt.level)))
			require.NoError(t, err)

			rule, ok := h.rule(t, "role")
			assert.Equal(t, tt.present, ok)
			assert.Equal(t, tt.want, rule.MinPerm)

			entries := h.auditLog(t)
			require.Len(t, entries, 2)
			assert.Equal(t, store.AuditSetPermission, entries[0].Action)
		})
	}
}

func TestConfig_UnknownPermissionIsNotAudited(t *testing.T) {
	h := newHarness(t)

	rec, err := h.execute(t, "admin", "config", sub("permission", opt("command", "role"), opt("level", "wizard")))
	require.NoError(t, err)
	assert.Equal(t, interaction.Ephemeral("❌ Unknown permission `wizard`."), rec.LastReply())
	_, ok := h.rule(t, "role")
	assert.False(t, ok)
	assert.Empty(t, h.auditLog(t))
}

func TestConfig_Manager(t *testing.T) {
	h := newHarness(t)

	_, err := h.execute(t, "admin", "config", sub("manager", opt("role", "role-mgr")))
	require.NoError(t, err)

	ws, err := h.store.GetWorkspaceSettings(context.Background(), testWorkspace)
	require.NoError(t, err)
	assert.Equal(t, "role-mgr", ws.BypassRoleID)

	entries := h.auditLog(t)
	require.Len(t, entries, 1)
	assert.Equal(t, store.AuditSetManagerRole, entries[0].Action)
	assert.Equal(t, "workspace", entries[0].Target)
}

func TestConfig_Overview(t *testing.T) {
	h := newHarness(t)

	rec, err := h.execute(t, "admin", "config", sub("overview"))
	require.NoError(t, err)
	embed := rec.LastReply().Embeds[0]
	assert.Equal(t, "Page 1 of 1 • Total: 6", embed.Footer.Text)
	assert.Contains(t, embed.Description, "**dangeru**")
	assert.NotContains(t, embed.Description, "**help**")

	rec, err = h.execute(t, "admin", "config", sub("overview", opt("command", "role")))
	require.NoError(t, err)
	assert.Contains(t, rec.LastReply().Embeds[0].Title, "Settings: role")
}

func TestConfig_PageButtonClamps(t *testing.T) {
	h := newHarness(t)

	rec, err := h.press(t, "admin", "config_page|admin|7")
	require.NoError(t, err)
	assert.Equal(t, "Page 1 of 1 • Total: 6", rec.LastUpdate().Embeds[0].Footer.Text)
}

func TestConfig_Autocomplete(t *testing.T) {
	h := newHarness(t)
	cfg := NewConfig(Deps{Store: h.store, Resolver: h.resolver, Registry: h.registry})

	req, _ := h.request(&interaction.Event{
		Kind:        interaction.KindAutocomplete,
		WorkspaceID: testWorkspace,
		CommandName: "config",
		Options: []interaction.Option{sub("toggle",
			interaction.Option{Name: "command", Type: interaction.OptionString, Value: "D", Focused: true},
		)},
	})
	choices, err := cfg.Autocomplete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []interaction.Choice{
		{Name: "dangeru", Value: "dangeru"},
		{Name: "dashboard", Value: "dashboard"},
	}, choices)
}

func TestDashboard_SelectAppliesChanges(t *testing.T) {
	h := newHarness(t)

	rec, err := h.execute(t, "admin", "dashboard")
	require.NoError(t, err)
	sel := rec.LastReply().Components[0].Components[0]
	assert.Equal(t, "dashboard_select|admin", sel.CustomID)

	var values []string
	defaults := map[string]bool{}
	for _, o := range sel.Options {
		values = append(values, o.Value)
		defaults[o.Value] = o.Default
	}
	assert.Equal(t, []string{"audit", "custom", "dangeru", "ping", "role"}, values)
	assert.False(t, defaults["dangeru"], "disabled by default")
	assert.True(t, defaults["ping"])

	rec, err = h.press(t, "admin", "dashboard_select|admin", "dangeru", "ping")
	require.NoError(t, err)

	for name, want := range map[string]bool{"dangeru": true, "audit": false, "custom": false, "role": false} {
		rule, ok := h.rule(t, name)
		require.True(t, ok, name)
		assert.Equal(t, want, *rule.Enabled, name)
	}
	_, ok := h.rule(t, "ping")
	assert.False(t, ok, "unchanged commands are not written")
	assert.Len(t, h.auditLog(t), 4)

	updated := rec.LastUpdate().Components[0].Components[0]
	for _, o := range updated.Options {
		assert.Equal(t, o.Value == "dangeru" || o.Value == "ping", o.Default, o.Value)
	}
}

func strPtr(s string) *string { return &s }
