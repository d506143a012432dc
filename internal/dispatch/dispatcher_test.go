// ABOUTME: Tests for command, autocomplete and component dispatch
// ABOUTME: Exercises policy gating, ownership, session checks, cancel and fault containment

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/2389/stingray-gateway/internal/command"
	"github.com/2389/stingray-gateway/internal/interaction"
	"github.com/2389/stingray-gateway/internal/metrics"
	"github.com/2389/stingray-gateway/internal/policy"
	"github.com/2389/stingray-gateway/internal/session"
	"github.com/2389/stingray-gateway/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCommand counts invocations and can fail on demand.
type fakeCommand struct {
	spec     command.Spec
	families []command.Family
	choices  []interaction.Choice

	executed  int
	handled   int
	lastReq   *command.Request
	failWith  error
	panicWith any
}

func (c *fakeCommand) Spec() command.Spec { return c.spec }

func (c *fakeCommand) Execute(ctx context.Context, req *command.Request) error {
	c.executed++
	c.lastReq = req
	if c.panicWith != nil {
		panic(c.panicWith)
	}
	return c.failWith
}

func (c *fakeCommand) Families() []command.Family { return c.families }

func (c *fakeCommand) HandleComponent(ctx context.Context, req *command.Request) error {
	c.handled++
	c.lastReq = req
	if c.panicWith != nil {
		panic(c.panicWith)
	}
	return c.failWith
}

func (c *fakeCommand) Autocomplete(ctx context.Context, req *command.Request) ([]interaction.Choice, error) {
	return c.choices, c.failWith
}

type fixture struct {
	dispatcher *Dispatcher
	store      *store.MockStore
	sessions   *session.MemoryStore
	registry   *command.Registry
}

func newFixture(t *testing.T, defaults policy.Defaults, mode policy.StoreErrorMode, cmds ...command.Command) *fixture {
	t.Helper()
	st := store.NewMockStore()
	sessions := session.NewMemoryStore(0)
	registry := command.NewRegistry(nil)
	for _, c := range cmds {
		require.NoError(t, registry.Register(c))
	}
	resolver := policy.NewResolver(policy.ResolverConfig{
		Settings:     st,
		Defaults:     defaults,
		OnStoreError: mode,
	})
	return &fixture{
		dispatcher: New(Config{Registry: registry, Resolver: resolver, Sessions: sessions}),
		store:      st,
		sessions:   sessions,
		registry:   registry,
	}
}

func member(id string, perms ...policy.Permission) interaction.Member {
	return interaction.Member{ID: id, Permissions: policy.NewPermissionSet(perms...)}
}

func commandEvent(name string, m interaction.Member) *interaction.Event {
	return &interaction.Event{
		ID:          "ev-1",
		Kind:        interaction.KindCommand,
		WorkspaceID: "ws-1",
		ChannelID:   "chan-1",
		Member:      m,
		CommandName: name,
	}
}

func componentEvent(customID string, m interaction.Member) *interaction.Event {
	return &interaction.Event{
		ID:          "ev-2",
		Kind:        interaction.KindComponent,
		WorkspaceID: "ws-1",
		ChannelID:   "chan-1",
		Member:      m,
		CustomID:    customID,
	}
}

func boolPtr(b bool) *bool { return &b }

func TestCommand_DefaultPermission(t *testing.T) {
	cmd := &fakeCommand{spec: command.Spec{Name: "x"}}
	defaults := policy.Defaults{"x": {Enabled: true, MinPermission: policy.ManageRoles}}
	f := newFixture(t, defaults, policy.OnStoreErrorAllow, cmd)
	require.NoError(t, f.store.SetBypassRole(context.Background(), "ws-1", "role-mgr"))

	rec := interaction.NewRecorder()
	outcome := f.dispatcher.Dispatch(context.Background(), commandEvent("x", member("plain")), rec)
	assert.Equal(t, metrics.OutcomeDenied, outcome)
	assert.Equal(t, 0, cmd.executed)
	assert.True(t, rec.LastReply().Ephemeral)
	assert.Contains(t, rec.LastReply().Content, "`Manage Roles`")

	manager := member("mgr")
	manager.RoleIDs = []string{"role-mgr"}
	rec = interaction.NewRecorder()
	outcome = f.dispatcher.Dispatch(context.Background(), commandEvent("x", manager), rec)
	assert.Equal(t, metrics.OutcomeHandled, outcome)
	assert.Equal(t, 1, cmd.executed)
}

func TestCommand_Disabled(t *testing.T) {
	ctx := context.Background()
	cmd := &fakeCommand{spec: command.Spec{Name: "purge"}}
	cfg := &fakeCommand{spec: command.Spec{Name: "config"}}
	f := newFixture(t, policy.Defaults{}, policy.OnStoreErrorAllow, cmd, cfg)
	for _, name := range []string{"purge", "config"} {
		require.NoError(t, f.store.UpdateCommandRule(ctx, "ws-1", name, func(r *store.CommandRule) {
			r.Enabled = boolPtr(false)
		}))
	}

	owner := member("owner")
	owner.IsOwner = true

	rec := interaction.NewRecorder()
	assert.Equal(t, metrics.OutcomeDenied, f.dispatcher.Dispatch(ctx, commandEvent("purge", owner), rec))
	assert.Equal(t, 0, cmd.executed, "bypass never overrides enabled=false")
	assert.Contains(t, rec.LastReply().Content, "disabled")

	rec = interaction.NewRecorder()
	assert.Equal(t, metrics.OutcomeHandled, f.dispatcher.Dispatch(ctx, commandEvent("config", owner), rec))
	assert.Equal(t, 1, cfg.executed, "the configuration surface stays invocable")
}

func TestCommand_AllowListWithEmptyBlockList(t *testing.T) {
	ctx := context.Background()
	cmd := &fakeCommand{spec: command.Spec{Name: "trigger"}}
	f := newFixture(t, policy.Defaults{}, policy.OnStoreErrorAllow, cmd)
	require.NoError(t, f.store.UpdateCommandRule(ctx, "ws-1", "trigger", func(r *store.CommandRule) {
		r.AllowChannels = []string{"chan-9"}
	}))

	rec := interaction.NewRecorder()
	assert.Equal(t, metrics.OutcomeDenied, f.dispatcher.Dispatch(ctx, commandEvent("trigger", member("u", policy.Administrator)), rec))
	assert.Equal(t, 0, cmd.executed)
	assert.Contains(t, rec.LastReply().Content, "channel")
}

func TestCommand_StoreErrorModes(t *testing.T) {
	defaults := policy.Defaults{"role": {Enabled: true, MinPermission: policy.ManageRoles}}

	tests := []struct {
		mode    policy.StoreErrorMode
		outcome string
		reply   string
	}{
		{policy.OnStoreErrorAllow, metrics.OutcomeHandled, ""},
		{policy.OnStoreErrorDefaults, metrics.OutcomeDenied, "`Manage Roles`"},
		{policy.OnStoreErrorDeny, metrics.OutcomeDenied, "unavailable"},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			cmd := &fakeCommand{spec: command.Spec{Name: "role"}}
			f := newFixture(t, defaults, tt.mode, cmd)
			f.store.SetErr(errors.New("connection refused"))

			rec := interaction.NewRecorder()
			outcome := f.dispatcher.Dispatch(context.Background(), commandEvent("role", member("plain")), rec)
			assert.Equal(t, tt.outcome, outcome)
			if tt.reply == "" {
				assert.Equal(t, 1, cmd.executed, "fail open runs the handler")
			} else {
				assert.Contains(t, rec.LastReply().Content, tt.reply)
			}
		})
	}
}

func TestCommand_DeferredAndFaults(t *testing.T) {
	ctx := context.Background()
	slow := &fakeCommand{spec: command.Spec{Name: "mix", Deferred: true}, failWith: errors.New("upstream 500")}
	broken := &fakeCommand{spec: command.Spec{Name: "tab"}, panicWith: "index out of range"}
	f := newFixture(t, policy.Defaults{}, policy.OnStoreErrorAllow, slow, broken)

	rec := interaction.NewRecorder()
	assert.Equal(t, metrics.OutcomeFault, f.dispatcher.Dispatch(ctx, commandEvent("mix", member("u")), rec))
	assert.True(t, rec.Deferred)
	assert.Equal(t, "Command execution error.", rec.LastUpdate().Content)

	rec = interaction.NewRecorder()
	assert.Equal(t, metrics.OutcomeFault, f.dispatcher.Dispatch(ctx, commandEvent("tab", member("u")), rec))
	assert.Equal(t, "Command execution error.", rec.LastReply().Content)
	assert.True(t, rec.LastReply().Ephemeral)

	// Later events still dispatch normally
	rec = interaction.NewRecorder()
	f.dispatcher.Handle(ctx, commandEvent("tab", member("u")), rec)
	assert.Equal(t, 2, broken.executed)
}

func TestCommand_Unknown(t *testing.T) {
	f := newFixture(t, policy.Defaults{}, policy.OnStoreErrorAllow)
	rec := interaction.NewRecorder()
	assert.Equal(t, metrics.OutcomeUnknown, f.dispatcher.Dispatch(context.Background(), commandEvent("nope", member("u")), rec))
	assert.True(t, rec.LastReply().Ephemeral)
}

func TestAutocomplete(t *testing.T) {
	ctx := context.Background()
	many := make([]interaction.Choice, 40)
	for i := range many {
		many[i] = interaction.Choice{Name: fmt.Sprint(i), Value: fmt.Sprint(i)}
	}
	withAC := &fakeCommand{spec: command.Spec{Name: "config"}, choices: many}
	f := newFixture(t, policy.Defaults{"config": {Enabled: false, MinPermission: policy.Administrator}}, policy.OnStoreErrorAllow, withAC)

	ev := commandEvent("config", member("u"))
	ev.Kind = interaction.KindAutocomplete
	rec := interaction.NewRecorder()
	assert.Equal(t, metrics.OutcomeHandled, f.dispatcher.Dispatch(ctx, ev, rec))
	require.Len(t, rec.Suggestions, 1)
	assert.Len(t, rec.Suggestions[0], interaction.MaxChoices, "no policy gate, capped at the platform limit")

	withAC.failWith = errors.New("lookup failed")
	rec = interaction.NewRecorder()
	assert.Equal(t, metrics.OutcomeFault, f.dispatcher.Dispatch(ctx, ev, rec))
	require.Len(t, rec.Suggestions, 1)
	assert.Empty(t, rec.Suggestions[0])
}

type plainOnly struct{}

func (plainOnly) Spec() command.Spec                                    { return command.Spec{Name: "ping"} }
func (plainOnly) Execute(ctx context.Context, r *command.Request) error { return nil }

func TestAutocomplete_NoCapability(t *testing.T) {
	f := newFixture(t, policy.Defaults{}, policy.OnStoreErrorAllow, plainOnly{})
	ev := commandEvent("ping", member("u"))
	ev.Kind = interaction.KindAutocomplete
	rec := interaction.NewRecorder()
	f.dispatcher.Dispatch(context.Background(), ev, rec)
	require.Len(t, rec.Suggestions, 1)
	assert.Empty(t, rec.Suggestions[0])
}

func roleCommand() *fakeCommand {
	return &fakeCommand{
		spec: command.Spec{Name: "role"},
		families: []command.Family{
			{Name: "confirm_role_create", Flow: session.KindRoleCreate},
			{Name: "confirm_assign_role", Flow: session.KindBulkAssign},
		},
	}
}

func TestComponent_ConfirmationScenario(t *testing.T) {
	ctx := context.Background()
	role := roleCommand()
	f := newFixture(t, policy.Defaults{}, policy.OnStoreErrorAllow, role)

	sess, err := session.New("userA", session.KindRoleCreate, session.StepAwaitingConfirmation, map[string]string{"name": "Foo"})
	require.NoError(t, err)
	require.NoError(t, f.sessions.Set(ctx, sess))

	// B clicks A's confirm
	rec := interaction.NewRecorder()
	outcome := f.dispatcher.Dispatch(ctx, componentEvent("confirm_role_create|userA", member("userB")), rec)
	assert.Equal(t, metrics.OutcomeNotOwner, outcome)
	assert.Equal(t, "This isn't your interaction.", rec.LastReply().Content)
	assert.True(t, rec.LastReply().Ephemeral)
	assert.Equal(t, 0, role.handled)
	_, err = f.sessions.Get(ctx, "userA")
	assert.NoError(t, err, "session untouched")

	// B clicks A's cancel
	rec = interaction.NewRecorder()
	assert.Equal(t, metrics.OutcomeNotOwner, f.dispatcher.Dispatch(ctx, componentEvent("cancel|userA", member("userB")), rec))
	_, err = f.sessions.Get(ctx, "userA")
	assert.NoError(t, err)

	// A cancels
	rec = interaction.NewRecorder()
	assert.Equal(t, metrics.OutcomeHandled, f.dispatcher.Dispatch(ctx, componentEvent("cancel|userA", member("userA")), rec))
	_, err = f.sessions.Get(ctx, "userA")
	assert.ErrorIs(t, err, session.ErrNotFound)
	update := rec.LastUpdate()
	assert.Equal(t, "Action cancelled.", update.Content)
	assert.True(t, update.Replace)

	// Confirm after cancel: expired, UI neutralised
	rec = interaction.NewRecorder()
	assert.Equal(t, metrics.OutcomeExpired, f.dispatcher.Dispatch(ctx, componentEvent("confirm_role_create|userA", member("userA")), rec))
	assert.Equal(t, "❌ Session expired. Please run the command again.", rec.LastUpdate().Content)
	assert.Equal(t, 0, role.handled)
}

func TestComponent_ConfirmRunsHandlerWithSession(t *testing.T) {
	ctx := context.Background()
	role := roleCommand()
	f := newFixture(t, policy.Defaults{}, policy.OnStoreErrorAllow, role)

	first, _ := session.New("userA", session.KindRoleCreate, session.StepAwaitingConfirmation, nil)
	require.NoError(t, f.sessions.Set(ctx, first))
	second, _ := session.New("userA", session.KindBulkAssign, session.StepAwaitingConfirmation, nil)
	require.NoError(t, f.sessions.Set(ctx, second))

	// The replaced flow is gone
	rec := interaction.NewRecorder()
	assert.Equal(t, metrics.OutcomeExpired, f.dispatcher.Dispatch(ctx, componentEvent("confirm_role_create|userA", member("userA")), rec))

	rec = interaction.NewRecorder()
	assert.Equal(t, metrics.OutcomeHandled, f.dispatcher.Dispatch(ctx, componentEvent("confirm_assign_role|userA", member("userA")), rec))
	require.Equal(t, 1, role.handled)
	require.NotNil(t, role.lastReq.Session)
	assert.Equal(t, session.KindBulkAssign, role.lastReq.Session.Kind)
	assert.Equal(t, "confirm_assign_role", role.lastReq.Key.Family)
}

func TestComponent_SessionStoreErrorFailsClosed(t *testing.T) {
	ctx := context.Background()
	role := roleCommand()
	st := store.NewMockStore()
	sessions := session.NewPersistentStore(st, 0)
	registry := command.NewRegistry(nil)
	require.NoError(t, registry.Register(role))
	d := New(Config{
		Registry: registry,
		Resolver: policy.NewResolver(policy.ResolverConfig{Settings: st}),
		Sessions: sessions,
	})

	sess, _ := session.New("userA", session.KindRoleCreate, session.StepAwaitingConfirmation, nil)
	require.NoError(t, sessions.Set(ctx, sess))
	st.SetErr(errors.New("connection refused"))

	// Commands fail open
	rec := interaction.NewRecorder()
	assert.Equal(t, metrics.OutcomeHandled, d.Dispatch(ctx, commandEvent("role", member("userA")), rec))

	// Session-backed components fail closed
	rec = interaction.NewRecorder()
	assert.Equal(t, metrics.OutcomeExpired, d.Dispatch(ctx, componentEvent("confirm_role_create|userA", member("userA")), rec))
	assert.Contains(t, rec.LastUpdate().Content, "Session expired")
	assert.Equal(t, 0, role.handled)
}

func TestComponent_PublicFamily(t *testing.T) {
	board := &fakeCommand{
		spec:     command.Spec{Name: "dangeru"},
		families: []command.Family{{Name: "dangeru", Ownership: command.Public}},
	}
	f := newFixture(t, policy.Defaults{}, policy.OnStoreErrorAllow, board)

	for _, id := range []string{"dangeru_open", "dangeru_page_2"} {
		rec := interaction.NewRecorder()
		assert.Equal(t, metrics.OutcomeHandled, f.dispatcher.Dispatch(context.Background(), componentEvent(id, member("anyone")), rec))
	}
	assert.Equal(t, 2, board.handled)
	assert.Equal(t, "page_2", board.lastReq.Key.Action())
}

func TestComponent_SessionScopedFamily(t *testing.T) {
	ctx := context.Background()
	custom := &fakeCommand{
		spec: command.Spec{Name: "custom"},
		families: []command.Family{{
			Name:        "custom",
			Ownership:   command.SessionScoped,
			Flow:        session.KindRoleOverwrite,
			ExpiredHint: "/custom role",
		}},
	}
	f := newFixture(t, policy.Defaults{}, policy.OnStoreErrorAllow, custom)

	rec := interaction.NewRecorder()
	assert.Equal(t, metrics.OutcomeExpired, f.dispatcher.Dispatch(ctx, componentEvent("custom_confirm_overwrite", member("u1")), rec))
	assert.Equal(t, "❌ Session expired. Please run `/custom role` again.", rec.LastReply().Content)
	assert.True(t, rec.LastReply().Ephemeral)

	// A session of another kind does not count
	other, _ := session.New("u1", session.KindBulkAssign, session.StepAwaitingConfirmation, nil)
	require.NoError(t, f.sessions.Set(ctx, other))
	rec = interaction.NewRecorder()
	assert.Equal(t, metrics.OutcomeExpired, f.dispatcher.Dispatch(ctx, componentEvent("custom_confirm_overwrite", member("u1")), rec))

	mine, _ := session.New("u1", session.KindRoleOverwrite, session.StepAwaitingConfirmation, nil)
	require.NoError(t, f.sessions.Set(ctx, mine))
	rec = interaction.NewRecorder()
	assert.Equal(t, metrics.OutcomeHandled, f.dispatcher.Dispatch(ctx, componentEvent("custom_confirm_overwrite", member("u1")), rec))
	assert.Equal(t, 1, custom.handled)
}

func TestComponent_PermissionGatedFamily(t *testing.T) {
	ctx := context.Background()
	audit := &fakeCommand{
		spec: command.Spec{Name: "audit"},
		families: []command.Family{{
			Name:               "audit",
			Ownership:          command.SessionScoped,
			Flow:               session.KindAuditSession,
			SessionFree:        []string{"home"},
			RequiredPermission: policy.ManageRoles,
			PermissionMessage:  "🚫 You do not have permission to use the auditor.",
			ExpiredHint:        "/audit",
		}},
	}
	f := newFixture(t, policy.Defaults{}, policy.OnStoreErrorAllow, audit)

	rec := interaction.NewRecorder()
	assert.Equal(t, metrics.OutcomeDenied, f.dispatcher.Dispatch(ctx, componentEvent("audit_home", member("plain")), rec))
	assert.Equal(t, "🚫 You do not have permission to use the auditor.", rec.LastReply().Content)

	rec = interaction.NewRecorder()
	assert.Equal(t, metrics.OutcomeHandled, f.dispatcher.Dispatch(ctx, componentEvent("audit_home", member("mod", policy.ManageRoles)), rec))
	assert.Nil(t, audit.lastReq.Session)

	rec = interaction.NewRecorder()
	assert.Equal(t, metrics.OutcomeExpired, f.dispatcher.Dispatch(ctx, componentEvent("audit_confirm_delete", member("mod", policy.ManageRoles)), rec))
	assert.Equal(t, "❌ Session expired. Please run `/audit` again.", rec.LastReply().Content)

	// Administrators hold every permission
	rec = interaction.NewRecorder()
	assert.Equal(t, metrics.OutcomeHandled, f.dispatcher.Dispatch(ctx, componentEvent("audit_home", member("admin", policy.Administrator)), rec))
}

func TestComponent_ManagerRoleBypassesFamilyGate(t *testing.T) {
	ctx := context.Background()
	audit := &fakeCommand{
		spec: command.Spec{Name: "audit"},
		families: []command.Family{{
			Name:               "audit",
			Ownership:          command.SessionScoped,
			Flow:               session.KindAuditSession,
			SessionFree:        []string{"home"},
			RequiredPermission: policy.ManageRoles,
		}},
	}
	defaults := policy.Defaults{"audit": {Enabled: true, MinPermission: policy.Administrator}}
	f := newFixture(t, defaults, policy.OnStoreErrorAllow, audit)
	require.NoError(t, f.store.SetBypassRole(ctx, "ws-1", "role-mgr"))

	manager := member("mgr")
	manager.RoleIDs = []string{"role-mgr"}

	rec := interaction.NewRecorder()
	assert.Equal(t, metrics.OutcomeHandled, f.dispatcher.Dispatch(ctx, commandEvent("audit", manager), rec))

	rec = interaction.NewRecorder()
	assert.Equal(t, metrics.OutcomeHandled, f.dispatcher.Dispatch(ctx, componentEvent("audit_home", manager), rec))
	assert.Equal(t, 1, audit.handled)

	// Unreadable settings leave only the plain permission check
	f.store.SetErr(errors.New("db down"))
	rec = interaction.NewRecorder()
	assert.Equal(t, metrics.OutcomeDenied, f.dispatcher.Dispatch(ctx, componentEvent("audit_home", manager), rec))
}

func TestComponent_OwnerCheckedFamilies(t *testing.T) {
	help := &fakeCommand{
		spec:     command.Spec{Name: "help"},
		families: []command.Family{{Name: "help_nav"}},
	}
	role := roleCommand()
	f := newFixture(t, policy.Defaults{}, policy.OnStoreErrorAllow, help, role)

	ids := []string{"help_nav|owner|2", "confirm_role_create|owner", "confirm_assign_role|owner", "cancel|owner"}
	for _, id := range ids {
		t.Run(strings.Split(id, "|")[0], func(t *testing.T) {
			rec := interaction.NewRecorder()
			outcome := f.dispatcher.Dispatch(context.Background(), componentEvent(id, member("intruder")), rec)
			assert.Equal(t, metrics.OutcomeNotOwner, outcome)
			assert.Equal(t, "This isn't your interaction.", rec.LastReply().Content)
		})
	}
	assert.Equal(t, 0, help.handled+role.handled)

	rec := interaction.NewRecorder()
	assert.Equal(t, metrics.OutcomeHandled, f.dispatcher.Dispatch(context.Background(), componentEvent("help_nav|owner|2", member("owner")), rec))
	assert.Equal(t, "2", help.lastReq.Key.Arg(0))
}

func TestComponent_UnknownAndMalformed(t *testing.T) {
	f := newFixture(t, policy.Defaults{}, policy.OnStoreErrorAllow)

	for _, id := range []string{"ghost_home", "", strings.Repeat("x", 101)} {
		rec := interaction.NewRecorder()
		assert.Equal(t, metrics.OutcomeUnknown, f.dispatcher.Dispatch(context.Background(), componentEvent(id, member("u")), rec))
		assert.True(t, rec.LastReply().Ephemeral)
	}
}

func TestComponent_HandlerFault(t *testing.T) {
	board := &fakeCommand{
		spec:      command.Spec{Name: "dangeru"},
		families:  []command.Family{{Name: "dangeru", Ownership: command.Public}},
		panicWith: "nil pointer",
	}
	f := newFixture(t, policy.Defaults{}, policy.OnStoreErrorAllow, board)

	rec := interaction.NewRecorder()
	assert.Equal(t, metrics.OutcomeFault, f.dispatcher.Dispatch(context.Background(), componentEvent("dangeru_open", member("u")), rec))
	assert.Equal(t, "Action failed.", rec.LastReply().Content)
}
