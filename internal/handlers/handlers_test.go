// ABOUTME: Shared harness for handler tests plus tests of the small helpers
// ABOUTME: Drives handlers directly with a mock store, in-memory sessions and a fake workspace

package handlers

import (
	"context"
	"log/slog"
	"testing"

	"github.com/2389/stingray-gateway/internal/command"
	"github.com/2389/stingray-gateway/internal/interaction"
	"github.com/2389/stingray-gateway/internal/platform"
	"github.com/2389/stingray-gateway/internal/policy"
	"github.com/2389/stingray-gateway/internal/session"
	"github.com/2389/stingray-gateway/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWorkspace = "ws-1"

type harness struct {
	store    *store.MockStore
	sessions *session.MemoryStore
	guilds   *platform.Fake
	registry *command.Registry
	resolver *policy.Resolver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := store.NewMockStore()
	registry := command.NewRegistry(nil)
	resolver := policy.NewResolver(policy.ResolverConfig{Settings: st})
	require.NoError(t, RegisterAll(Deps{
		Store:        st,
		Resolver:     resolver,
		Registry:     registry,
		TripcodeSalt: "pepper",
	}))
	return &harness{
		store:    st,
		sessions: session.NewMemoryStore(0),
		guilds:   platform.NewFake("owner"),
		registry: registry,
		resolver: resolver,
	}
}

func sub(name string, opts ...interaction.Option) interaction.Option {
	return interaction.Option{Name: name, Type: interaction.OptionSubcommand, Options: opts}
}

func opt(name string, value any) interaction.Option {
	return interaction.Option{Name: name, Type: interaction.OptionString, Value: value}
}

func (h *harness) request(ev *interaction.Event) (*command.Request, *interaction.Recorder) {
	rec := interaction.NewRecorder()
	return &command.Request{
		Event:    ev,
		Respond:  rec,
		Sessions: h.sessions,
		Guilds:   h.guilds,
		Logger:   slog.Default(),
	}, rec
}

// execute runs a slash command as userID.
func (h *harness) execute(t *testing.T, userID, name string, opts ...interaction.Option) (*interaction.Recorder, error) {
	t.Helper()
	cmd, ok := h.registry.Command(name)
	require.True(t, ok, "command %s registered", name)

	req, rec := h.request(&interaction.Event{
		ID:          "ev-cmd",
		Kind:        interaction.KindCommand,
		WorkspaceID: testWorkspace,
		ChannelID:   "chan-1",
		Member:      interaction.Member{ID: userID, Username: userID},
		CommandName: name,
		Options:     opts,
	})
	return rec, cmd.Execute(context.Background(), req)
}

// press runs a component event the way the dispatcher hands it over: key
// parsed, family resolved and the invoker's matching session attached.
func (h *harness) press(t *testing.T, userID, customID string, values ...string) (*interaction.Recorder, error) {
	t.Helper()
	return h.submit(t, userID, customID, values, nil)
}

func (h *harness) submit(t *testing.T, userID, customID string, values []string, fields map[string]string) (*interaction.Recorder, error) {
	t.Helper()
	key, err := interaction.ParseRoutingKey(customID)
	require.NoError(t, err)
	family, handler, ok := h.registry.Family(key.Family)
	require.True(t, ok, "family %s registered", key.Family)

	req, rec := h.request(&interaction.Event{
		ID:          "ev-cmp",
		Kind:        interaction.KindComponent,
		WorkspaceID: testWorkspace,
		ChannelID:   "chan-1",
		Member:      interaction.Member{ID: userID, Username: userID},
		CustomID:    customID,
		Values:      values,
		Fields:      fields,
		IsModal:     fields != nil,
	})
	req.Key = key
	req.Family = family
	if family.Flow != "" {
		if sess, err := h.sessions.Get(context.Background(), userID); err == nil && sess.Kind == family.Flow {
			req.Session = sess
		}
	}
	return rec, handler.HandleComponent(context.Background(), req)
}

func (h *harness) session(t *testing.T, userID string) *session.Session {
	t.Helper()
	sess, err := h.sessions.Get(context.Background(), userID)
	if err != nil {
		return nil
	}
	return sess
}

func TestRegisterAll(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t,
		[]string{"audit", "config", "custom", "dangeru", "dashboard", "help", "ping", "role"},
		h.registry.Names())

	for _, family := range []string{"config_page", "dashboard_select", "confirm_role_create", "confirm_assign_role", "custom", "audit", "help_nav", "dangeru"} {
		_, _, ok := h.registry.Family(family)
		assert.True(t, ok, family)
	}

	err := RegisterAll(Deps{Store: h.store, Resolver: h.resolver, Registry: h.registry})
	assert.ErrorIs(t, err, command.ErrDuplicateCommand)
}

func TestParseHex(t *testing.T) {
	tests := []struct {
		in    string
		want  int
		valid bool
	}{
		{"FF0055", 0xFF0055, true},
		{"#ff0055", 0xFF0055, true},
		{" 00ff00 ", 0x00FF00, true},
		{"FF005", 0, false},
		{"GG0055", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseHex(tt.in)
		assert.Equal(t, tt.valid, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	assert.Equal(t, "#FF0055", formatHex(0xFF0055))
}

func TestTally(t *testing.T) {
	var tally Tally
	tally.Run([]string{"a", "b", "c"},
		func(s string) string { return "<" + s + ">" },
		func(s string) error {
			if s == "b" {
				return assert.AnError
			}
			return nil
		})

	assert.Equal(t, 2, tally.Applied)
	assert.Equal(t, "**Applied:** 2\n**Failed:** 1\n<b>", tally.Summary())
	assert.Equal(t, colorOrange, tally.Color())

	assert.Equal(t, "**Applied:** 0\n**Failed:** 0", Tally{}.Summary())
	assert.Equal(t, colorGreen, Tally{}.Color())
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip("short", 10))
	assert.Equal(t, "abcdefg...", clip("abcdefghijklmnop", 10))
}

func TestGuilds_MissingWorkspaceAPI(t *testing.T) {
	h := newHarness(t)
	req, rec := h.request(&interaction.Event{Kind: interaction.KindCommand, WorkspaceID: testWorkspace, Member: interaction.Member{ID: "u"}})
	req.Guilds = nil

	_, ok := guilds(context.Background(), req)
	assert.False(t, ok)
	assert.True(t, rec.LastReply().Ephemeral)
	assert.Contains(t, rec.LastReply().Content, "needs a server")
}
