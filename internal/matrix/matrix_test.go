// ABOUTME: Tests for chat-line parsing, notice rendering and the room event path
// ABOUTME: Uses a fake room in place of the homeserver

package matrix

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/stingray-gateway/internal/interaction"
	"github.com/2389/stingray-gateway/internal/policy"
)

type fakeRoom struct {
	mu       sync.Mutex
	sent     []*event.MessageEventContent
	levels   map[id.UserID]int
	levelErr error
}

func (f *fakeRoom) Send(ctx context.Context, roomID id.RoomID, content *event.MessageEventContent) (id.EventID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, content)
	return id.EventID("$sent" + string(rune('0'+len(f.sent)))), nil
}

func (f *fakeRoom) PowerLevel(ctx context.Context, roomID id.RoomID, userID id.UserID) (int, error) {
	if f.levelErr != nil {
		return 0, f.levelErr
	}
	return f.levels[userID], nil
}

func (f *fakeRoom) notices() []*event.MessageEventContent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*event.MessageEventContent(nil), f.sent...)
}

type handlerFunc func(ctx context.Context, ev *interaction.Event, respond interaction.Responder)

func (h handlerFunc) Handle(ctx context.Context, ev *interaction.Event, respond interaction.Responder) {
	h(ctx, ev, respond)
}

func TestParse_Command(t *testing.T) {
	ev, err := Parse("!", `!role create name="Night Owls" hex=FF0055`)
	require.NoError(t, err)
	require.NotNil(t, ev)

	assert.Equal(t, interaction.KindCommand, ev.Kind)
	assert.Equal(t, "role", ev.CommandName)
	sub, opts := ev.Subcommand()
	assert.Equal(t, "create", sub)
	assert.Equal(t, "Night Owls", interaction.StringOption(opts, "name"))
	assert.Equal(t, "FF0055", interaction.StringOption(opts, "hex"))
}

func TestParse_Shapes(t *testing.T) {
	ev, err := Parse("!", "!ping")
	require.NoError(t, err)
	assert.Equal(t, "ping", ev.CommandName)
	assert.Empty(t, ev.Options)

	ev, err = Parse("!", "!help command=role")
	require.NoError(t, err)
	assert.Equal(t, "role", interaction.StringOption(ev.Options, "command"))

	ev, err = Parse("!", "!a b c x=1")
	require.NoError(t, err)
	sub, opts := ev.Subcommand()
	assert.Equal(t, "b c", sub)
	assert.Equal(t, "1", interaction.StringOption(opts, "x"))

	ev, err = Parse("!", "!press dashboard_select|u1 ping role")
	require.NoError(t, err)
	assert.Equal(t, interaction.KindComponent, ev.Kind)
	assert.Equal(t, "dashboard_select|u1", ev.CustomID)
	assert.Equal(t, []string{"ping", "role"}, ev.Values)

	ev, err = Parse("!", `!submit dangeru_submit dangeru_msg="hello there"`)
	require.NoError(t, err)
	assert.True(t, ev.IsModal)
	assert.Equal(t, "hello there", ev.Fields["dangeru_msg"])
}

func TestParse_NotAddressed(t *testing.T) {
	for _, body := range []string{"hello", "", "!", "  !  "} {
		ev, err := Parse("!", body)
		assert.NoError(t, err, body)
		assert.Nil(t, ev, body)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []string{
		"!press",
		"!submit",
		"!submit form loose",
		`!role create name="open`,
		"!role create name=x extra",
		"!a b c d",
		"!role =x",
	}
	for _, body := range tests {
		t.Run(body, func(t *testing.T) {
			_, err := Parse("!", body)
			assert.ErrorIs(t, err, ErrUsage)
		})
	}
}

func TestPermissionsForLevel(t *testing.T) {
	perms, owner := PermissionsForLevel(100)
	assert.True(t, owner)
	assert.True(t, perms.IsAdministrator())

	perms, owner = PermissionsForLevel(50)
	assert.False(t, owner)
	assert.True(t, perms.Has(policy.ManageRoles))
	assert.False(t, perms.Has(policy.ManageGuild))

	perms, _ = PermissionsForLevel(0)
	assert.False(t, perms.Has(policy.ManageRoles))
	assert.True(t, perms.Has(policy.SendMessages))
}

func TestMarkdown(t *testing.T) {
	msg := interaction.Message{
		Content: "Confirm?",
		Embeds: []interaction.Embed{{
			Title:  "Role",
			Fields: []interaction.EmbedField{{Name: "Name", Value: "Foo"}},
			Footer: &interaction.EmbedFooter{Text: "Page 1 of 2"},
		}},
		Components: []interaction.ActionRow{interaction.Row(
			interaction.Button(interaction.ButtonSuccess, "Confirm", "confirm_role_create|u1"),
			interaction.Component{Type: interaction.ComponentButton, Label: "Off", CustomID: "x", Disabled: true},
			interaction.Select("dashboard_select|u1", "Toggle", 0, 2,
				interaction.SelectOption{Label: "Ping", Value: "ping"}),
		)},
	}

	text := Markdown("!", msg)
	assert.Contains(t, text, "Confirm?")
	assert.Contains(t, text, "**Role**")
	assert.Contains(t, text, "_Page 1 of 2_")
	assert.Contains(t, text, "`!press confirm_role_create|u1`")
	assert.Contains(t, text, "`!press dashboard_select|u1 <value>...` from `ping` (Ping)")
	assert.NotContains(t, text, "Off")

	content := notice(text)
	assert.Equal(t, event.MsgNotice, content.MsgType)
	assert.Equal(t, event.FormatHTML, content.Format)
	assert.Contains(t, content.FormattedBody, "<strong>Role</strong>")
}

func TestModalMarkdown(t *testing.T) {
	m := interaction.Modal{
		CustomID: "dangeru_submit",
		Title:    "New post",
		Components: []interaction.ActionRow{interaction.Row(
			interaction.TextInput("dangeru_msg", "Message", interaction.TextInputParagraph, true, 500),
		)},
	}
	assert.Contains(t, ModalMarkdown("!", m), "`!submit dangeru_submit dangeru_msg=\"Message\"`")
}

func messageEvent(eventID, sender, body string) *event.Event {
	return &event.Event{
		ID:     id.EventID(eventID),
		Sender: id.UserID(sender),
		RoomID: id.RoomID("!room:example.org"),
		Type:   event.EventMessage,
		Content: event.Content{Parsed: &event.MessageEventContent{
			MsgType: event.MsgText,
			Body:    body,
		}},
	}
}

func TestFrontend_DispatchesAndReplies(t *testing.T) {
	room := &fakeRoom{levels: map[id.UserID]int{"@alice:example.org": 100}}
	got := make(chan *interaction.Event, 4)
	f := newFrontend(Config{
		UserID: "@bot:example.org",
		Handler: handlerFunc(func(ctx context.Context, ev *interaction.Event, respond interaction.Responder) {
			assert.NoError(t, respond.Reply(ctx, interaction.Text("pong")))
			assert.NoError(t, respond.Update(ctx, interaction.Final("pong!")))
			got <- ev
		}),
	}, room)
	defer f.Close()

	evt := messageEvent("$1", "@alice:example.org", "!ping")
	f.handleMessageEvent(context.Background(), evt)
	f.handleMessageEvent(context.Background(), evt)                                             // duplicate delivery
	f.handleMessageEvent(context.Background(), messageEvent("$2", "@bot:example.org", "!ping")) // our own

	var ev *interaction.Event
	select {
	case ev = <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}
	assert.Equal(t, FrontendName, ev.Frontend)
	assert.Equal(t, "!room:example.org", ev.WorkspaceID)
	assert.Equal(t, "alice", ev.Member.Username)
	assert.True(t, ev.Member.IsOwner)

	select {
	case <-got:
		t.Fatal("duplicate or self-sent event was dispatched")
	case <-time.After(50 * time.Millisecond):
	}

	sent := room.notices()
	require.Len(t, sent, 2)
	assert.Equal(t, "pong", sent[0].Body)
	require.NotNil(t, sent[1].RelatesTo, "update edits the first notice")
	assert.Equal(t, id.EventID("$sent1"), sent[1].RelatesTo.EventID)
}

func TestFrontend_RejectsBadLinesAndRooms(t *testing.T) {
	room := &fakeRoom{levelErr: errors.New("forbidden")}
	called := false
	f := newFrontend(Config{
		UserID:       "@bot:example.org",
		AllowedRooms: []string{"!room:example.org"},
		Handler: handlerFunc(func(ctx context.Context, ev *interaction.Event, respond interaction.Responder) {
			called = true
			assert.False(t, ev.Member.IsOwner, "lookup failure falls back to member")
		}),
	}, room)
	defer f.Close()

	ctx := context.Background()
	f.process(ctx, "!room:example.org", "@alice:example.org", "$1", `!role create name="oops`)
	require.Len(t, room.notices(), 1)
	assert.Contains(t, room.notices()[0].Body, "unterminated quote")
	assert.False(t, called)

	f.process(ctx, "!room:example.org", "@alice:example.org", "$2", "!ping")
	assert.True(t, called)

	assert.False(t, f.isRoomAllowed("!other:example.org"))
}

func TestResponder_ModalAfterAck(t *testing.T) {
	room := &fakeRoom{}
	r := newResponder(room, "!room:example.org", "!", nil)
	ctx := context.Background()

	require.NoError(t, r.OpenModal(ctx, interaction.Modal{CustomID: "f", Title: "Form"}))
	assert.ErrorIs(t, r.OpenModal(ctx, interaction.Modal{}), interaction.ErrAlreadyResponded)
	assert.ErrorIs(t, r.Suggest(ctx, nil), interaction.ErrAlreadyResponded)
}
