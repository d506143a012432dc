// ABOUTME: Matrix frontend: syncs rooms and feeds prefixed messages into the dispatcher
// ABOUTME: Maps room power levels onto capability sets and answers with notices

package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/stingray-gateway/internal/cache"
	"github.com/2389/stingray-gateway/internal/interaction"
	"github.com/2389/stingray-gateway/internal/policy"
	"github.com/2389/stingray-gateway/internal/supervisor"
)

// FrontendName tags events produced here.
const FrontendName = "matrix"

// Power levels with a meaning of their own.
const (
	PowerAdmin     = 100
	PowerModerator = 50
)

const (
	seenTTL        = 10 * time.Minute
	seenMax        = 10000
	networkTimeout = 10 * time.Second
	handlerTimeout = 5 * time.Minute
)

var (
	moderatorPermissions = policy.NewPermissionSet(
		policy.KickMembers, policy.BanMembers, policy.ManageMessages, policy.ManageRoles,
		policy.ManageNicknames, policy.ManageThreads, policy.ModerateMembers,
	)
	memberPermissions = policy.NewPermissionSet(
		policy.ViewChannel, policy.SendMessages, policy.ReadMessageHistory, policy.UseApplicationCommands,
	)
)

// PermissionsForLevel maps a room power level onto capabilities. The
// second result reports whether the level counts as owning the room.
func PermissionsForLevel(level int) (policy.PermissionSet, bool) {
	switch {
	case level >= PowerAdmin:
		return policy.NewPermissionSet(policy.Administrator), true
	case level >= PowerModerator:
		return moderatorPermissions | memberPermissions, false
	}
	return memberPermissions, false
}

// Handler processes one event.
type Handler interface {
	Handle(ctx context.Context, ev *interaction.Event, respond interaction.Responder)
}

// Room is the slice of the homeserver API the frontend needs.
type Room interface {
	Send(ctx context.Context, roomID id.RoomID, content *event.MessageEventContent) (id.EventID, error)
	PowerLevel(ctx context.Context, roomID id.RoomID, userID id.UserID) (int, error)
}

type clientRoom struct {
	client *mautrix.Client
}

func (c clientRoom) Send(ctx context.Context, roomID id.RoomID, content *event.MessageEventContent) (id.EventID, error) {
	resp, err := c.client.SendMessageEvent(ctx, roomID, event.EventMessage, content)
	if err != nil {
		return "", err
	}
	return resp.EventID, nil
}

func (c clientRoom) PowerLevel(ctx context.Context, roomID id.RoomID, userID id.UserID) (int, error) {
	var levels event.PowerLevelsEventContent
	if err := c.client.StateEvent(ctx, roomID, event.StatePowerLevels, "", &levels); err != nil {
		return 0, err
	}
	return levels.GetUserLevel(userID), nil
}

// Config configures the frontend.
type Config struct {
	Homeserver    string
	UserID        string
	AccessToken   string
	CommandPrefix string
	AllowedRooms  []string

	Handler    Handler
	Supervisor *supervisor.Supervisor
	Logger     *slog.Logger
}

// Frontend connects Matrix rooms to the dispatcher.
type Frontend struct {
	client  *mautrix.Client
	room    Room
	self    id.UserID
	prefix  string
	allowed []string
	handler Handler
	sup     *supervisor.Supervisor
	seen    *cache.TTL[struct{}]
	logger  *slog.Logger

	// ctx is the parent context for event goroutines
	ctx context.Context
}

// New creates a frontend backed by a homeserver client.
func New(cfg Config) (*Frontend, error) {
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	f := newFrontend(cfg, clientRoom{client: client})
	f.client = client
	return f, nil
}

func newFrontend(cfg Config, room Room) *Frontend {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sup := cfg.Supervisor
	if sup == nil {
		sup = supervisor.New(logger)
	}
	prefix := cfg.CommandPrefix
	if prefix == "" {
		prefix = "!"
	}
	return &Frontend{
		room:    room,
		self:    id.UserID(cfg.UserID),
		prefix:  prefix,
		allowed: cfg.AllowedRooms,
		handler: cfg.Handler,
		sup:     sup,
		seen:    cache.New[struct{}](seenTTL, seenMax),
		logger:  logger.With("component", "matrix"),
		ctx:     context.Background(),
	}
}

// Run syncs until ctx is cancelled.
func (f *Frontend) Run(ctx context.Context) error {
	if f.client == nil {
		return errors.New("matrix frontend has no client")
	}
	f.logger.Info("starting matrix frontend", "user_id", f.self, "prefix", f.prefix)

	var cancel context.CancelFunc
	f.ctx, cancel = context.WithCancel(ctx)
	defer cancel()

	syncer, ok := f.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", f.client.Syncer)
	}
	syncer.OnEventType(event.EventMessage, f.handleMessageEvent)

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- f.client.SyncWithContext(f.ctx)
	}()

	f.logger.Info("=== MATRIX FRONTEND RUNNING ===")

	select {
	case <-ctx.Done():
		f.logger.Info("shutting down matrix frontend")
		f.client.StopSync()
		return nil
	case err := <-syncErr:
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

// Close releases the dedupe cache.
func (f *Frontend) Close() {
	f.seen.Close()
}

func (f *Frontend) handleMessageEvent(ctx context.Context, evt *event.Event) {
	if evt.Sender == f.self {
		return
	}
	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText {
		return
	}
	if !f.isRoomAllowed(evt.RoomID.String()) {
		return
	}
	if f.seen.CheckAndMark(evt.ID.String(), struct{}{}) {
		f.logger.Debug("dropping duplicate event", "event_id", evt.ID)
		return
	}

	roomID, sender, eventID, body := evt.RoomID, evt.Sender, evt.ID, content.Body
	f.sup.Go("matrix:"+eventID.String(), func() {
		f.process(f.ctx, roomID, sender, eventID, body)
	})
}

func (f *Frontend) isRoomAllowed(roomID string) bool {
	return len(f.allowed) == 0 || slices.Contains(f.allowed, roomID)
}

// process parses one message and hands it to the handler.
func (f *Frontend) process(ctx context.Context, roomID id.RoomID, sender id.UserID, eventID id.EventID, body string) {
	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	resp := newResponder(f.room, roomID, f.prefix, f.logger)

	ev, err := Parse(f.prefix, body)
	if err != nil {
		f.logger.Debug("unparseable command", "room", roomID, "error", err)
		_ = resp.Reply(ctx, interaction.Ephemeral("⚠️ "+err.Error()))
		return
	}
	if ev == nil {
		return
	}

	ev.ID = eventID.String()
	ev.Frontend = FrontendName
	ev.WorkspaceID = roomID.String()
	ev.ChannelID = roomID.String()
	ev.Member.ID = sender.String()
	ev.Member.Username = localpart(sender)

	levelCtx, levelCancel := context.WithTimeout(ctx, networkTimeout)
	level, err := f.room.PowerLevel(levelCtx, roomID, sender)
	levelCancel()
	if err != nil {
		f.logger.Warn("power level lookup failed", "room", roomID, "sender", sender, "error", err)
	}
	ev.Member.Permissions, ev.Member.IsOwner = PermissionsForLevel(level)

	f.logger.Info("received command",
		"room", roomID,
		"sender", sender,
		"kind", ev.Kind,
		"command", ev.CommandName,
		"custom_id", ev.CustomID,
	)
	f.handler.Handle(ctx, ev, resp)
}

func localpart(u id.UserID) string {
	s := strings.TrimPrefix(u.String(), "@")
	name, _, _ := strings.Cut(s, ":")
	return name
}
