// ABOUTME: Responder that answers events with room notices
// ABOUTME: Updates become edits of the last notice; rooms have no private replies

package matrix

import (
	"context"
	"log/slog"
	"sync"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/stingray-gateway/internal/interaction"
)

type responder struct {
	room   Room
	roomID id.RoomID
	prefix string
	logger *slog.Logger

	mu    sync.Mutex
	acked bool
	last  id.EventID
}

func newResponder(room Room, roomID id.RoomID, prefix string, logger *slog.Logger) *responder {
	return &responder{room: room, roomID: roomID, prefix: prefix, logger: logger}
}

func (r *responder) send(ctx context.Context, content *event.MessageEventContent) error {
	eventID, err := r.room.Send(ctx, r.roomID, content)
	if err != nil {
		r.logger.Error("failed to send notice", "room", r.roomID, "error", err)
		return err
	}
	r.mu.Lock()
	r.acked = true
	if r.last == "" || content.RelatesTo == nil {
		r.last = eventID
	}
	r.mu.Unlock()
	return nil
}

func (r *responder) Reply(ctx context.Context, msg interaction.Message) error {
	return r.send(ctx, notice(Markdown(r.prefix, msg)))
}

func (r *responder) Defer(ctx context.Context, ephemeral bool) error {
	r.mu.Lock()
	r.acked = true
	r.mu.Unlock()
	return nil
}

func (r *responder) Update(ctx context.Context, msg interaction.Message) error {
	r.mu.Lock()
	last := r.last
	r.mu.Unlock()

	content := notice(Markdown(r.prefix, msg))
	if last != "" {
		content.SetEdit(last)
	}
	return r.send(ctx, content)
}

// Suggest is never reached: chat lines carry no autocomplete.
func (r *responder) Suggest(ctx context.Context, choices []interaction.Choice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.acked {
		return interaction.ErrAlreadyResponded
	}
	r.acked = true
	return nil
}

func (r *responder) OpenModal(ctx context.Context, m interaction.Modal) error {
	if r.Acknowledged() {
		return interaction.ErrAlreadyResponded
	}
	return r.send(ctx, notice(ModalMarkdown(r.prefix, m)))
}

func (r *responder) Acknowledged() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acked
}

var _ interaction.Responder = (*responder)(nil)
