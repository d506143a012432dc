// ABOUTME: Responder that answers inline while the HTTP request is open and over webhooks after
// ABOUTME: A response not produced within the defer window becomes a deferred acknowledgment

package discord

import (
	"context"
	"errors"
	"sync"

	"github.com/2389/stingray-gateway/internal/interaction"
)

// Webhooks edits and extends an interaction's responses after the initial reply.
type Webhooks interface {
	EditOriginal(ctx context.Context, token string, msg interaction.Message) error
	CreateFollowup(ctx context.Context, token string, msg interaction.Message) error
	DeleteOriginal(ctx context.Context, token string) error
}

// ErrNoWebhooks is returned for responses that need the REST client when
// none is configured.
var ErrNoWebhooks = errors.New("no bot token configured for webhook responses")

type noWebhooks struct{}

func (noWebhooks) EditOriginal(context.Context, string, interaction.Message) error {
	return ErrNoWebhooks
}

func (noWebhooks) CreateFollowup(context.Context, string, interaction.Message) error {
	return ErrNoWebhooks
}

func (noWebhooks) DeleteOriginal(context.Context, string) error {
	return ErrNoWebhooks
}

type responseState int

const (
	statePending responseState = iota
	stateAnswered
	stateDeferred
)

type responder struct {
	mu          sync.Mutex
	state       responseState
	placeholder bool // a deferred message is waiting for its content
	private     bool // the placeholder is only visible to the invoker

	initial chan callback
	written chan struct{}

	hooks   Webhooks
	token   string
	kind    interaction.Kind
	isModal bool
}

func newResponder(ev *interaction.Event, hooks Webhooks) *responder {
	return &responder{
		initial: make(chan callback, 1),
		written: make(chan struct{}),
		hooks:   hooks,
		token:   ev.Token,
		kind:    ev.Kind,
		isModal: ev.IsModal,
	}
}

// answerLocked hands the initial callback to the HTTP handler.
func (r *responder) answerLocked(state responseState, cb callback) {
	r.state = state
	r.initial <- cb
}

// autoDefer returns the callback to write when the defer window closes.
// If the handler already answered, that answer is returned instead.
func (r *responder) autoDefer() callback {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == statePending {
		cb := deferredCallback(r.kind, r.isModal, false)
		r.placeholder = cb.Type == callbackDeferredChannelMessage
		r.private = false
		if r.kind == interaction.KindAutocomplete {
			r.state = stateAnswered
		} else {
			r.state = stateDeferred
		}
		return cb
	}
	return <-r.initial
}

// afterInitial blocks until the HTTP reply has gone out, so webhook calls
// never race the callback they depend on.
func (r *responder) afterInitial(ctx context.Context) error {
	select {
	case <-r.written:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *responder) Reply(ctx context.Context, msg interaction.Message) error {
	r.mu.Lock()
	if r.state == statePending {
		r.answerLocked(stateAnswered, callback{Type: callbackChannelMessage, Data: messageBody(msg)})
		r.mu.Unlock()
		return nil
	}
	fill, private := r.placeholder, r.private
	r.placeholder = false
	r.mu.Unlock()

	if err := r.afterInitial(ctx); err != nil {
		return err
	}
	if fill {
		return r.fill(ctx, msg, private)
	}
	return r.hooks.CreateFollowup(ctx, r.token, msg)
}

// fill puts msg into the deferred placeholder. An edit keeps the
// placeholder's visibility, so an ephemeral message bound for a public
// placeholder goes out as an ephemeral follow-up and the placeholder is
// removed.
func (r *responder) fill(ctx context.Context, msg interaction.Message, private bool) error {
	if !msg.Ephemeral || private {
		return r.hooks.EditOriginal(ctx, r.token, msg)
	}
	if err := r.hooks.CreateFollowup(ctx, r.token, msg); err != nil {
		return err
	}
	return r.hooks.DeleteOriginal(ctx, r.token)
}

func (r *responder) Defer(ctx context.Context, ephemeral bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != statePending {
		return nil
	}
	cb := deferredCallback(r.kind, r.isModal, ephemeral)
	r.placeholder = cb.Type == callbackDeferredChannelMessage
	r.private = r.placeholder && ephemeral
	r.answerLocked(stateDeferred, cb)
	return nil
}

func (r *responder) Update(ctx context.Context, msg interaction.Message) error {
	r.mu.Lock()
	if r.state == statePending {
		cb := callback{Type: callbackUpdateMessage, Data: messageBody(msg)}
		if r.kind == interaction.KindCommand {
			cb.Type = callbackChannelMessage
		}
		r.answerLocked(stateAnswered, cb)
		r.mu.Unlock()
		return nil
	}
	fill, private := r.placeholder, r.private
	r.placeholder = false
	r.mu.Unlock()

	if err := r.afterInitial(ctx); err != nil {
		return err
	}
	if fill {
		return r.fill(ctx, msg, private)
	}
	return r.hooks.EditOriginal(ctx, r.token, msg)
}

func (r *responder) Suggest(ctx context.Context, choices []interaction.Choice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != statePending {
		return interaction.ErrAlreadyResponded
	}
	if choices == nil {
		choices = []interaction.Choice{}
	}
	r.answerLocked(stateAnswered, callback{Type: callbackAutocompleteResult, Data: map[string]any{"choices": choices}})
	return nil
}

func (r *responder) OpenModal(ctx context.Context, m interaction.Modal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != statePending {
		return interaction.ErrAlreadyResponded
	}
	r.answerLocked(stateAnswered, callback{Type: callbackModal, Data: m})
	return nil
}

func (r *responder) Acknowledged() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state != statePending
}

var _ interaction.Responder = (*responder)(nil)
