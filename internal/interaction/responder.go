// ABOUTME: Responder: how handlers answer an event without knowing the transport
// ABOUTME: Includes Recorder, an in-memory Responder used by handler and dispatcher tests

package interaction

import (
	"context"
	"errors"
	"sync"
)

// ErrAlreadyResponded is returned when an initial-only response (a modal or
// autocomplete suggestions) is attempted after the event was acknowledged.
var ErrAlreadyResponded = errors.New("interaction already acknowledged")

// Responder answers one event.
//
// The first call acknowledges the event. Later calls become edits of the
// acknowledged message (Update) or new follow-up messages (Reply).
type Responder interface {
	// Reply posts a new message. The first Reply after a command Defer fills
	// in the deferred placeholder.
	Reply(ctx context.Context, msg Message) error
	// Defer acknowledges without content; a no-op once acknowledged.
	Defer(ctx context.Context, ephemeral bool) error
	// Update edits the message the event came from (for components) or the
	// original response (for commands).
	Update(ctx context.Context, msg Message) error
	// Suggest answers an autocomplete event.
	Suggest(ctx context.Context, choices []Choice) error
	// OpenModal answers with a popup form.
	OpenModal(ctx context.Context, m Modal) error
	// Acknowledged reports whether anything has been sent yet.
	Acknowledged() bool
}

// Recorder is a Responder that keeps every call in memory.
type Recorder struct {
	mu          sync.Mutex
	Replies     []Message
	Updates     []Message
	Suggestions [][]Choice
	Modals      []Modal
	Deferred    bool
	acked       bool

	// Err, when non-nil, is returned by every call.
	Err error
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Reply(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Replies = append(r.Replies, msg)
	r.acked = true
	return nil
}

func (r *Recorder) Defer(ctx context.Context, ephemeral bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if !r.acked {
		r.Deferred = true
		r.acked = true
	}
	return nil
}

func (r *Recorder) Update(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Updates = append(r.Updates, msg)
	r.acked = true
	return nil
}

func (r *Recorder) Suggest(ctx context.Context, choices []Choice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if r.acked {
		return ErrAlreadyResponded
	}
	r.Suggestions = append(r.Suggestions, choices)
	r.acked = true
	return nil
}

func (r *Recorder) OpenModal(ctx context.Context, m Modal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if r.acked {
		return ErrAlreadyResponded
	}
	r.Modals = append(r.Modals, m)
	r.acked = true
	return nil
}

func (r *Recorder) Acknowledged() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acked
}

// LastReply returns the most recent Reply, or a zero Message.
func (r *Recorder) LastReply() Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Replies) == 0 {
		return Message{}
	}
	return r.Replies[len(r.Replies)-1]
}

// LastUpdate returns the most recent Update, or a zero Message.
func (r *Recorder) LastUpdate() Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Updates) == 0 {
		return Message{}
	}
	return r.Updates[len(r.Updates)-1]
}

var _ Responder = (*Recorder)(nil)
