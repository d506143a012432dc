// ABOUTME: Handler capabilities the dispatcher can invoke, and the per-event Request
// ABOUTME: A handler implements Command and optionally Autocompleter and Interactive

package command

import (
	"context"
	"log/slog"

	"github.com/2389/stingray-gateway/internal/interaction"
	"github.com/2389/stingray-gateway/internal/platform"
	"github.com/2389/stingray-gateway/internal/policy"
	"github.com/2389/stingray-gateway/internal/session"
)

// OptionSpec declares one argument of a command for platform registration.
type OptionSpec struct {
	Name         string               `json:"name"`
	Description  string               `json:"description"`
	Type         int                  `json:"type"`
	Required     bool                 `json:"required,omitempty"`
	Autocomplete bool                 `json:"autocomplete,omitempty"`
	Choices      []interaction.Choice `json:"choices,omitempty"`
	Options      []OptionSpec         `json:"options,omitempty"`
}

// Spec describes a command.
type Spec struct {
	Name        string
	Description string
	Options     []OptionSpec

	// DefaultPermission is advertised to the platform so the command is
	// hidden from members who lack it. Enforcement is the policy layer's job.
	DefaultPermission policy.Permission

	// Deferred commands are acknowledged before Execute runs.
	Deferred bool
	// Ephemeral makes the deferred acknowledgment visible to the invoker only.
	Ephemeral bool

	// Hidden commands are left out of help listings.
	Hidden bool
}

// Command is the invocation capability every handler has.
type Command interface {
	Spec() Spec
	Execute(ctx context.Context, req *Request) error
}

// Autocompleter suggests values while the user is typing an option. It runs
// under a short deadline and is never retried.
type Autocompleter interface {
	Autocomplete(ctx context.Context, req *Request) ([]interaction.Choice, error)
}

// Interactive handles clicks on components the command rendered.
type Interactive interface {
	Families() []Family
	HandleComponent(ctx context.Context, req *Request) error
}

// Request is everything a handler gets for one event.
type Request struct {
	Event    *interaction.Event
	Respond  interaction.Responder
	Key      interaction.RoutingKey // component events only
	Family   Family                 // component events only
	Session  *session.Session       // set when the family is session-backed and a session exists
	Sessions session.Store
	Guilds   platform.Guilds // nil when the event's frontend has no workspace API
	Logger   *slog.Logger
}

// UserID is the invoker's id.
func (r *Request) UserID() string {
	return r.Event.Member.ID
}

// Reply posts a message.
func (r *Request) Reply(ctx context.Context, msg interaction.Message) error {
	return r.Respond.Reply(ctx, msg)
}

// Update edits the message the event came from.
func (r *Request) Update(ctx context.Context, msg interaction.Message) error {
	return r.Respond.Update(ctx, msg)
}

// BeginFlow stores a session for the invoker, replacing any flow they
// already had open.
func (r *Request) BeginFlow(ctx context.Context, kind session.Kind, step string, payload any) error {
	sess, err := session.New(r.UserID(), kind, step, payload)
	if err != nil {
		return err
	}
	if err := r.Sessions.Set(ctx, sess); err != nil {
		return err
	}
	r.Session = sess
	return nil
}

// Advance moves the invoker's current flow to step with a new payload.
func (r *Request) Advance(ctx context.Context, step string, payload any) error {
	if r.Session == nil {
		return session.ErrNotFound
	}
	return r.BeginFlow(ctx, r.Session.Kind, step, payload)
}

// EndFlow deletes the invoker's session.
func (r *Request) EndFlow(ctx context.Context) error {
	r.Session = nil
	return r.Sessions.Delete(ctx, r.UserID())
}
