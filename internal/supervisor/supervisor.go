// ABOUTME: Failure supervisor: contains handler errors and panics to the event that raised them
// ABOUTME: Logs the fault, counts it, and tells the user something went wrong when possible

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/2389/stingray-gateway/internal/interaction"
	"github.com/2389/stingray-gateway/internal/metrics"
)

// Generic messages shown to the user after a fault.
const (
	CommandFailedMessage   = "Command execution error."
	ComponentFailedMessage = "Action failed."
)

// PanicError wraps a recovered panic value.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Task identifies what is being supervised, for logs and the user message.
type Task struct {
	Label       string // command or family name
	Kind        interaction.Kind
	UserID      string
	WorkspaceID string
}

func (t Task) message() string {
	if t.Kind == interaction.KindComponent {
		return ComponentFailedMessage
	}
	return CommandFailedMessage
}

// Supervisor runs handlers and contains their failures.
type Supervisor struct {
	logger *slog.Logger
}

// New creates a Supervisor.
func New(logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{logger: logger.With("component", "supervisor")}
}

// Guard runs fn. A returned error or a panic is logged, counted and answered
// with a generic message: an ephemeral reply when the user has seen nothing
// yet, otherwise an edit of what they saw. The fault is returned to the
// caller and never propagates further.
func (s *Supervisor) Guard(ctx context.Context, task Task, respond interaction.Responder, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
		if err != nil {
			s.report(ctx, task, respond, err)
		}
	}()
	return fn(ctx)
}

func (s *Supervisor) report(ctx context.Context, task Task, respond interaction.Responder, err error) {
	kind := "error"
	attrs := []any{
		"task", task.Label,
		"kind", task.Kind,
		"user_id", task.UserID,
		"workspace_id", task.WorkspaceID,
		"error", err,
	}
	var pe *PanicError
	if errors.As(err, &pe) {
		kind = "panic"
		attrs = append(attrs, "stack", string(pe.Stack))
	}
	metrics.HandlerFaults.WithLabelValues(kind).Inc()
	s.logger.Error("handler failed", attrs...)

	if respond == nil || task.Kind == interaction.KindAutocomplete {
		return
	}

	// The handler's own context may already be cancelled.
	notifyCtx := context.WithoutCancel(ctx)
	var notifyErr error
	if respond.Acknowledged() {
		notifyErr = respond.Update(notifyCtx, interaction.Final(task.message()))
	} else {
		notifyErr = respond.Reply(notifyCtx, interaction.Ephemeral(task.message()))
	}
	if notifyErr != nil {
		s.logger.Warn("failed to notify user of handler failure",
			"task", task.Label,
			"error", notifyErr,
		)
	}
}

// Go runs fn in its own goroutine under a top-level guard so that one
// event's fault never stops the loop that produced it.
func (s *Supervisor) Go(label string, fn func()) {
	go s.Run(label, fn)
}

// Run calls fn, recovering and logging any panic.
func (s *Supervisor) Run(label string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.HandlerFaults.WithLabelValues("panic").Inc()
			s.logger.Error("event processing panicked",
				"task", label,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}
