// ABOUTME: Per-user flow sessions for multi-step confirmation UIs
// ABOUTME: Defines the Session type, flow kinds, steps and the Store interface callers depend on

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when the user has no in-flight session.
var ErrNotFound = errors.New("session not found")

// Kind names the flow a session belongs to.
type Kind string

const (
	KindRoleCreate    Kind = "role-create"
	KindRoleOverwrite Kind = "role-overwrite"
	KindBulkAssign    Kind = "bulk-assign"
	KindAuditSession  Kind = "audit-session"
	KindGhostSession  Kind = "ghost-session"
)

// Valid reports whether k is a known flow kind.
func (k Kind) Valid() bool {
	switch k {
	case KindRoleCreate, KindRoleOverwrite, KindBulkAssign, KindAuditSession, KindGhostSession:
		return true
	}
	return false
}

// Steps of the confirmation state machine. Executed and cancelled are
// terminal: reaching either deletes the session rather than storing it.
const (
	StepAwaitingConfirmation = "awaiting_confirmation"
	StepMenu                 = "menu"
)

// Session is one user's in-flight flow. A user has at most one; starting a
// new flow replaces the previous session whatever its kind.
type Session struct {
	OwnerID   string
	Kind      Kind
	Step      string
	Payload   json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New builds a session, encoding payload as JSON.
func New(ownerID string, kind Kind, step string, payload any) (*Session, error) {
	if ownerID == "" {
		return nil, errors.New("session owner is required")
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown flow kind %q", kind)
	}
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding session payload: %w", err)
		}
		raw = data
	}
	return &Session{OwnerID: ownerID, Kind: kind, Step: step, Payload: raw}, nil
}

// Decode unmarshals the payload into v.
func (s *Session) Decode(v any) error {
	if len(s.Payload) == 0 {
		return errors.New("session has no payload")
	}
	if err := json.Unmarshal(s.Payload, v); err != nil {
		return fmt.Errorf("decoding session payload: %w", err)
	}
	return nil
}

// Store keeps sessions keyed by owner. Concurrent writers for the same owner
// resolve as last-writer-wins.
type Store interface {
	// Get returns ErrNotFound when the owner has no session.
	Get(ctx context.Context, ownerID string) (*Session, error)
	// Set stores s, replacing any session the owner already has.
	Set(ctx context.Context, s *Session) error
	// Delete removes the owner's session; a missing session is not an error.
	Delete(ctx context.Context, ownerID string) error
}
