// ABOUTME: Session store backed by the database, so flows survive a restart
// ABOUTME: Adapts store.SessionBackend to the Store interface

package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/2389/stingray-gateway/internal/store"
)

// PersistentStore implements Store on top of a SessionBackend.
// It does not maintain metrics.SessionsActive: rows outlive the process
// and may be shared with other instances.
type PersistentStore struct {
	backend store.SessionBackend
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewPersistentStore wraps a backend. A zero TTL keeps sessions until deleted.
func NewPersistentStore(backend store.SessionBackend, ttl time.Duration) *PersistentStore {
	return &PersistentStore{
		backend: backend,
		ttl:     ttl,
		now:     time.Now,
		logger:  slog.Default().With("component", "sessions"),
	}
}

// Get loads the owner's session.
func (p *PersistentStore) Get(ctx context.Context, ownerID string) (*Session, error) {
	rec, err := p.backend.GetSession(ctx, ownerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.ttl > 0 && p.now().Sub(rec.UpdatedAt) >= p.ttl {
		if err := p.backend.DeleteSession(ctx, ownerID); err != nil {
			p.logger.Warn("failed to delete expired session", "owner_id", ownerID, "error", err)
		}
		return nil, ErrNotFound
	}
	return &Session{
		OwnerID:   rec.OwnerID,
		Kind:      Kind(rec.Kind),
		Step:      rec.Step,
		Payload:   rec.Payload,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

// Set writes s, replacing the owner's previous session.
func (p *PersistentStore) Set(ctx context.Context, s *Session) error {
	rec := &store.SessionRecord{
		OwnerID:   s.OwnerID,
		Kind:      string(s.Kind),
		Step:      s.Step,
		Payload:   s.Payload,
		CreatedAt: s.CreatedAt,
	}
	if err := p.backend.PutSession(ctx, rec); err != nil {
		return err
	}
	s.CreatedAt = rec.CreatedAt
	s.UpdatedAt = rec.UpdatedAt
	return nil
}

// Delete removes the owner's session.
func (p *PersistentStore) Delete(ctx context.Context, ownerID string) error {
	return p.backend.DeleteSession(ctx, ownerID)
}

var _ Store = (*PersistentStore)(nil)
