// ABOUTME: In-process session store: a mutex-guarded map with optional expiry
// ABOUTME: Sessions are lost on restart; use PersistentStore to keep them

package session

import (
	"context"
	"sync"
	"time"

	"github.com/2389/stingray-gateway/internal/metrics"
)

// MemoryStore implements Store with a map. A zero TTL keeps sessions until
// they are deleted.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

func copySession(s *Session) *Session {
	out := *s
	out.Payload = append([]byte(nil), s.Payload...)
	return &out
}

// Get returns a copy of the owner's session.
func (m *MemoryStore) Get(ctx context.Context, ownerID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[ownerID]
	if !ok {
		return nil, ErrNotFound
	}
	if m.ttl > 0 && m.now().Sub(s.UpdatedAt) >= m.ttl {
		delete(m.sessions, ownerID)
		metrics.SessionsActive.Dec()
		return nil, ErrNotFound
	}
	return copySession(s), nil
}

// Set stores a copy of s.
func (m *MemoryStore) Set(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	if _, exists := m.sessions[s.OwnerID]; !exists {
		metrics.SessionsActive.Inc()
	}
	m.sessions[s.OwnerID] = copySession(s)
	return nil
}

// Delete removes the owner's session.
func (m *MemoryStore) Delete(ctx context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[ownerID]; exists {
		delete(m.sessions, ownerID)
		metrics.SessionsActive.Dec()
	}
	return nil
}

// Len counts stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

var _ Store = (*MemoryStore)(nil)
