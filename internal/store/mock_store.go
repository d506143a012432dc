// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject store failures

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
// Setting Err makes every method fail with it.
type MockStore struct {
	mu          sync.RWMutex
	settings    map[string]*WorkspaceSettings // keyed by workspace ID
	sessions    map[string]*SessionRecord     // keyed by owner ID
	customRoles map[string]*CustomRole        // keyed by "workspaceID:userID"
	posts       []*BoardPost
	audit       []*AuditEntry

	// Err, when non-nil, is returned by every call.
	Err error

	// Calls counts GetWorkspaceSettings round trips.
	Calls int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		settings:    make(map[string]*WorkspaceSettings),
		sessions:    make(map[string]*SessionRecord),
		customRoles: make(map[string]*CustomRole),
	}
}

// SetErr switches fault injection on or off.
func (m *MockStore) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

func copySettings(ws *WorkspaceSettings) *WorkspaceSettings {
	out := *ws
	out.Rules = make(map[string]CommandRule, len(ws.Rules))
	for k, v := range ws.Rules {
		out.Rules[k] = v.Clone()
	}
	return &out
}

// GetWorkspaceSettings returns a copy of the stored settings.
func (m *MockStore) GetWorkspaceSettings(ctx context.Context, workspaceID string) (*WorkspaceSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++

	if m.Err != nil {
		return nil, m.Err
	}
	ws, ok := m.settings[workspaceID]
	if !ok {
		return nil, ErrNotFound
	}
	return copySettings(ws), nil
}

func (m *MockStore) withSettings(workspaceID string, fn func(*WorkspaceSettings)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	ws, ok := m.settings[workspaceID]
	if !ok {
		ws = &WorkspaceSettings{WorkspaceID: workspaceID, Rules: map[string]CommandRule{}}
		m.settings[workspaceID] = ws
	}
	fn(ws)
	ws.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateCommandRule mutates one override in place.
func (m *MockStore) UpdateCommandRule(ctx context.Context, workspaceID, command string, mutate func(*CommandRule)) error {
	return m.withSettings(workspaceID, func(ws *WorkspaceSettings) {
		rule := ws.Rules[command].Clone()
		mutate(&rule)
		if rule.IsZero() {
			delete(ws.Rules, command)
			return
		}
		ws.Rules[command] = rule
	})
}

// ReplaceCommandRule overwrites or removes one override.
func (m *MockStore) ReplaceCommandRule(ctx context.Context, workspaceID, command string, rule *CommandRule) error {
	return m.withSettings(workspaceID, func(ws *WorkspaceSettings) {
		if rule == nil || rule.IsZero() {
			delete(ws.Rules, command)
			return
		}
		ws.Rules[command] = rule.Clone()
	})
}

// SetBypassRole sets or clears the manager role.
func (m *MockStore) SetBypassRole(ctx context.Context, workspaceID, roleID string) error {
	return m.withSettings(workspaceID, func(ws *WorkspaceSettings) {
		ws.BypassRoleID = roleID
	})
}

// GetSession returns a copy of the stored session.
func (m *MockStore) GetSession(ctx context.Context, ownerID string) (*SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	rec, ok := m.sessions[ownerID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	out.Payload = append([]byte(nil), rec.Payload...)
	return &out, nil
}

// PutSession stores a copy of rec.
func (m *MockStore) PutSession(ctx context.Context, rec *SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	out := *rec
	out.Payload = append([]byte(nil), rec.Payload...)
	m.sessions[rec.OwnerID] = &out
	return nil
}

// DeleteSession removes a session.
func (m *MockStore) DeleteSession(ctx context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	delete(m.sessions, ownerID)
	return nil
}

// GetCustomRole returns a member's personal role.
func (m *MockStore) GetCustomRole(ctx context.Context, workspaceID, userID string) (*CustomRole, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	cr, ok := m.customRoles[workspaceID+":"+userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *cr
	return &out, nil
}

// SetCustomRole records a member's personal role.
func (m *MockStore) SetCustomRole(ctx context.Context, cr *CustomRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	if cr.CreatedAt.IsZero() {
		cr.CreatedAt = time.Now().UTC()
	}
	out := *cr
	m.customRoles[cr.WorkspaceID+":"+cr.UserID] = &out
	return nil
}

// DeleteCustomRole forgets a member's personal role.
func (m *MockStore) DeleteCustomRole(ctx context.Context, workspaceID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	delete(m.customRoles, workspaceID+":"+userID)
	return nil
}

// CreateBoardPost appends a post.
func (m *MockStore) CreateBoardPost(ctx context.Context, p *BoardPost) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.ID = int64(len(m.posts) + 1)
	out := *p
	m.posts = append(m.posts, &out)
	return nil
}

// ListBoardPosts returns posts newest first.
func (m *MockStore) ListBoardPosts(ctx context.Context, workspaceID string, limit, offset int) ([]*BoardPost, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	limit = normalizeLimit(limit, 5, 100)

	var matched []*BoardPost
	for i := len(m.posts) - 1; i >= 0; i-- {
		if m.posts[i].WorkspaceID == workspaceID {
			p := *m.posts[i]
			matched = append(matched, &p)
		}
	}
	if offset >= len(matched) {
		return []*BoardPost{}, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// CountBoardPosts counts posts in a workspace.
func (m *MockStore) CountBoardPosts(ctx context.Context, workspaceID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return 0, m.Err
	}
	n := 0
	for _, p := range m.posts {
		if p.WorkspaceID == workspaceID {
			n++
		}
	}
	return n, nil
}

// SaveAuditEntry appends an audit entry.
func (m *MockStore) SaveAuditEntry(ctx context.Context, e *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	if _, err := prepareAuditEntry(e); err != nil {
		return err
	}
	out := *e
	m.audit = append(m.audit, &out)
	return nil
}

// ListAuditEntries returns matching entries newest first.
func (m *MockStore) ListAuditEntries(ctx context.Context, f AuditFilter) ([]*AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}

	entries := []*AuditEntry{}
	for _, e := range m.audit {
		if e.WorkspaceID != f.WorkspaceID {
			continue
		}
		if f.Since != nil && e.Timestamp.Before(*f.Since) {
			continue
		}
		if f.Target != nil && e.Target != *f.Target {
			continue
		}
		out := *e
		entries = append(entries, &out)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})

	limit := normalizeLimit(f.Limit, 50, 500)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Ping reports the injected error, if any.
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Err
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// Compile-time interface check
var _ Store = (*MockStore)(nil)
