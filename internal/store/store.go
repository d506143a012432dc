// ABOUTME: Store interface and data types for stingray-gateway persistence
// ABOUTME: Defines workspace settings, command rule overrides, sessions, custom roles, board posts and audit entries

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// WorkspaceSettings is the single per-workspace row that carries every
// command rule override plus the designated manager (bypass) role.
type WorkspaceSettings struct {
	WorkspaceID  string
	BypassRoleID string
	Rules        map[string]CommandRule
	UpdatedAt    time.Time
}

// Rule returns the stored override for a command and whether one exists.
func (w *WorkspaceSettings) Rule(command string) (CommandRule, bool) {
	if w == nil || w.Rules == nil {
		return CommandRule{}, false
	}
	r, ok := w.Rules[command]
	return r, ok
}

// SessionRecord is the persisted form of an in-flight multi-step flow.
type SessionRecord struct {
	OwnerID   string
	Kind      string
	Step      string
	Payload   []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CustomRole links a member to their personal role in a workspace.
type CustomRole struct {
	WorkspaceID string
	UserID      string
	RoleID      string
	CreatedAt   time.Time
}

// BoardPost is one anonymous post on the shared board.
type BoardPost struct {
	ID          int64
	WorkspaceID string
	Tripcode    string
	Content     string
	CreatedAt   time.Time
}

// SettingsStore reads and writes per-workspace policy settings.
type SettingsStore interface {
	// GetWorkspaceSettings returns ErrNotFound when the workspace has no row.
	GetWorkspaceSettings(ctx context.Context, workspaceID string) (*WorkspaceSettings, error)

	// UpdateCommandRule applies mutate to the command's current override
	// (zero value when absent) and writes the result back. The read and the
	// write run on one scoped connection.
	UpdateCommandRule(ctx context.Context, workspaceID, command string, mutate func(*CommandRule)) error

	// ReplaceCommandRule stores rule verbatim, or removes the override when rule is nil.
	ReplaceCommandRule(ctx context.Context, workspaceID, command string, rule *CommandRule) error

	// SetBypassRole designates the manager role; an empty roleID clears it.
	SetBypassRole(ctx context.Context, workspaceID, roleID string) error
}

// SessionBackend persists flow sessions keyed by owner.
type SessionBackend interface {
	GetSession(ctx context.Context, ownerID string) (*SessionRecord, error)
	PutSession(ctx context.Context, rec *SessionRecord) error
	DeleteSession(ctx context.Context, ownerID string) error
}

// CustomRoleStore tracks personal roles.
type CustomRoleStore interface {
	GetCustomRole(ctx context.Context, workspaceID, userID string) (*CustomRole, error)
	SetCustomRole(ctx context.Context, cr *CustomRole) error
	DeleteCustomRole(ctx context.Context, workspaceID, userID string) error
}

// BoardStore holds the anonymous board.
type BoardStore interface {
	CreateBoardPost(ctx context.Context, p *BoardPost) error
	ListBoardPosts(ctx context.Context, workspaceID string, limit, offset int) ([]*BoardPost, error)
	CountBoardPosts(ctx context.Context, workspaceID string) (int, error)
}

// AuditStore is the append-only record of configuration changes.
type AuditStore interface {
	SaveAuditEntry(ctx context.Context, e *AuditEntry) error
	ListAuditEntries(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)
}

// Store is everything the gateway persists.
type Store interface {
	SettingsStore
	SessionBackend
	CustomRoleStore
	BoardStore
	AuditStore

	// Ping reports whether the backing database is reachable.
	Ping(ctx context.Context) error

	Close() error
}

func normalizeLimit(limit, def, ceiling int) int {
	if limit <= 0 {
		return def
	}
	if limit > ceiling {
		return ceiling
	}
	return limit
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
