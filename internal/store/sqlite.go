// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides workspace policy and session persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store", "driver", "sqlite")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// busy_timeout is per connection, so it rides on the DSN; immediate
	// transactions keep read-modify-write from failing on lock upgrade.
	dsn := path + "?_pragma=busy_timeout(5000)&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every pooled connection to :memory: would otherwise see its own empty database
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS guild_settings (
			workspace_id   TEXT PRIMARY KEY,
			bypass_role_id TEXT,
			command_rules  TEXT NOT NULL DEFAULT '{}',
			updated_at     TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sessions (
			owner_id   TEXT PRIMARY KEY,
			kind       TEXT NOT NULL,
			step       TEXT NOT NULL,
			payload    BLOB,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS custom_roles (
			workspace_id TEXT NOT NULL,
			user_id      TEXT NOT NULL,
			role_id      TEXT NOT NULL,
			created_at   TEXT NOT NULL,

			PRIMARY KEY (workspace_id, user_id)
		);

		CREATE TABLE IF NOT EXISTS board_posts (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			workspace_id TEXT NOT NULL,
			tripcode     TEXT NOT NULL,
			content      TEXT NOT NULL,
			created_at   TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_board_posts_workspace ON board_posts(workspace_id, id DESC);

		CREATE TABLE IF NOT EXISTS audit_log (
			audit_id     TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			actor_id     TEXT NOT NULL,
			action       TEXT NOT NULL,
			target       TEXT NOT NULL,
			ts           TEXT NOT NULL,
			detail_json  TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_audit_workspace_ts ON audit_log(workspace_id, ts DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_log(actor_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "guild_settings",
			column: "bypass_role_id",
			apply:  `ALTER TABLE guild_settings ADD COLUMN bypass_role_id TEXT`,
		},
		{
			table:  "board_posts",
			column: "workspace_id",
			apply:  `ALTER TABLE board_posts ADD COLUMN workspace_id TEXT NOT NULL DEFAULT ''`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column).Scan(&exists)
		if err == nil {
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// GetWorkspaceSettings loads the settings row for a workspace.
// Returns ErrNotFound if the workspace has never been configured.
func (s *SQLiteStore) GetWorkspaceSettings(ctx context.Context, workspaceID string) (*WorkspaceSettings, error) {
	return s.loadSettings(ctx, s.db, workspaceID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) loadSettings(ctx context.Context, q queryer, workspaceID string) (*WorkspaceSettings, error) {
	query := `
		SELECT workspace_id, bypass_role_id, command_rules, updated_at
		FROM guild_settings
		WHERE workspace_id = ?
	`

	var ws WorkspaceSettings
	var bypass sql.NullString
	var rulesJSON, updatedAt string

	err := q.QueryRowContext(ctx, query, workspaceID).Scan(&ws.WorkspaceID, &bypass, &rulesJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying workspace settings: %w", err)
	}

	ws.BypassRoleID = bypass.String
	ws.Rules, err = decodeRules([]byte(rulesJSON))
	if err != nil {
		return nil, fmt.Errorf("decoding rules for workspace %s: %w", workspaceID, err)
	}
	ws.UpdatedAt, err = time.Parse(timeLayout, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &ws, nil
}

// UpdateCommandRule runs a read-modify-write of one command's override on a
// single connection inside a short transaction.
func (s *SQLiteStore) UpdateCommandRule(ctx context.Context, workspaceID, command string, mutate func(*CommandRule)) error {
	return s.withSettings(ctx, workspaceID, func(ws *WorkspaceSettings) {
		rule := ws.Rules[command].Clone()
		mutate(&rule)
		if rule.IsZero() {
			delete(ws.Rules, command)
			return
		}
		ws.Rules[command] = rule
	})
}

// ReplaceCommandRule overwrites a command's override, or removes it when rule is nil.
func (s *SQLiteStore) ReplaceCommandRule(ctx context.Context, workspaceID, command string, rule *CommandRule) error {
	return s.withSettings(ctx, workspaceID, func(ws *WorkspaceSettings) {
		if rule == nil || rule.IsZero() {
			delete(ws.Rules, command)
			return
		}
		ws.Rules[command] = rule.Clone()
	})
}

// SetBypassRole sets or clears the workspace manager role.
func (s *SQLiteStore) SetBypassRole(ctx context.Context, workspaceID, roleID string) error {
	return s.withSettings(ctx, workspaceID, func(ws *WorkspaceSettings) {
		ws.BypassRoleID = roleID
	})
}

// withSettings acquires a dedicated connection, loads (or starts) the
// workspace row, applies fn and upserts the result. The connection is
// released on every exit path.
func (s *SQLiteStore) withSettings(ctx context.Context, workspaceID string, fn func(*WorkspaceSettings)) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ws, err := s.loadSettings(ctx, tx, workspaceID)
	if errors.Is(err, ErrNotFound) {
		ws = &WorkspaceSettings{WorkspaceID: workspaceID, Rules: map[string]CommandRule{}}
	} else if err != nil {
		return err
	}

	fn(ws)
	ws.UpdatedAt = time.Now().UTC()

	rulesJSON, err := encodeRules(ws.Rules)
	if err != nil {
		return err
	}

	var bypass any
	if ws.BypassRoleID != "" {
		bypass = ws.BypassRoleID
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO guild_settings (workspace_id, bypass_role_id, command_rules, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(workspace_id) DO UPDATE SET
			bypass_role_id = excluded.bypass_role_id,
			command_rules = excluded.command_rules,
			updated_at = excluded.updated_at
	`, workspaceID, bypass, rulesJSON, ws.UpdatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("writing workspace settings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing workspace settings: %w", err)
	}

	s.logger.Debug("updated workspace settings", "workspace_id", workspaceID)
	return nil
}

// GetSession returns the caller's in-flight session.
// Returns ErrNotFound if there is none.
func (s *SQLiteStore) GetSession(ctx context.Context, ownerID string) (*SessionRecord, error) {
	query := `
		SELECT owner_id, kind, step, payload, created_at, updated_at
		FROM sessions
		WHERE owner_id = ?
	`

	var rec SessionRecord
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, query, ownerID).Scan(
		&rec.OwnerID, &rec.Kind, &rec.Step, &rec.Payload, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}

	if rec.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &rec, nil
}

// PutSession stores a session, replacing any previous one for the owner.
func (s *SQLiteStore) PutSession(ctx context.Context, rec *SessionRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (owner_id, kind, step, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			kind = excluded.kind,
			step = excluded.step,
			payload = excluded.payload,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`, rec.OwnerID, rec.Kind, rec.Step, rec.Payload,
		rec.CreatedAt.UTC().Format(timeLayout), rec.UpdatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

// DeleteSession removes a session. Deleting a missing session is not an error.
func (s *SQLiteStore) DeleteSession(ctx context.Context, ownerID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)
