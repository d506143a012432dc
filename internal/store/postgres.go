// ABOUTME: PostgreSQL implementation of the Store interface using a pgx connection pool
// ABOUTME: Same schema and semantics as SQLiteStore, with scoped Acquire/Release for read-modify-write

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresPingTimeout = 5 * time.Second

// PostgresStore implements the Store interface on a pgxpool.Pool
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore connects to the database at url, verifies it answers and
// creates the schema if needed.
func NewPostgresStore(ctx context.Context, url string, maxConns int32) (*PostgresStore, error) {
	logger := slog.Default().With("component", "store", "driver", "postgres")

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, postgresPingTimeout)
	err = pool.Ping(pingCtx)
	cancel()
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &PostgresStore{pool: pool, logger: logger}
	if err := s.createSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("Postgres store initialized", "max_conns", cfg.MaxConns)
	return s, nil
}

func (s *PostgresStore) createSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS guild_settings (
			workspace_id   TEXT PRIMARY KEY,
			bypass_role_id TEXT,
			command_rules  JSONB NOT NULL DEFAULT '{}'::jsonb,
			updated_at     TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sessions (
			owner_id   TEXT PRIMARY KEY,
			kind       TEXT NOT NULL,
			step       TEXT NOT NULL,
			payload    BYTEA,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS custom_roles (
			workspace_id TEXT NOT NULL,
			user_id      TEXT NOT NULL,
			role_id      TEXT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (workspace_id, user_id)
		);

		CREATE TABLE IF NOT EXISTS board_posts (
			id           BIGSERIAL PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			tripcode     TEXT NOT NULL,
			content      TEXT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_board_posts_workspace ON board_posts(workspace_id, id DESC);

		CREATE TABLE IF NOT EXISTS audit_log (
			audit_id     TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			actor_id     TEXT NOT NULL,
			action       TEXT NOT NULL,
			target       TEXT NOT NULL,
			ts           TIMESTAMPTZ NOT NULL,
			detail_json  JSONB
		);

		CREATE INDEX IF NOT EXISTS idx_audit_workspace_ts ON audit_log(workspace_id, ts DESC);

		ALTER TABLE guild_settings ADD COLUMN IF NOT EXISTS bypass_role_id TEXT;
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases every pooled connection.
func (s *PostgresStore) Close() error {
	s.logger.Info("closing Postgres store")
	s.pool.Close()
	return nil
}

type pgQueryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetWorkspaceSettings loads the settings row for a workspace.
// Returns ErrNotFound if the workspace has never been configured.
func (s *PostgresStore) GetWorkspaceSettings(ctx context.Context, workspaceID string) (*WorkspaceSettings, error) {
	return loadSettingsPG(ctx, s.pool, workspaceID, false)
}

func loadSettingsPG(ctx context.Context, q pgQueryer, workspaceID string, forUpdate bool) (*WorkspaceSettings, error) {
	query := `
		SELECT workspace_id, COALESCE(bypass_role_id, ''), command_rules, updated_at
		FROM guild_settings
		WHERE workspace_id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var ws WorkspaceSettings
	var rulesJSON []byte
	err := q.QueryRow(ctx, query, workspaceID).Scan(&ws.WorkspaceID, &ws.BypassRoleID, &rulesJSON, &ws.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying workspace settings: %w", err)
	}

	ws.Rules, err = decodeRules(rulesJSON)
	if err != nil {
		return nil, fmt.Errorf("decoding rules for workspace %s: %w", workspaceID, err)
	}
	return &ws, nil
}

// UpdateCommandRule runs a read-modify-write of one command's override.
func (s *PostgresStore) UpdateCommandRule(ctx context.Context, workspaceID, command string, mutate func(*CommandRule)) error {
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
func (s *PostgresStore) ReplaceCommandRule(ctx context.Context, workspaceID, command string, rule *CommandRule) error {
	return s.withSettings(ctx, workspaceID, func(ws *WorkspaceSettings) {
		if rule == nil || rule.IsZero() {
			delete(ws.Rules, command)
			return
		}
		ws.Rules[command] = rule.Clone()
	})
}

// SetBypassRole sets or clears the workspace manager role.
func (s *PostgresStore) SetBypassRole(ctx context.Context, workspaceID, roleID string) error {
	return s.withSettings(ctx, workspaceID, func(ws *WorkspaceSettings) {
		ws.BypassRoleID = roleID
	})
}

// withSettings acquires one pooled connection and releases it on every
// exit path. The row is locked for the single write that follows.
func (s *PostgresStore) withSettings(ctx context.Context, workspaceID string, fn func(*WorkspaceSettings)) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ws, err := loadSettingsPG(ctx, tx, workspaceID, true)
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

	var bypass *string
	if ws.BypassRoleID != "" {
		bypass = &ws.BypassRoleID
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO guild_settings (workspace_id, bypass_role_id, command_rules, updated_at)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (workspace_id) DO UPDATE SET
			bypass_role_id = EXCLUDED.bypass_role_id,
			command_rules = EXCLUDED.command_rules,
			updated_at = EXCLUDED.updated_at
	`, workspaceID, bypass, rulesJSON, ws.UpdatedAt)
	if err != nil {
		return fmt.Errorf("writing workspace settings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing workspace settings: %w", err)
	}

	s.logger.Debug("updated workspace settings", "workspace_id", workspaceID)
	return nil
}

// GetSession returns the caller's in-flight session.
// Returns ErrNotFound if there is none.
func (s *PostgresStore) GetSession(ctx context.Context, ownerID string) (*SessionRecord, error) {
	var rec SessionRecord
	err := s.pool.QueryRow(ctx, `
		SELECT owner_id, kind, step, payload, created_at, updated_at
		FROM sessions
		WHERE owner_id = $1
	`, ownerID).Scan(&rec.OwnerID, &rec.Kind, &rec.Step, &rec.Payload, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return &rec, nil
}

// PutSession stores a session, replacing any previous one for the owner.
func (s *PostgresStore) PutSession(ctx context.Context, rec *SessionRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (owner_id, kind, step, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner_id) DO UPDATE SET
			kind = EXCLUDED.kind,
			step = EXCLUDED.step,
			payload = EXCLUDED.payload,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at
	`, rec.OwnerID, rec.Kind, rec.Step, rec.Payload, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

// DeleteSession removes a session. Deleting a missing session is not an error.
func (s *PostgresStore) DeleteSession(ctx context.Context, ownerID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE owner_id = $1`, ownerID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// GetCustomRole returns the member's personal role.
func (s *PostgresStore) GetCustomRole(ctx context.Context, workspaceID, userID string) (*CustomRole, error) {
	var cr CustomRole
	err := s.pool.QueryRow(ctx, `
		SELECT workspace_id, user_id, role_id, created_at
		FROM custom_roles
		WHERE workspace_id = $1 AND user_id = $2
	`, workspaceID, userID).Scan(&cr.WorkspaceID, &cr.UserID, &cr.RoleID, &cr.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying custom role: %w", err)
	}
	return &cr, nil
}

// SetCustomRole records (or replaces) a member's personal role.
func (s *PostgresStore) SetCustomRole(ctx context.Context, cr *CustomRole) error {
	if cr.CreatedAt.IsZero() {
		cr.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO custom_roles (workspace_id, user_id, role_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (workspace_id, user_id) DO UPDATE SET
			role_id = EXCLUDED.role_id,
			created_at = EXCLUDED.created_at
	`, cr.WorkspaceID, cr.UserID, cr.RoleID, cr.CreatedAt)
	if err != nil {
		return fmt.Errorf("writing custom role: %w", err)
	}
	return nil
}

// DeleteCustomRole forgets a member's personal role.
func (s *PostgresStore) DeleteCustomRole(ctx context.Context, workspaceID, userID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM custom_roles WHERE workspace_id = $1 AND user_id = $2`, workspaceID, userID)
	if err != nil {
		return fmt.Errorf("deleting custom role: %w", err)
	}
	return nil
}

// CreateBoardPost appends a post and fills in its ID.
func (s *PostgresStore) CreateBoardPost(ctx context.Context, p *BoardPost) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO board_posts (workspace_id, tripcode, content, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, p.WorkspaceID, p.Tripcode, p.Content, p.CreatedAt).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("inserting board post: %w", err)
	}
	return nil
}

// ListBoardPosts returns posts newest first.
func (s *PostgresStore) ListBoardPosts(ctx context.Context, workspaceID string, limit, offset int) ([]*BoardPost, error) {
	limit = normalizeLimit(limit, 5, 100)
	if offset < 0 {
		offset = 0
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, workspace_id, tripcode, content, created_at
		FROM board_posts
		WHERE workspace_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`, workspaceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying board posts: %w", err)
	}
	defer rows.Close()

	posts := []*BoardPost{}
	for rows.Next() {
		var p BoardPost
		if err := rows.Scan(&p.ID, &p.WorkspaceID, &p.Tripcode, &p.Content, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning board post: %w", err)
		}
		posts = append(posts, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating board posts: %w", err)
	}
	return posts, nil
}

// CountBoardPosts returns the number of posts in a workspace.
func (s *PostgresStore) CountBoardPosts(ctx context.Context, workspaceID string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM board_posts WHERE workspace_id = $1`, workspaceID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting board posts: %w", err)
	}
	return n, nil
}

// SaveAuditEntry appends a new entry to the audit log.
func (s *PostgresStore) SaveAuditEntry(ctx context.Context, e *AuditEntry) error {
	detailJSON, err := prepareAuditEntry(e)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_log (audit_id, workspace_id, actor_id, action, target, ts, detail_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
	`, e.ID, e.WorkspaceID, e.ActorID, string(e.Action), e.Target, e.Timestamp.UTC(), detailJSON)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries returns audit entries matching the filter criteria, newest first.
func (s *PostgresStore) ListAuditEntries(ctx context.Context, f AuditFilter) ([]*AuditEntry, error) {
	limit := normalizeLimit(f.Limit, 50, 500)

	rows, err := s.pool.Query(ctx, `
		SELECT audit_id, workspace_id, actor_id, action, target, ts, detail_json::text
		FROM audit_log
		WHERE workspace_id = $1
		  AND ($2::timestamptz IS NULL OR ts >= $2)
		  AND ($3::text IS NULL OR target = $3)
		ORDER BY ts DESC
		LIMIT $4
	`, f.WorkspaceID, f.Since, f.Target, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	entries := []*AuditEntry{}
	for rows.Next() {
		var e AuditEntry
		var action string
		var detailJSON *string
		if err := rows.Scan(&e.ID, &e.WorkspaceID, &e.ActorID, &action, &e.Target, &e.Timestamp, &detailJSON); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Action = AuditAction(action)
		if detailJSON != nil {
			if err := decodeDetail(*detailJSON, &e); err != nil {
				return nil, err
			}
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, nil
}

// Compile-time interface check
var _ Store = (*PostgresStore)(nil)
