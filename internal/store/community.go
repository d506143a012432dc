// ABOUTME: SQLite persistence for personal custom roles and the anonymous board
// ABOUTME: Backs the custom and dangeru commands

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetCustomRole returns the member's personal role.
// Returns ErrNotFound if they have none.
func (s *SQLiteStore) GetCustomRole(ctx context.Context, workspaceID, userID string) (*CustomRole, error) {
	var cr CustomRole
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT workspace_id, user_id, role_id, created_at
		FROM custom_roles
		WHERE workspace_id = ? AND user_id = ?
	`, workspaceID, userID).Scan(&cr.WorkspaceID, &cr.UserID, &cr.RoleID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying custom role: %w", err)
	}
	if cr.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &cr, nil
}

// SetCustomRole records (or replaces) a member's personal role.
func (s *SQLiteStore) SetCustomRole(ctx context.Context, cr *CustomRole) error {
	if cr.CreatedAt.IsZero() {
		cr.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO custom_roles (workspace_id, user_id, role_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(workspace_id, user_id) DO UPDATE SET
			role_id = excluded.role_id,
			created_at = excluded.created_at
	`, cr.WorkspaceID, cr.UserID, cr.RoleID, cr.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("writing custom role: %w", err)
	}
	return nil
}

// DeleteCustomRole forgets a member's personal role.
func (s *SQLiteStore) DeleteCustomRole(ctx context.Context, workspaceID, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM custom_roles WHERE workspace_id = ? AND user_id = ?`, workspaceID, userID)
	if err != nil {
		return fmt.Errorf("deleting custom role: %w", err)
	}
	return nil
}

// CreateBoardPost appends a post and fills in its ID.
func (s *SQLiteStore) CreateBoardPost(ctx context.Context, p *BoardPost) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO board_posts (workspace_id, tripcode, content, created_at)
		VALUES (?, ?, ?, ?)
	`, p.WorkspaceID, p.Tripcode, p.Content, p.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("inserting board post: %w", err)
	}
	if p.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading board post id: %w", err)
	}
	return nil
}

// ListBoardPosts returns posts newest first.
func (s *SQLiteStore) ListBoardPosts(ctx context.Context, workspaceID string, limit, offset int) ([]*BoardPost, error) {
	limit = normalizeLimit(limit, 5, 100)
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, tripcode, content, created_at
		FROM board_posts
		WHERE workspace_id = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, workspaceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying board posts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	posts := []*BoardPost{}
	for rows.Next() {
		var p BoardPost
		var createdAt string
		if err := rows.Scan(&p.ID, &p.WorkspaceID, &p.Tripcode, &p.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning board post: %w", err)
		}
		if p.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		posts = append(posts, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating board posts: %w", err)
	}
	return posts, nil
}

// CountBoardPosts returns the number of posts in a workspace.
func (s *SQLiteStore) CountBoardPosts(ctx context.Context, workspaceID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM board_posts WHERE workspace_id = ?`, workspaceID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting board posts: %w", err)
	}
	return n, nil
}
