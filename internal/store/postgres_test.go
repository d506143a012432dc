// ABOUTME: Integration tests for PostgresStore
// ABOUTME: Skipped unless STINGRAY_TEST_POSTGRES_URL points at a disposable database

package store

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("STINGRAY_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("STINGRAY_TEST_POSTGRES_URL not set")
	}

	s, err := NewPostgresStore(context.Background(), url, 4)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresStore_Settings(t *testing.T) {
	s := setupPostgresStore(t)
	ctx := context.Background()
	ws := "ws-" + uuid.NewString()

	_, err := s.GetWorkspaceSettings(ctx, ws)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.UpdateCommandRule(ctx, ws, "role", func(r *CommandRule) {
		r.AllowChannels = []string{"c1"}
	}))
	require.NoError(t, s.SetBypassRole(ctx, ws, "mgr"))

	got, err := s.GetWorkspaceSettings(ctx, ws)
	require.NoError(t, err)
	assert.Equal(t, "mgr", got.BypassRoleID)
	assert.Equal(t, []string{"c1"}, got.Rules["role"].AllowChannels)
}

func TestPostgresStore_Sessions(t *testing.T) {
	s := setupPostgresStore(t)
	ctx := context.Background()
	owner := "user-" + uuid.NewString()

	require.NoError(t, s.PutSession(ctx, &SessionRecord{OwnerID: owner, Kind: "audit-session", Step: "menu"}))
	got, err := s.GetSession(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "audit-session", got.Kind)

	require.NoError(t, s.DeleteSession(ctx, owner))
	_, err = s.GetSession(ctx, owner)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_Audit(t *testing.T) {
	s := setupPostgresStore(t)
	ctx := context.Background()
	ws := "ws-" + uuid.NewString()

	require.NoError(t, s.SaveAuditEntry(ctx, &AuditEntry{
		WorkspaceID: ws, ActorID: "u", Action: AuditToggleCommand, Target: "role",
		Detail: map[string]any{"enabled": true},
	}))
	entries, err := s.ListAuditEntries(ctx, AuditFilter{WorkspaceID: ws})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, true, entries[0].Detail["enabled"])
}
