// ABOUTME: Tests for custom role and board post persistence
// ABOUTME: Exercised against SQLite and the mock store with the same expectations

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func communityStores(t *testing.T) map[string]Store {
	return map[string]Store{
		"sqlite": setupTestStore(t),
		"mock":   NewMockStore(),
	}
}

func TestCustomRoles(t *testing.T) {
	for name, s := range communityStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.GetCustomRole(ctx, "ws-1", "user-1")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.SetCustomRole(ctx, &CustomRole{WorkspaceID: "ws-1", UserID: "user-1", RoleID: "r1"}))
			require.NoError(t, s.SetCustomRole(ctx, &CustomRole{WorkspaceID: "ws-1", UserID: "user-1", RoleID: "r2"}))

			cr, err := s.GetCustomRole(ctx, "ws-1", "user-1")
			require.NoError(t, err)
			assert.Equal(t, "r2", cr.RoleID)

			require.NoError(t, s.DeleteCustomRole(ctx, "ws-1", "user-1"))
			_, err = s.GetCustomRole(ctx, "ws-1", "user-1")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestBoardPosts(t *testing.T) {
	for name, s := range communityStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for _, content := range []string{"first", "second", "third"} {
				p := &BoardPost{WorkspaceID: "ws-1", Tripcode: "abc123", Content: content}
				require.NoError(t, s.CreateBoardPost(ctx, p))
				assert.NotZero(t, p.ID)
			}
			require.NoError(t, s.CreateBoardPost(ctx, &BoardPost{WorkspaceID: "ws-2", Tripcode: "x", Content: "elsewhere"}))

			n, err := s.CountBoardPosts(ctx, "ws-1")
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			posts, err := s.ListBoardPosts(ctx, "ws-1", 2, 0)
			require.NoError(t, err)
			require.Len(t, posts, 2)
			assert.Equal(t, "third", posts[0].Content)
			assert.Equal(t, "second", posts[1].Content)

			posts, err = s.ListBoardPosts(ctx, "ws-1", 2, 2)
			require.NoError(t, err)
			require.Len(t, posts, 1)
			assert.Equal(t, "first", posts[0].Content)
		})
	}
}
