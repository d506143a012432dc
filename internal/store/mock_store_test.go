// ABOUTME: Tests for MockStore fault injection and round-trip counting
// ABOUTME: Other suites rely on these behaviors to simulate an unreachable database

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_ErrInjection(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()
	boom := errors.New("connection refused")

	require.NoError(t, m.SetBypassRole(ctx, "ws", "r"))
	m.SetErr(boom)

	_, err := m.GetWorkspaceSettings(ctx, "ws")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, m.PutSession(ctx, &SessionRecord{OwnerID: "u"}), boom)
	assert.ErrorIs(t, m.Ping(ctx), boom)

	m.SetErr(nil)
	ws, err := m.GetWorkspaceSettings(ctx, "ws")
	require.NoError(t, err)
	assert.Equal(t, "r", ws.BypassRoleID)
	assert.Equal(t, 2, m.Calls)
}

func TestMockStore_ReturnsCopies(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	require.NoError(t, m.UpdateCommandRule(ctx, "ws", "role", func(r *CommandRule) {
		r.AllowChannels = []string{"c1"}
	}))

	ws, err := m.GetWorkspaceSettings(ctx, "ws")
	require.NoError(t, err)
	rule := ws.Rules["role"]
	rule.AllowChannels[0] = "mutated"

	ws, err = m.GetWorkspaceSettings(ctx, "ws")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, ws.Rules["role"].AllowChannels)
}
