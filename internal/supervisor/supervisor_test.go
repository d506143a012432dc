// ABOUTME: Tests for the failure supervisor
// ABOUTME: Covers error and panic containment and the reply-versus-edit choice

package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/2389/stingray-gateway/internal/interaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_ErrorBeforeAcknowledgment(t *testing.T) {
	s := New(nil)
	rec := interaction.NewRecorder()

	err := s.Guard(context.Background(), Task{Label: "role", Kind: interaction.KindCommand}, rec,
		func(ctx context.Context) error { return errors.New("boom") })

	require.Error(t, err)
	require.Len(t, rec.Replies, 1)
	assert.Equal(t, CommandFailedMessage, rec.LastReply().Content)
	assert.True(t, rec.LastReply().Ephemeral)
	assert.Empty(t, rec.Updates)
}

func TestGuard_PanicAfterAcknowledgment(t *testing.T) {
	s := New(nil)
	rec := interaction.NewRecorder()

	err := s.Guard(context.Background(), Task{Label: "audit", Kind: interaction.KindComponent}, rec,
		func(ctx context.Context) error {
			_ = rec.Defer(ctx, false)
			panic("nil map")
		})

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "nil map", pe.Value)
	assert.NotEmpty(t, pe.Stack)
	assert.Empty(t, rec.Replies)
	assert.Equal(t, ComponentFailedMessage, rec.LastUpdate().Content)
	assert.True(t, rec.LastUpdate().Replace, "stale buttons are removed")
	assert.Empty(t, rec.LastUpdate().Components)
}

func TestGuard_Success(t *testing.T) {
	s := New(nil)
	rec := interaction.NewRecorder()

	err := s.Guard(context.Background(), Task{Label: "ping"}, rec,
		func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.False(t, rec.Acknowledged())
}

func TestGuard_NotifyFailureIsSwallowed(t *testing.T) {
	s := New(nil)
	rec := interaction.NewRecorder()
	rec.Err = errors.New("transport down")

	err := s.Guard(context.Background(), Task{Label: "ping"}, rec,
		func(ctx context.Context) error { return errors.New("boom") })
	assert.EqualError(t, err, "boom")
}

func TestGuard_AutocompleteStaysSilent(t *testing.T) {
	s := New(nil)
	rec := interaction.NewRecorder()

	_ = s.Guard(context.Background(), Task{Label: "config", Kind: interaction.KindAutocomplete}, rec,
		func(ctx context.Context) error { panic("oops") })
	assert.False(t, rec.Acknowledged())
}

func TestGo_IsolatesPanics(t *testing.T) {
	s := New(nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	processed := 0
	for i := 0; i < 3; i++ {
		wg.Add(1)
		i := i
		s.Go("event", func() {
			defer wg.Done()
			if i == 1 {
				panic("bad event")
			}
			mu.Lock()
			processed++
			mu.Unlock()
		})
	}
	wg.Wait()
	assert.Equal(t, 2, processed)
}
