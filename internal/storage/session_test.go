package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carecompanion/pkg"
)

func TestSessionGetUnknownSubject(t *testing.T) {
	s := NewMemorySessionStore()

	_, err := s.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionSetAndClearActive(t *testing.T) {
	s := NewMemorySessionStore()
	ctx := context.Background()

	require.NoError(t, s.SetActive(ctx, "margaret", pkg.RouteComfort))
	sess, err := s.Get(ctx, "margaret")
	require.NoError(t, err)
	assert.Equal(t, pkg.RouteComfort, sess.Active)

	require.NoError(t, s.ClearActive(ctx, "margaret"))
	sess, err = s.Get(ctx, "margaret")
	require.NoError(t, err)
	assert.Equal(t, pkg.RouteUnset, sess.Active)
}

func TestSessionIdleExpiry(t *testing.T) {
	now := time.Now()
	s := NewMemorySessionStore().withClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, s.SetActive(ctx, "margaret", pkg.RouteHealth))

	now = now.Add(SessionIdleTTL + time.Second)
	_, err := s.Get(ctx, "margaret")
	assert.ErrorIs(t, err, ErrSessionNotFound, "idle sessions expire lazily on read")
}

func TestSessionActivityRefreshesTTL(t *testing.T) {
	now := time.Now()
	s := NewMemorySessionStore().withClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, s.SetActive(ctx, "margaret", pkg.RouteHealth))

	now = now.Add(SessionIdleTTL - time.Minute)
	require.NoError(t, s.Touch(ctx, "margaret"))

	now = now.Add(SessionIdleTTL - time.Minute)
	sess, err := s.Get(ctx, "margaret")
	require.NoError(t, err)
	assert.Equal(t, pkg.RouteHealth, sess.Active)
}

func TestSessionTurnsCappedFIFO(t *testing.T) {
	s := NewMemorySessionStore()
	ctx := context.Background()

	for i := 0; i < MaxRecentTurns+5; i++ {
		require.NoError(t, s.AddTurn(ctx, "margaret", SessionTurn{Role: "user", Content: fmt.Sprintf("turn %d", i)}))
	}

	sess, err := s.Get(ctx, "margaret")
	require.NoError(t, err)
	require.Len(t, sess.RecentTurns, MaxRecentTurns)
	assert.Equal(t, "turn 5", sess.RecentTurns[0].Content, "oldest turns are dropped first")
	assert.Equal(t, fmt.Sprintf("turn %d", MaxRecentTurns+4), sess.RecentTurns[len(sess.RecentTurns)-1].Content)
}

func TestSessionSweepEvictsOnlyIdle(t *testing.T) {
	now := time.Now()
	s := NewMemorySessionStore().withClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, s.SetActive(ctx, "idle", pkg.RouteTask))
	now = now.Add(SessionIdleTTL + time.Second)
	require.NoError(t, s.SetActive(ctx, "fresh", pkg.RouteComfort))

	evicted := s.Sweep(now)
	assert.Equal(t, 1, evicted)

	_, err := s.Get(ctx, "idle")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = s.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestSessionDelete(t *testing.T) {
	s := NewMemorySessionStore()
	ctx := context.Background()

	require.NoError(t, s.SetActive(ctx, "margaret", pkg.RouteComfort))
	require.NoError(t, s.AddTurn(ctx, "margaret", SessionTurn{Role: "user", Content: "hello"}))
	require.NoError(t, s.Delete(ctx, "margaret"))

	_, err := s.Get(ctx, "margaret")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionGetReturnsCopy(t *testing.T) {
	s := NewMemorySessionStore()
	ctx := context.Background()

	require.NoError(t, s.AddTurn(ctx, "margaret", SessionTurn{Role: "user", Content: "hello"}))

	sess, err := s.Get(ctx, "margaret")
	require.NoError(t, err)
	sess.RecentTurns[0].Content = "mutated"
	sess.Active = pkg.RouteTask

	again, err := s.Get(ctx, "margaret")
	require.NoError(t, err)
	assert.Equal(t, "hello", again.RecentTurns[0].Content)
	assert.Equal(t, pkg.RouteUnset, again.Active)
}
