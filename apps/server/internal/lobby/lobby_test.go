package lobby

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nimmt-lite/apps/server/internal/room"
	"nimmt-lite/apps/server/internal/store"
	"nimmt-lite/nimmt"
)

func newTestLobby(t *testing.T, ttl time.Duration) *Lobby {
	t.Helper()
	engine, err := nimmt.NewEngine(nimmt.DefaultConfig())
	require.NoError(t, err)
	l := New(room.Deps{
		Engine: engine,
		Store:  store.NewMemoryService(),
		Send:   func(string, []byte) {},
	}, ttl)
	t.Cleanup(l.StopAll)
	return l
}

func TestLobby_RoomIsReused(t *testing.T) {
	l := newTestLobby(t, time.Hour)

	a, err := l.Room("room-1000")
	require.NoError(t, err)
	b, err := l.Room("room-1000")
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := l.Room("room-2000")
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.ElementsMatch(t, []string{"room-1000", "room-2000"}, l.ListRooms())

	_, err = l.Room("../etc")
	assert.ErrorIs(t, err, ErrInvalidRoomID)
	_, err = l.Room("")
	assert.ErrorIs(t, err, ErrInvalidRoomID)
}

func TestLobby_ReapStopsOnlyIdleRooms(t *testing.T) {
	l := newTestLobby(t, 0)

	busy, err := l.Room("busy")
	require.NoError(t, err)
	require.NoError(t, busy.Connect("c1"))

	idle, err := l.Room("idle")
	require.NoError(t, err)

	assert.Equal(t, 1, l.Reap())
	assert.True(t, idle.IsClosed())
	assert.False(t, busy.IsClosed())
	assert.Equal(t, []string{"busy"}, l.ListRooms())

	// A reaped id gets a fresh actor.
	again, err := l.Room("idle")
	require.NoError(t, err)
	assert.NotSame(t, idle, again)
}
