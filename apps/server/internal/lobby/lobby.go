package lobby

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"nimmt-lite/apps/server/internal/room"
)

var ErrInvalidRoomID = errors.New("invalid room id")

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Lobby owns the live room actors, creating them on first use and stopping
// them once idle. Game state outlives the actor in the store.
type Lobby struct {
	mu    sync.RWMutex
	rooms map[string]*room.Room

	deps    room.Deps
	idleTTL time.Duration
}

func New(deps room.Deps, idleTTL time.Duration) *Lobby {
	return &Lobby{
		rooms:   make(map[string]*room.Room),
		deps:    deps,
		idleTTL: idleTTL,
	}
}

// Room returns the actor for roomID, starting one if needed.
func (l *Lobby) Room(roomID string) (*room.Room, error) {
	if !roomIDPattern.MatchString(roomID) {
		return nil, ErrInvalidRoomID
	}

	l.mu.RLock()
	r := l.rooms[roomID]
	l.mu.RUnlock()
	if r != nil && !r.IsClosed() {
		return r, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if r := l.rooms[roomID]; r != nil && !r.IsClosed() {
		return r, nil
	}
	r = room.New(roomID, l.deps)
	l.rooms[roomID] = r
	return r, nil
}

// ListRooms returns the ids of live room actors.
func (l *Lobby) ListRooms() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.rooms))
	for id := range l.rooms {
		ids = append(ids, id)
	}
	return ids
}

// Reap stops every room idle for at least the lobby's TTL and returns how
// many were stopped.
func (l *Lobby) Reap() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for id, r := range l.rooms {
		if !r.IsIdleFor(l.idleTTL) {
			continue
		}
		r.Stop()
		delete(l.rooms, id)
		n++
		log.Info().Str("room", id).Msg("reaped idle room")
	}
	return n
}

// Run reaps idle rooms every interval until ctx is done, then stops all rooms.
func (l *Lobby) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Reap()
		case <-ctx.Done():
			l.StopAll()
			return
		}
	}
}

func (l *Lobby) StopAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, r := range l.rooms {
		r.Stop()
		delete(l.rooms, id)
	}
}
