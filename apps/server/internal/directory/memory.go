package directory

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

type memoryRoom struct {
	meta      RoomMeta
	members   map[string]struct{}
	expiresAt time.Time
}

// Memory is the single-process directory used when no Redis is configured.
type Memory struct {
	mu    sync.Mutex
	rooms map[string]*memoryRoom
	ttl   time.Duration
	rng   *rand.Rand
	now   func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		rooms: make(map[string]*memoryRoom),
		ttl:   ttl,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:   time.Now,
	}
}

// live returns the room if it has not expired, dropping it otherwise.
// Caller holds m.mu.
func (m *Memory) live(roomID string) *memoryRoom {
	room := m.rooms[roomID]
	if room == nil {
		return nil
	}
	if !m.now().Before(room.expiresAt) {
		delete(m.rooms, roomID)
		return nil
	}
	return room
}

func (m *Memory) CreateRoom(_ context.Context, title string) (RoomMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := 0; i < createAttempts; i++ {
		id := generateRoomID(m.rng)
		if m.live(id) != nil {
			continue
		}
		now := m.now()
		meta := RoomMeta{
			RoomID:     id,
			Title:      normalizeTitle(title),
			CreatedAt:  now.UnixMilli(),
			MaxPlayers: DefaultMaxPlayers,
		}
		m.rooms[id] = &memoryRoom{
			meta:      meta,
			members:   make(map[string]struct{}),
			expiresAt: now.Add(m.ttl),
		}
		return meta, nil
	}
	return RoomMeta{}, ErrNoRoomID
}

func (m *Memory) GetRooms(_ context.Context) ([]RoomWithCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rooms := make([]RoomWithCount, 0, len(m.rooms))
	for id := range m.rooms {
		room := m.live(id)
		if room == nil {
			continue
		}
		rooms = append(rooms, RoomWithCount{RoomMeta: room.meta, CurrentPlayers: len(room.members)})
	}
	sortNewestFirst(rooms)
	return rooms, nil
}

func (m *Memory) GetRoom(_ context.Context, roomID string) (RoomWithCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room := m.live(roomID)
	if room == nil {
		return RoomWithCount{}, ErrRoomNotFound
	}
	return RoomWithCount{RoomMeta: room.meta, CurrentPlayers: len(room.members)}, nil
}

func (m *Memory) JoinRoom(_ context.Context, roomID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	room := m.live(roomID)
	if room == nil {
		return ErrRoomNotFound
	}
	if _, ok := room.members[sessionID]; !ok && len(room.members) >= room.meta.MaxPlayers {
		return ErrRoomFull
	}
	room.members[sessionID] = struct{}{}
	room.expiresAt = m.now().Add(m.ttl)
	return nil
}

func (m *Memory) LeaveRoom(_ context.Context, roomID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	room := m.rooms[roomID]
	if room == nil {
		return nil
	}
	delete(room.members, sessionID)
	if len(room.members) == 0 {
		delete(m.rooms, roomID)
	}
	return nil
}

func (m *Memory) Close() error { return nil }
