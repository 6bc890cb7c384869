package directory

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"nimmt-lite/apps/server/internal/config"
)

const (
	ModeMemory = "memory"
	ModeRedis  = "redis"

	DefaultMaxPlayers = 10
	DefaultTitle      = "Untitled"
	DefaultRoomTTL    = 60 * time.Second

	maxTitleRunes  = 40
	createAttempts = 16
)

var (
	ErrRoomNotFound = errors.New("not found")
	ErrRoomFull     = errors.New("full")
	ErrNoRoomID     = errors.New("no free room id")
)

type RoomMeta struct {
	RoomID     string `json:"roomId"`
	Title      string `json:"title"`
	CreatedAt  int64  `json:"createdAt"`
	MaxPlayers int    `json:"maxPlayers"`
}

type RoomWithCount struct {
	RoomMeta
	CurrentPlayers int `json:"currentPlayers"`
}

// Directory is the public room list. Room records expire after a TTL that
// joining refreshes; a room whose last member leaves is deleted immediately.
type Directory interface {
	CreateRoom(ctx context.Context, title string) (RoomMeta, error)
	GetRooms(ctx context.Context) ([]RoomWithCount, error)
	GetRoom(ctx context.Context, roomID string) (RoomWithCount, error)
	JoinRoom(ctx context.Context, roomID, sessionID string) error
	LeaveRoom(ctx context.Context, roomID, sessionID string) error
	Close() error
}

// Leaver is the slice of the directory a room needs to release a seat.
type Leaver interface {
	LeaveRoom(ctx context.Context, roomID, sessionID string) error
}

func New(cfg config.DirectoryConfig) (Directory, error) {
	ttl := cfg.RoomTTL
	if ttl <= 0 {
		ttl = DefaultRoomTTL
	}
	switch cfg.Mode {
	case ModeMemory, "":
		return NewMemory(ttl), nil
	case ModeRedis:
		return NewRedisFromURL(cfg.RedisURL, ttl)
	default:
		return nil, fmt.Errorf("invalid directory mode %q (supported: %s, %s)", cfg.Mode, ModeMemory, ModeRedis)
	}
}

func generateRoomID(rng *rand.Rand) string {
	return fmt.Sprintf("room-%d", 1000+rng.Intn(9000))
}

func normalizeTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if title == "" {
		return DefaultTitle
	}
	if r := []rune(title); len(r) > maxTitleRunes {
		title = string(r[:maxTitleRunes])
	}
	return title
}

func sortNewestFirst(rooms []RoomWithCount) {
	sort.SliceStable(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt > rooms[j].CreatedAt
	})
}
