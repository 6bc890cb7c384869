package directory

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	roomListKey       = "nimmt:rooms:list"
	roomMetaPrefix    = "nimmt:room:"
	roomMembersPrefix = "nimmt:room:members:"
)

func metaKey(roomID string) string    { return roomMetaPrefix + roomID }
func membersKey(roomID string) string { return roomMembersPrefix + roomID }

// Redis keeps the directory in a set of room ids, one hash per room (with
// TTL) and one member set per room.
type Redis struct {
	client *redis.Client
	ttl    time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

func NewRedisFromURL(url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedis(client, ttl), nil
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{
		client: client,
		ttl:    ttl,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *Redis) Close() error { return r.client.Close() }

func (r *Redis) nextID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return generateRoomID(r.rng)
}

func (r *Redis) CreateRoom(ctx context.Context, title string) (RoomMeta, error) {
	meta := RoomMeta{
		Title:      normalizeTitle(title),
		CreatedAt:  time.Now().UnixMilli(),
		MaxPlayers: DefaultMaxPlayers,
	}
	for i := 0; i < createAttempts; i++ {
		id := r.nextID()
		// HSETNX on roomId claims the id atomically.
		claimed, err := r.client.HSetNX(ctx, metaKey(id), "roomId", id).Result()
		if err != nil {
			return RoomMeta{}, err
		}
		if !claimed {
			continue
		}
		meta.RoomID = id
		_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, metaKey(id),
				"title", meta.Title,
				"createdAt", strconv.FormatInt(meta.CreatedAt, 10),
				"maxPlayers", strconv.Itoa(meta.MaxPlayers),
			)
			pipe.Expire(ctx, metaKey(id), r.ttl)
			pipe.SAdd(ctx, roomListKey, id)
			return nil
		})
		if err != nil {
			return RoomMeta{}, err
		}
		return meta, nil
	}
	return RoomMeta{}, ErrNoRoomID
}

func (r *Redis) load(ctx context.Context, roomID string) (RoomWithCount, error) {
	fields, err := r.client.HGetAll(ctx, metaKey(roomID)).Result()
	if err != nil {
		return RoomWithCount{}, err
	}
	if len(fields) == 0 {
		return RoomWithCount{}, ErrRoomNotFound
	}
	count, err := r.client.SCard(ctx, membersKey(roomID)).Result()
	if err != nil {
		return RoomWithCount{}, err
	}
	room := RoomWithCount{
		RoomMeta: RoomMeta{
			RoomID:     roomID,
			Title:      fields["title"],
			MaxPlayers: DefaultMaxPlayers,
		},
		CurrentPlayers: int(count),
	}
	if room.Title == "" {
		room.Title = DefaultTitle
	}
	if v, err := strconv.ParseInt(fields["createdAt"], 10, 64); err == nil {
		room.CreatedAt = v
	}
	if v, err := strconv.Atoi(fields["maxPlayers"]); err == nil && v > 0 {
		room.MaxPlayers = v
	}
	return room, nil
}

func (r *Redis) GetRooms(ctx context.Context) ([]RoomWithCount, error) {
	ids, err := r.client.SMembers(ctx, roomListKey).Result()
	if err != nil {
		return nil, err
	}
	rooms := make([]RoomWithCount, 0, len(ids))
	for _, id := range ids {
		room, err := r.load(ctx, id)
		if errors.Is(err, ErrRoomNotFound) {
			if err := r.client.SRem(ctx, roomListKey, id).Err(); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	sortNewestFirst(rooms)
	return rooms, nil
}

func (r *Redis) GetRoom(ctx context.Context, roomID string) (RoomWithCount, error) {
	return r.load(ctx, roomID)
}

// joinScript checks capacity and adds the member in one step so concurrent
// joins cannot overfill a room.
// KEYS: meta, members. ARGV: session id, ttl ms, default max players.
// Returns 1 on success, -1 if the room is gone, -2 if it is full.
var joinScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
local max = tonumber(redis.call('HGET', KEYS[1], 'maxPlayers')) or tonumber(ARGV[3])
if redis.call('SISMEMBER', KEYS[2], ARGV[1]) == 0 and redis.call('SCARD', KEYS[2]) >= max then
  return -2
end
redis.call('SADD', KEYS[2], ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
redis.call('PEXPIRE', KEYS[2], ARGV[2])
return 1
`)

func (r *Redis) JoinRoom(ctx context.Context, roomID, sessionID string) error {
	res, err := joinScript.Run(ctx, r.client,
		[]string{metaKey(roomID), membersKey(roomID)},
		sessionID, r.ttl.Milliseconds(), DefaultMaxPlayers,
	).Int()
	if err != nil {
		return err
	}
	switch res {
	case -1:
		return ErrRoomNotFound
	case -2:
		return ErrRoomFull
	}
	return nil
}

func (r *Redis) LeaveRoom(ctx context.Context, roomID, sessionID string) error {
	if err := r.client.SRem(ctx, membersKey(roomID), sessionID).Err(); err != nil {
		return err
	}
	count, err := r.client.SCard(ctx, membersKey(roomID)).Result()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, metaKey(roomID), membersKey(roomID))
		pipe.SRem(ctx, roomListKey, roomID)
		return nil
	})
	return err
}
