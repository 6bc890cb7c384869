package store

import (
	"context"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"

	"nimmt-lite/nimmt"
)

// Cached fronts a durable backend with an LRU of the latest snapshots. The
// cache is only updated after the backend accepted the write, so a failed
// Save never becomes visible to later loads.
type Cached struct {
	next  Service
	cache *lru.Cache[string, *nimmt.GameState]
}

func NewCached(next Service, size int) (*Cached, error) {
	cache, err := lru.New[string, *nimmt.GameState](size)
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) Load(ctx context.Context, roomID string) (*nimmt.GameState, error) {
	if s, ok := c.cache.Get(roomID); ok {
		return s.Clone(), nil
	}
	s, err := c.next.Load(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.cache.Remove(roomID)
		}
		return nil, err
	}
	c.cache.Add(roomID, s.Clone())
	return s, nil
}

func (c *Cached) Save(ctx context.Context, roomID string, s *nimmt.GameState) error {
	if err := c.next.Save(ctx, roomID, s); err != nil {
		c.cache.Remove(roomID)
		return err
	}
	c.cache.Add(roomID, s.Persistable())
	return nil
}

func (c *Cached) Delete(ctx context.Context, roomID string) error {
	c.cache.Remove(roomID)
	return c.next.Delete(ctx, roomID)
}

func (c *Cached) Close() error {
	c.cache.Purge()
	return c.next.Close()
}
