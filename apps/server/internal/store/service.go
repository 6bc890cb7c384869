package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"nimmt-lite/apps/server/internal/config"
	"nimmt-lite/nimmt"
)

const (
	ModeMemory   = "memory"
	ModeSQLite   = "sqlite"
	ModePostgres = "postgres"
)

var ErrNotFound = errors.New("room state not found")

// Service persists exactly one snapshot per room id. Save must return only
// after the write is durable for the backend in use.
type Service interface {
	Load(ctx context.Context, roomID string) (*nimmt.GameState, error)
	Save(ctx context.Context, roomID string, s *nimmt.GameState) error
	Delete(ctx context.Context, roomID string) error
	Close() error
}

// NewService builds the configured backend, wrapped in a read cache when
// cache_size > 0.
func NewService(cfg config.StoreConfig) (Service, error) {
	var (
		svc Service
		err error
	)
	switch cfg.Mode {
	case ModeMemory:
		svc = NewMemoryService()
	case ModeSQLite:
		svc, err = NewSQLiteService(cfg.SQLitePath)
	case ModePostgres:
		svc, err = NewPostgresService(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("invalid store mode %q (supported: %s, %s, %s)", cfg.Mode, ModeMemory, ModeSQLite, ModePostgres)
	}
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize > 0 && cfg.Mode != ModeMemory {
		return NewCached(svc, cfg.CacheSize)
	}
	return svc, nil
}

// MemoryService keeps encoded snapshots in process memory.
type MemoryService struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryService() *MemoryService {
	return &MemoryService{data: make(map[string][]byte)}
}

func (m *MemoryService) Load(_ context.Context, roomID string) (*nimmt.GameState, error) {
	m.mu.RLock()
	raw, ok := m.data[roomID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return nimmt.DecodeSnapshot(raw)
}

func (m *MemoryService) Save(_ context.Context, roomID string, s *nimmt.GameState) error {
	raw, err := nimmt.EncodeSnapshot(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[roomID] = raw
	m.mu.Unlock()
	return nil
}

func (m *MemoryService) Delete(_ context.Context, roomID string) error {
	m.mu.Lock()
	delete(m.data, roomID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryService) Close() error { return nil }
