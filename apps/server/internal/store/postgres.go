package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"nimmt-lite/nimmt"
)

type PostgresService struct {
	db *sql.DB
}

func NewPostgresService(dsn string) (*PostgresService, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS room_state (
    room_id TEXT PRIMARY KEY,
    state_json JSONB NOT NULL,
    phase TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresService{db: db}, nil
}

func (p *PostgresService) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *PostgresService) Load(ctx context.Context, roomID string) (*nimmt.GameState, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx, `SELECT state_json FROM room_state WHERE room_id = $1`, roomID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", roomID, err)
	}
	return nimmt.DecodeSnapshot(raw)
}

func (p *PostgresService) Save(ctx context.Context, roomID string, gs *nimmt.GameState) error {
	raw, err := nimmt.EncodeSnapshot(gs)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
INSERT INTO room_state (room_id, state_json, phase, updated_at)
VALUES ($1, $2::jsonb, $3, NOW())
ON CONFLICT (room_id) DO UPDATE SET
    state_json = EXCLUDED.state_json,
    phase = EXCLUDED.phase,
    updated_at = NOW()`,
		roomID, string(raw), string(gs.Phase))
	if err != nil {
		return fmt.Errorf("save room %s: %w", roomID, err)
	}
	return nil
}

func (p *PostgresService) Delete(ctx context.Context, roomID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM room_state WHERE room_id = $1`, roomID)
	return err
}
