package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"example.com/localchat/pkg/chat"
)

// SQLiteStore keeps the serialized collection in a single row of a snapshot
// table. The row is replaced wholesale on every save, preserving the
// last-write-wins contract of the file backend.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Load(ctx context.Context) ([]chat.Room, error) {
	raw, err := s.LoadRaw(ctx)
	if err != nil {
		return nil, err
	}
	return DecodeRooms(raw), nil
}

func (s *SQLiteStore) LoadRaw(ctx context.Context) ([]byte, error) {
	query := `SELECT value FROM snapshots WHERE key = @key`
	row := s.db.QueryRowContext(ctx, query, sql.Named("key", Key))

	var value []byte
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("Scan: %w", err)
	}
	return value, nil
}

func (s *SQLiteStore) Save(ctx context.Context, rooms []chat.Room) error {
	data, err := EncodeRooms(rooms)
	if err != nil {
		return fmt.Errorf("encode rooms: %w", err)
	}
	query := `
		INSERT INTO snapshots (key, value, updated_at)
		VALUES (@key, @value, @updated_at)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	_, err = s.db.ExecContext(ctx, query,
		sql.Named("key", Key), sql.Named("value", data),
		sql.Named("updated_at", time.Now()))
	if err != nil {
		return fmt.Errorf("ExecContext: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
