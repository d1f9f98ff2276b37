package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble/v2"

	"example.com/localchat/pkg/chat"
)

// PebbleStore keeps the serialized collection under a single key in a
// PebbleDB database. Pebble locks the directory, so this backend serves one
// process; cross-session convergence within that process runs over the
// in-process notifier.
type PebbleStore struct {
	db *pebble.DB
	mu sync.Mutex
}

func OpenPebbleStore(dir string) (*PebbleStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Load(ctx context.Context) ([]chat.Room, error) {
	raw, err := s.LoadRaw(ctx)
	if err != nil {
		return nil, err
	}
	return DecodeRooms(raw), nil
}

func (s *PebbleStore) LoadRaw(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, closer, err := s.db.Get([]byte(Key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pebble get: %w", err)
	}
	defer closer.Close()
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *PebbleStore) Save(_ context.Context, rooms []chat.Room) error {
	data, err := EncodeRooms(rooms)
	if err != nil {
		return fmt.Errorf("encode rooms: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Set([]byte(Key), data, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

func (s *PebbleStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
