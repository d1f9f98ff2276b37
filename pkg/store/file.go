package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"example.com/localchat/pkg/chat"
)

// FileStore keeps the room collection in a single JSON file. It is the
// canonical backend: the file can be watched, so independent sessions and
// processes converge on it the way browser tabs converge on a storage key.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// OpenFileStore prepares a file-backed store at path. The parent directory is
// created if needed; the file itself is created on first save.
func OpenFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path returns the file the store writes to, for watchers.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(ctx context.Context) ([]chat.Room, error) {
	raw, err := s.LoadRaw(ctx)
	if err != nil {
		return nil, err
	}
	return DecodeRooms(raw), nil
}

func (s *FileStore) LoadRaw(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store file: %w", err)
	}
	return data, nil
}

// Save writes the collection atomically: the value lands in a temp file in
// the same directory and is renamed over the target, so watchers never
// observe a torn write.
func (s *FileStore) Save(_ context.Context, rooms []chat.Room) error {
	data, err := EncodeRooms(rooms)
	if err != nil {
		return fmt.Errorf("encode rooms: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".chatrooms-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
