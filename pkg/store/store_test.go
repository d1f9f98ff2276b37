package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/localchat/pkg/chat"
)

func seedRooms(t *testing.T) []chat.Room {
	rooms, _, err := chat.AppendRoom(nil, chat.RoomCreateInput{Name: "General", CreatorID: "alice"})
	require.Nil(t, err)
	rooms, _, err = chat.AppendRoom(rooms, chat.RoomCreateInput{Name: "Random", CreatorID: "bob"})
	require.Nil(t, err)
	return rooms
}

func newFileStore(t *testing.T) *FileStore {
	s, err := OpenFileStore(filepath.Join(t.TempDir(), "chatrooms.json"))
	require.Nil(t, err)
	return s
}

func newSQLiteStore(t *testing.T) *SQLiteStore {
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	require.Nil(t, err)

	migrationFS := os.DirFS("../../migrations")
	goose.SetBaseFS(migrationFS)
	require.Nil(t, goose.SetDialect("sqlite3"))
	require.Nil(t, goose.Up(db, "."))

	t.Cleanup(func() { db.Close() })
	return NewSQLiteStore(db)
}

func newPebbleStore(t *testing.T) *PebbleStore {
	s, err := OpenPebbleStore(filepath.Join(t.TempDir(), "pebble"))
	require.Nil(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRoomStoreRoundTrip(t *testing.T) {
	ctx := context.Background()

	backends := map[string]func(t *testing.T) RoomStore{
		"file":   func(t *testing.T) RoomStore { return newFileStore(t) },
		"sqlite": func(t *testing.T) RoomStore { return newSQLiteStore(t) },
		"pebble": func(t *testing.T) RoomStore { return newPebbleStore(t) },
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			s := open(t)

			// Absent value loads as an empty collection.
			rooms, err := s.Load(ctx)
			require.Nil(t, err)
			assert.Empty(t, rooms)

			seeded := seedRooms(t)
			require.Nil(t, s.Save(ctx, seeded))

			got, err := s.Load(ctx)
			require.Nil(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, seeded[0].ID, got[0].ID)
			assert.Equal(t, "General", got[0].Name)
			assert.Equal(t, "alice", got[0].CreatorID)

			// Save replaces the whole collection, not merges.
			require.Nil(t, s.Save(ctx, seeded[:1]))
			got, err = s.Load(ctx)
			require.Nil(t, err)
			assert.Len(t, got, 1)
		})
	}
}

func TestFileStoreCorruptPayload(t *testing.T) {
	ctx := context.Background()
	s := newFileStore(t)

	require.Nil(t, os.WriteFile(s.Path(), []byte("{not json"), 0o644))

	rooms, err := s.Load(ctx)
	require.Nil(t, err)
	assert.Empty(t, rooms)

	// The corrupt value is still visible raw, for watchers.
	raw, err := s.LoadRaw(ctx)
	require.Nil(t, err)
	assert.Equal(t, []byte("{not json"), raw)
}

func TestEncodeRoomsNilIsEmptyArray(t *testing.T) {
	data, err := EncodeRooms(nil)
	require.Nil(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestDecodeRooms(t *testing.T) {
	assert.Empty(t, DecodeRooms(nil))
	assert.Empty(t, DecodeRooms([]byte("null")))
	assert.Empty(t, DecodeRooms([]byte("garbage")))

	rooms := DecodeRooms([]byte(`[{"id":"1","name":"General","creatorId":"alice","messages":[]}]`))
	require.Len(t, rooms, 1)
	assert.Equal(t, "General", rooms[0].Name)
}

func TestDecodeRoomsMessageTimestamp(t *testing.T) {
	payload := []byte(`[{"id":"1","name":"General","creatorId":"alice","messages":[` +
		`{"id":"m1","text":"hi","userId":"alice","userName":"alice","timestamp":"2026-08-30T12:00:00Z"}]}]`)

	rooms := DecodeRooms(payload)
	require.Len(t, rooms, 1)
	require.Len(t, rooms[0].Messages, 1)
	assert.Equal(t, 2026, rooms[0].Messages[0].SentAt.Year())

	// The field round-trips under the same name.
	data, err := EncodeRooms(rooms)
	require.Nil(t, err)
	assert.Contains(t, string(data), `"timestamp"`)
}
