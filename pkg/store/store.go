// Package store persists the canonical room collection. The collection is
// serialized as one JSON value under a single key and every save replaces the
// whole value: there is no merge, the last writer wins. All in-memory copies
// held by sessions are caches of this store, never authoritative.
package store

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"example.com/localchat/pkg/chat"
)

// Key is the storage key holding the serialized room collection.
const Key = "chatRooms"

// RoomStore is a durable whole-collection store.
type RoomStore interface {
	// Load returns the deserialized room collection. It fails soft: an absent
	// or corrupt value yields an empty collection and a nil error.
	Load(ctx context.Context) ([]chat.Room, error)
	// LoadRaw returns the serialized collection as stored, or nil if absent.
	LoadRaw(ctx context.Context) ([]byte, error)
	// Save serializes and writes the full collection, replacing any prior
	// value.
	Save(ctx context.Context, rooms []chat.Room) error
	Close() error
}

// DecodeRooms deserializes a stored payload. Corrupt payloads degrade to an
// empty collection with a log entry; they never propagate as errors.
func DecodeRooms(data []byte) []chat.Room {
	if len(data) == 0 {
		return []chat.Room{}
	}
	var rooms []chat.Room
	if err := json.Unmarshal(data, &rooms); err != nil {
		log.Warn().Err(err).Msg("corrupt room snapshot, treating as empty")
		return []chat.Room{}
	}
	if rooms == nil {
		rooms = []chat.Room{}
	}
	return rooms
}

// EncodeRooms serializes the collection. A nil collection encodes as an empty
// array so readers of the raw value never see JSON null.
func EncodeRooms(rooms []chat.Room) ([]byte, error) {
	if rooms == nil {
		rooms = []chat.Room{}
	}
	return json.Marshal(rooms)
}
