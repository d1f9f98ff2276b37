// Package session holds one user's view of the room collection: an in-memory
// cache of the store, the currently open room, and the mutation operations.
// A session is the Go counterpart of a browser tab; independent sessions
// converge through the store and the change notifier, never through each
// other.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"example.com/localchat/pkg/chat"
	"example.com/localchat/pkg/notify"
	"example.com/localchat/pkg/store"
)

// DefaultPollInterval is how often the polling refresher re-reads the active
// room from the store.
const DefaultPollInterval = time.Second

// MessageInput is the caller-facing part of a message; the session fills in
// the author from its user.
type MessageInput struct {
	Text     string
	MediaURL string
	ReplyTo  string
}

// Session is a state holder for one logged-in user. It is constructed at
// login, mutated only through its operations, and torn down by cancelling the
// context passed to Run.
//
// Every mutation reads the cached collection, applies a pure transform from
// the chat package, and saves the whole collection back. The save is
// last-write-wins: concurrent sessions can silently drop each other's
// changes, and nothing here retries or merges.
type Session struct {
	store        store.RoomStore
	bus          *notify.Bus
	user         chat.User
	pollInterval time.Duration
	onRoomClosed func(roomID string)
	log          zerolog.Logger

	mu           sync.Mutex
	rooms        []chat.Room
	activeRoomID string
	// lastPayload is the serialized collection this session last wrote or
	// applied; bus changes matching it are self-echoes and are skipped.
	lastPayload []byte
}

type Option func(*Session)

// WithPollInterval overrides the polling refresher interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithOnRoomClosed installs a hook invoked when the open room disappears from
// an externally applied collection, meaning it was deleted in another
// session. The consumer should navigate away.
func WithOnRoomClosed(f func(roomID string)) Option {
	return func(s *Session) {
		s.onRoomClosed = f
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.log = logger
	}
}

// New builds a session for user and primes its cache from the store.
func New(ctx context.Context, st store.RoomStore, bus *notify.Bus, user chat.User, opts ...Option) (*Session, error) {
	s := &Session{
		store:        st,
		bus:          bus,
		user:         user,
		pollInterval: DefaultPollInterval,
		log:          log.With().Str("component", "session").Str("user", user.ID).Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// User returns the session's identity.
func (s *Session) User() chat.User {
	return s.user
}

// Rooms returns a snapshot of the cached collection.
func (s *Session) Rooms() []chat.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return chat.CloneRooms(s.rooms)
}

// OpenRoom marks a room as the active one.
func (s *Session) OpenRoom(roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chat.FindRoom(s.rooms, roomID) == nil {
		return chat.ErrRoomNotFound
	}
	s.activeRoomID = roomID
	return nil
}

// CloseRoom clears the active room selection.
func (s *Session) CloseRoom() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeRoomID = ""
}

// ActiveRoom returns a snapshot of the open room, if any.
func (s *Session) ActiveRoom() (chat.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeRoomID == "" {
		return chat.Room{}, false
	}
	room := chat.FindRoom(s.rooms, s.activeRoomID)
	if room == nil {
		return chat.Room{}, false
	}
	return chat.CloneRooms([]chat.Room{*room})[0], true
}

// CreateRoom creates a room owned by the session user. A room whose trimmed
// name matches an existing one is rejected with chat.ErrDuplicateRoomName.
func (s *Session) CreateRoom(ctx context.Context, name, avatarURL string) (chat.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms, room, err := chat.AppendRoom(chat.CloneRooms(s.rooms), chat.RoomCreateInput{
		Name:      name,
		CreatorID: s.user.ID,
		AvatarURL: avatarURL,
	})
	if err != nil {
		return chat.Room{}, err
	}
	if err := s.commitLocked(ctx, rooms); err != nil {
		return chat.Room{}, err
	}
	return room, nil
}

// DeleteRoom removes a room the session user created. If the room was open,
// the selection is cleared.
func (s *Session) DeleteRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms, err := chat.RemoveRoom(chat.CloneRooms(s.rooms), roomID, s.user.ID)
	if err != nil {
		return err
	}
	if err := s.commitLocked(ctx, rooms); err != nil {
		return err
	}
	if s.activeRoomID == roomID {
		s.activeRoomID = ""
	}
	return nil
}

// PostMessage appends a message authored by the session user.
func (s *Session) PostMessage(ctx context.Context, roomID string, input MessageInput) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms, msg, err := chat.AppendMessage(chat.CloneRooms(s.rooms), roomID, chat.MessageCreateInput{
		Text:     input.Text,
		MediaURL: input.MediaURL,
		ReplyTo:  input.ReplyTo,
		UserID:   s.user.ID,
		UserName: s.user.Name,
	})
	if err != nil {
		return chat.Message{}, err
	}
	if err := s.commitLocked(ctx, rooms); err != nil {
		return chat.Message{}, err
	}
	return msg, nil
}

// EditMessage rewrites a message the session user authored and returns the
// edited message.
func (s *Session) EditMessage(ctx context.Context, roomID, messageID, newText string) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms, err := chat.EditMessage(chat.CloneRooms(s.rooms), roomID, messageID, s.user.ID, newText)
	if err != nil {
		return chat.Message{}, err
	}
	msg := *chat.FindMessage(chat.FindRoom(rooms, roomID), messageID)
	if err := s.commitLocked(ctx, rooms); err != nil {
		return chat.Message{}, err
	}
	return msg, nil
}

// DeleteMessage removes a message the session user authored.
func (s *Session) DeleteMessage(ctx context.Context, roomID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms, err := chat.RemoveMessage(chat.CloneRooms(s.rooms), roomID, messageID, s.user.ID)
	if err != nil {
		return err
	}
	return s.commitLocked(ctx, rooms)
}

// React toggles the session user's reaction on a message and returns the
// message's reactions after the toggle.
func (s *Session) React(ctx context.Context, roomID, messageID, reactionType string) ([]chat.Reaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms, err := chat.ToggleReaction(chat.CloneRooms(s.rooms), roomID, messageID, s.user.ID, reactionType)
	if err != nil {
		return nil, err
	}
	reactions := chat.FindMessage(chat.FindRoom(rooms, roomID), messageID).Reactions
	if err := s.commitLocked(ctx, rooms); err != nil {
		return nil, err
	}
	return reactions, nil
}

// commitLocked persists the transformed collection and announces the write on
// the bus. The cache is replaced only after the store accepted the value, so
// a failed save leaves the session on its previous state. Callers hold s.mu
// and pass a collection that does not alias the cache.
func (s *Session) commitLocked(ctx context.Context, rooms []chat.Room) error {
	payload, err := store.EncodeRooms(rooms)
	if err != nil {
		return fmt.Errorf("encode rooms: %w", err)
	}
	if err := s.store.Save(ctx, rooms); err != nil {
		return fmt.Errorf("save rooms: %w", err)
	}
	s.rooms = rooms
	s.lastPayload = payload
	if s.bus != nil {
		s.bus.Publish(notify.Change{Payload: payload})
	}
	return nil
}

// Refresh replaces the cache with the store's current collection.
func (s *Session) Refresh(ctx context.Context) error {
	rooms, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load rooms: %w", err)
	}
	payload, err := store.EncodeRooms(rooms)
	if err != nil {
		return fmt.Errorf("encode rooms: %w", err)
	}
	s.mu.Lock()
	s.rooms = rooms
	s.lastPayload = payload
	s.mu.Unlock()
	return nil
}

// ApplyChange ingests a change published by the notifier or another session.
// A payload equal to the session's own last write is a self-echo and is
// skipped. A malformed payload is logged and the previous state retained; the
// update is all-or-nothing. If the open room is gone from the new collection
// the selection is cleared and the OnRoomClosed hook fires.
func (s *Session) ApplyChange(c notify.Change) {
	s.mu.Lock()
	if bytes.Equal(c.Payload, s.lastPayload) {
		s.mu.Unlock()
		return
	}

	var rooms []chat.Room
	if err := json.Unmarshal(c.Payload, &rooms); err != nil {
		s.mu.Unlock()
		s.log.Error().Err(err).Msg("malformed change payload, keeping previous state")
		return
	}
	if rooms == nil {
		rooms = []chat.Room{}
	}

	s.rooms = rooms
	s.lastPayload = c.Payload

	var closed string
	if s.activeRoomID != "" && chat.FindRoom(rooms, s.activeRoomID) == nil {
		closed = s.activeRoomID
		s.activeRoomID = ""
	}
	s.mu.Unlock()

	if closed != "" {
		s.log.Info().Str("room", closed).Msg("open room deleted externally")
		if s.onRoomClosed != nil {
			s.onRoomClosed(closed)
		}
	}
}

// Run drives the session: it applies bus changes as they arrive and runs the
// polling refresher, which re-reads the active room every interval as a
// staleness fallback for writes the notifier missed. It returns when ctx is
// cancelled.
func (s *Session) Run(ctx context.Context) {
	var changes <-chan notify.Change
	if s.bus != nil {
		ch, cancel := s.bus.Subscribe()
		defer cancel()
		changes = ch
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			s.ApplyChange(c)
		case <-ticker.C:
			if err := s.refreshActiveRoom(ctx); err != nil {
				s.log.Warn().Err(err).Msg("poll refresh")
			}
		}
	}
}

// refreshActiveRoom re-reads the active room's messages from the store and
// replaces the cached copy if the room still exists. It deliberately touches
// nothing else: cross-session propagation is the notifier's job.
func (s *Session) refreshActiveRoom(ctx context.Context) error {
	s.mu.Lock()
	roomID := s.activeRoomID
	s.mu.Unlock()
	if roomID == "" {
		return nil
	}

	stored, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	fresh := chat.FindRoom(stored, roomID)
	if fresh == nil {
		return nil
	}

	s.mu.Lock()
	if cached := chat.FindRoom(s.rooms, roomID); cached != nil {
		cached.Messages = fresh.Messages
	}
	s.mu.Unlock()
	return nil
}
