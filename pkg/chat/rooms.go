package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// The functions in this file are the collection transforms behind every
// mutation: callers read the current collection, apply a transform, and save
// the whole collection back. Saving is last-write-wins, so a transform from a
// stale snapshot can silently drop another writer's change.

// FindRoom returns a pointer into rooms for the room with the given ID, or
// nil if there is no such room.
func FindRoom(rooms []Room, roomID string) *Room {
	for i := range rooms {
		if rooms[i].ID == roomID {
			return &rooms[i]
		}
	}
	return nil
}

// FindMessage returns a pointer into the room's messages for the message with
// the given ID, or nil if there is no such message.
func FindMessage(room *Room, messageID string) *Message {
	for i := range room.Messages {
		if room.Messages[i].ID == messageID {
			return &room.Messages[i]
		}
	}
	return nil
}

// CanDeleteRoom reports whether the user may delete the room. Only the
// creator may. The check is advisory: it binds this layer and the API, not
// direct store writers.
func CanDeleteRoom(room Room, userID string) bool {
	return room.CreatorID == userID
}

// CanEditMessage reports whether the user may edit or delete the message.
// Only the author may.
func CanEditMessage(msg Message, userID string) bool {
	return msg.UserID == userID
}

// ResolveReply looks up a reply target among messages. A false result means
// the target was deleted; consumers render a placeholder, never an error.
func ResolveReply(messages []Message, replyTo string) (*Message, bool) {
	for i := range messages {
		if messages[i].ID == replyTo {
			return &messages[i], true
		}
	}
	return nil, false
}

// AppendRoom adds a new empty room to the collection. The name is trimmed and
// compared against every existing room name; an exact match is rejected with
// ErrDuplicateRoomName. Uniqueness holds only at creation time: two
// concurrent sessions can still create colliding names.
func AppendRoom(rooms []Room, input RoomCreateInput) ([]Room, Room, error) {
	if err := input.Validate(); err != nil {
		return rooms, Room{}, err
	}
	name := strings.TrimSpace(input.Name)
	for i := range rooms {
		if rooms[i].Name == name {
			return rooms, Room{}, ErrDuplicateRoomName
		}
	}
	room := Room{
		ID:        uuid.New().String(),
		Name:      name,
		CreatorID: input.CreatorID,
		AvatarURL: input.AvatarURL,
		CreatedAt: time.Now(),
		Messages:  []Message{},
	}
	return append(rooms, room), room, nil
}

// RemoveRoom removes the room if the requester is its creator.
func RemoveRoom(rooms []Room, roomID, requesterID string) ([]Room, error) {
	for i := range rooms {
		if rooms[i].ID != roomID {
			continue
		}
		if !CanDeleteRoom(rooms[i], requesterID) {
			return rooms, ErrUnauthorized
		}
		return append(rooms[:i], rooms[i+1:]...), nil
	}
	return rooms, ErrRoomNotFound
}

// AppendMessage posts a message to the room. ReplyTo, if set, must reference
// a message that exists in the room at call time; the reference is allowed to
// go stale afterwards.
func AppendMessage(rooms []Room, roomID string, input MessageCreateInput) ([]Room, Message, error) {
	if err := input.Validate(); err != nil {
		return rooms, Message{}, err
	}
	room := FindRoom(rooms, roomID)
	if room == nil {
		return rooms, Message{}, ErrRoomNotFound
	}
	if input.ReplyTo != "" {
		if _, ok := ResolveReply(room.Messages, input.ReplyTo); !ok {
			return rooms, Message{}, ErrInvalidReply
		}
	}
	msg := Message{
		ID:       uuid.New().String(),
		Text:     strings.TrimSpace(input.Text),
		UserID:   input.UserID,
		UserName: input.UserName,
		SentAt:   time.Now(),
		ReplyTo:  input.ReplyTo,
		MediaURL: input.MediaURL,
	}
	room.Messages = append(room.Messages, msg)
	return rooms, msg, nil
}

// EditMessage replaces the message text if the editor authored it. Edited is
// set on the first edit and stays set.
func EditMessage(rooms []Room, roomID, messageID, editorID, newText string) ([]Room, error) {
	room := FindRoom(rooms, roomID)
	if room == nil {
		return rooms, ErrRoomNotFound
	}
	msg := FindMessage(room, messageID)
	if msg == nil {
		return rooms, ErrMessageNotFound
	}
	if !CanEditMessage(*msg, editorID) {
		return rooms, ErrUnauthorized
	}
	msg.Text = newText
	msg.Edited = true
	return rooms, nil
}

// RemoveMessage deletes the message if the requester authored it. Messages
// replying to the deleted one keep their stale reference.
func RemoveMessage(rooms []Room, roomID, messageID, requesterID string) ([]Room, error) {
	room := FindRoom(rooms, roomID)
	if room == nil {
		return rooms, ErrRoomNotFound
	}
	for i := range room.Messages {
		if room.Messages[i].ID != messageID {
			continue
		}
		if !CanEditMessage(room.Messages[i], requesterID) {
			return rooms, ErrUnauthorized
		}
		room.Messages = append(room.Messages[:i], room.Messages[i+1:]...)
		return rooms, nil
	}
	return rooms, ErrMessageNotFound
}

// ToggleReaction applies the per-user toggle: re-selecting the held type
// removes the reaction, selecting a different type overwrites it, and a user
// without a reaction gets one appended.
func ToggleReaction(rooms []Room, roomID, messageID, userID, reactionType string) ([]Room, error) {
	room := FindRoom(rooms, roomID)
	if room == nil {
		return rooms, ErrRoomNotFound
	}
	msg := FindMessage(room, messageID)
	if msg == nil {
		return rooms, ErrMessageNotFound
	}
	for i := range msg.Reactions {
		if msg.Reactions[i].UserID != userID {
			continue
		}
		if msg.Reactions[i].Type == reactionType {
			msg.Reactions = append(msg.Reactions[:i], msg.Reactions[i+1:]...)
			return rooms, nil
		}
		msg.Reactions[i].Type = reactionType
		return rooms, nil
	}
	msg.Reactions = append(msg.Reactions, Reaction{Type: reactionType, UserID: userID})
	return rooms, nil
}

// CloneRooms returns a deep copy of the collection so callers can hand out
// snapshots without exposing the shared cache to mutation.
func CloneRooms(rooms []Room) []Room {
	if rooms == nil {
		return nil
	}
	out := make([]Room, len(rooms))
	copy(out, rooms)
	for i := range out {
		msgs := make([]Message, len(out[i].Messages))
		copy(msgs, out[i].Messages)
		for j := range msgs {
			if msgs[j].Reactions != nil {
				rs := make([]Reaction, len(msgs[j].Reactions))
				copy(rs, msgs[j].Reactions)
				msgs[j].Reactions = rs
			}
		}
		out[i].Messages = msgs
	}
	return out
}
