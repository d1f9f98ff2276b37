package chat

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// MaxRoomNameLength is the maximum number of characters in a room name.
	MaxRoomNameLength = 30
	// MaxUserNameLength is the maximum number of characters in a display name.
	MaxUserNameLength = 20
)

// DefaultReactions is the reaction palette offered to users.
var DefaultReactions = []string{"❤️", "😂", "😢", "🔥", "👍", "👎"}

var (
	// ErrDuplicateRoomName is returned when a room with the same trimmed name already exists.
	ErrDuplicateRoomName = errors.New("room name already taken")
	// ErrRoomNotFound is returned when the room does not exist in the collection.
	ErrRoomNotFound = errors.New("room not found")
	// ErrMessageNotFound is returned when the message does not exist in the room.
	ErrMessageNotFound = errors.New("message not found")
	// ErrUnauthorized is returned when the requester does not own the room or message.
	// Authorization here is advisory only: it is enforced in this layer, not by
	// the store, so a direct store writer bypasses it.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrEmptyMessage is returned when a message has neither text nor media.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrInvalidReply is returned when a reply references a message that does not
	// exist in the room at post time.
	ErrInvalidReply = errors.New("reply target not found")
)

var validate = validator.New()

// User is an identity chosen at login. The ID is the chosen name itself, so
// two logins with the same name collide under one identity.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Reaction is a per-user emoji tag on a message. A user holds at most one
// reaction per message; selecting a new type overwrites it and re-selecting
// the same type removes it.
type Reaction struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// Message is a chat message within a room.
type Message struct {
	ID       string    `json:"id"`
	Text     string    `json:"text"`
	UserID   string    `json:"userId"`
	UserName string    `json:"userName"`
	SentAt   time.Time `json:"timestamp"`
	// ReplyTo is a weak reference to another message ID in the same room.
	// The target may have been deleted since; consumers render a placeholder
	// when resolution fails.
	ReplyTo string `json:"replyTo,omitempty"`
	// MediaURL is an opaque reference to an attachment. It is persisted as-is
	// and never dereferenced by this module; attachments are ephemeral by
	// design and may not resolve outside the session that created them.
	MediaURL  string     `json:"mediaUrl,omitempty"`
	Reactions []Reaction `json:"reactions,omitempty"`
	Edited    bool       `json:"isEdited,omitempty"`
}

// Room is a named container of messages owned by its creator.
type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatorID string    `json:"creatorId"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Messages  []Message `json:"messages"`
}

// RoomCreateInput represents the input for creating a room.
type RoomCreateInput struct {
	Name      string `json:"name" validate:"required,max=30"`
	CreatorID string `json:"creatorId" validate:"required"`
	AvatarURL string `json:"avatarUrl"`
}

// Validate validates the room input. The name is trimmed before validation.
func (i *RoomCreateInput) Validate() error {
	i.Name = strings.TrimSpace(i.Name)
	return validate.Struct(i)
}

// MessageCreateInput represents the input for posting a message.
// A message must carry non-empty trimmed text or a media reference.
type MessageCreateInput struct {
	Text     string `json:"text"`
	MediaURL string `json:"mediaUrl"`
	ReplyTo  string `json:"replyTo"`
	UserID   string `json:"userId" validate:"required"`
	UserName string `json:"userName" validate:"required"`
}

// Validate validates the message input.
func (i *MessageCreateInput) Validate() error {
	if err := validate.Struct(i); err != nil {
		return err
	}
	if strings.TrimSpace(i.Text) == "" && i.MediaURL == "" {
		return ErrEmptyMessage
	}
	return nil
}
