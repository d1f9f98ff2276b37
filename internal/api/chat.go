package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"example.com/localchat/pkg/chat"
	"example.com/localchat/pkg/notify"
	"example.com/localchat/pkg/session"
	"example.com/localchat/pkg/store"
)

// ChatHandler serves the room and message operations. Every authenticated
// user gets one server-side session: the handler's state holder, mutated
// through the chat transforms and kept current by the bus and the polling
// refresher. Saves stay whole-collection last-write-wins, so sessions that
// have not yet converged can still drop each other's writes.
type ChatHandler struct {
	ctx          context.Context
	store        store.RoomStore
	bus          *notify.Bus
	pollInterval time.Duration

	mu       sync.Mutex
	sessions map[string]*session.Session
}

func NewChatHandler(ctx context.Context, st store.RoomStore, bus *notify.Bus, pollInterval time.Duration) *ChatHandler {
	return &ChatHandler{
		ctx:          ctx,
		store:        st,
		bus:          bus,
		pollInterval: pollInterval,
		sessions:     make(map[string]*session.Session),
	}
}

// sessionFor returns the user's session, creating and starting it on first
// use. Sessions run until the handler's context is cancelled.
func (h *ChatHandler) sessionFor(user chat.User) (*session.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions[user.ID]; ok {
		return s, nil
	}
	s, err := session.New(h.ctx, h.store, h.bus, user,
		session.WithPollInterval(h.pollInterval))
	if err != nil {
		return nil, err
	}
	go s.Run(h.ctx)
	h.sessions[user.ID] = s
	return s, nil
}

type RoomCreatePayload struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

type MessageCreatePayload struct {
	Text     string `json:"text"`
	MediaURL string `json:"mediaUrl"`
	ReplyTo  string `json:"replyTo"`
}

type MessageEditPayload struct {
	Text string `json:"text"`
}

type ReactPayload struct {
	Type string `json:"type"`
}

type RoomSummaryResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatorID    string    `json:"creatorId"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	MessageCount int       `json:"messageCount"`
}

func NewRoomSummaryResponse(room chat.Room) RoomSummaryResponse {
	return RoomSummaryResponse{
		ID:           room.ID,
		Name:         room.Name,
		CreatorID:    room.CreatorID,
		AvatarURL:    room.AvatarURL,
		CreatedAt:    room.CreatedAt,
		MessageCount: len(room.Messages),
	}
}

func NewRoomSummariesResponse(rooms []chat.Room) []RoomSummaryResponse {
	out := make([]RoomSummaryResponse, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, NewRoomSummaryResponse(room))
	}
	return out
}

// mapChatError translates domain errors into API error envelopes.
func mapChatError(err error) error {
	var verr validator.ValidationErrors
	switch {
	case errors.Is(err, chat.ErrDuplicateRoomName):
		return NewAPIError(err.Error(), http.StatusConflict)
	case errors.Is(err, chat.ErrUnauthorized):
		return NewAPIError(err.Error(), http.StatusForbidden)
	case errors.Is(err, chat.ErrRoomNotFound), errors.Is(err, chat.ErrMessageNotFound):
		return NewAPIError(err.Error(), http.StatusNotFound)
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrInvalidReply):
		return NewAPIError(err.Error(), http.StatusBadRequest)
	case errors.As(err, &verr):
		return NewAPIError(verr.Error(), http.StatusBadRequest)
	default:
		return err
	}
}

// requestSession resolves the server-side session for the request's user.
func (h *ChatHandler) requestSession(r *http.Request) (*session.Session, error) {
	return h.sessionFor(sessionFromRequest(r).User())
}

func (h *ChatHandler) ListRoomsHandler(w http.ResponseWriter, r *http.Request) error {
	s, err := h.requestSession(r)
	if err != nil {
		return err
	}
	return WriteJSON(w, NewRoomSummariesResponse(s.Rooms()))
}

func (h *ChatHandler) GetRoomHandler(w http.ResponseWriter, r *http.Request) error {
	s, err := h.requestSession(r)
	if err != nil {
		return err
	}
	room := chat.FindRoom(s.Rooms(), r.PathValue("roomID"))
	if room == nil {
		return NewAPIError(chat.ErrRoomNotFound.Error(), http.StatusNotFound)
	}
	return WriteJSON(w, room)
}

func (h *ChatHandler) CreateRoomHandler(w http.ResponseWriter, r *http.Request) error {
	var payload RoomCreatePayload
	if err := DecodeJSON(r.Body, &payload); err != nil {
		return NewAPIError("invalid json", http.StatusBadRequest)
	}
	defer r.Body.Close()

	s, err := h.requestSession(r)
	if err != nil {
		return err
	}
	created, err := s.CreateRoom(r.Context(), payload.Name, payload.AvatarURL)
	if err != nil {
		return mapChatError(err)
	}
	return WriteJSONStatus(w, NewRoomSummaryResponse(created), http.StatusCreated)
}

func (h *ChatHandler) DeleteRoomHandler(w http.ResponseWriter, r *http.Request) error {
	s, err := h.requestSession(r)
	if err != nil {
		return err
	}
	if err := s.DeleteRoom(r.Context(), r.PathValue("roomID")); err != nil {
		return mapChatError(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// GetRoomMessagesHandler marks the room as the user's open room, so the
// polling refresher keeps re-reading it, and serves its messages from the
// session cache.
func (h *ChatHandler) GetRoomMessagesHandler(w http.ResponseWriter, r *http.Request) error {
	s, err := h.requestSession(r)
	if err != nil {
		return err
	}
	if err := s.OpenRoom(r.PathValue("roomID")); err != nil {
		return mapChatError(err)
	}
	room, ok := s.ActiveRoom()
	if !ok {
		return NewAPIError(chat.ErrRoomNotFound.Error(), http.StatusNotFound)
	}
	if room.Messages == nil {
		room.Messages = []chat.Message{}
	}
	return WriteJSON(w, room.Messages)
}

func (h *ChatHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) error {
	var payload MessageCreatePayload
	if err := DecodeJSON(r.Body, &payload); err != nil {
		return NewAPIError("invalid json", http.StatusBadRequest)
	}
	defer r.Body.Close()

	s, err := h.requestSession(r)
	if err != nil {
		return err
	}
	created, err := s.PostMessage(r.Context(), r.PathValue("roomID"), session.MessageInput{
		Text:     payload.Text,
		MediaURL: payload.MediaURL,
		ReplyTo:  payload.ReplyTo,
	})
	if err != nil {
		return mapChatError(err)
	}
	return WriteJSONStatus(w, created, http.StatusCreated)
}

func (h *ChatHandler) EditMessageHandler(w http.ResponseWriter, r *http.Request) error {
	var payload MessageEditPayload
	if err := DecodeJSON(r.Body, &payload); err != nil {
		return NewAPIError("invalid json", http.StatusBadRequest)
	}
	defer r.Body.Close()

	s, err := h.requestSession(r)
	if err != nil {
		return err
	}
	edited, err := s.EditMessage(r.Context(), r.PathValue("roomID"), r.PathValue("messageID"), payload.Text)
	if err != nil {
		return mapChatError(err)
	}
	return WriteJSON(w, edited)
}

func (h *ChatHandler) DeleteMessageHandler(w http.ResponseWriter, r *http.Request) error {
	s, err := h.requestSession(r)
	if err != nil {
		return err
	}
	if err := s.DeleteMessage(r.Context(), r.PathValue("roomID"), r.PathValue("messageID")); err != nil {
		return mapChatError(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *ChatHandler) ReactHandler(w http.ResponseWriter, r *http.Request) error {
	var payload ReactPayload
	if err := DecodeJSON(r.Body, &payload); err != nil {
		return NewAPIError("invalid json", http.StatusBadRequest)
	}
	defer r.Body.Close()

	if payload.Type == "" {
		return NewAPIError("missing reaction type", http.StatusBadRequest)
	}

	s, err := h.requestSession(r)
	if err != nil {
		return err
	}
	reactions, err := s.React(r.Context(), r.PathValue("roomID"), r.PathValue("messageID"), payload.Type)
	if err != nil {
		return mapChatError(err)
	}
	if reactions == nil {
		reactions = []chat.Reaction{}
	}
	return WriteJSON(w, reactions)
}

func (h *ChatHandler) ListReactionsHandler(w http.ResponseWriter, r *http.Request) error {
	return WriteJSON(w, chat.DefaultReactions)
}
