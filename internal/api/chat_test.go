package api_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/localchat/internal/api"
	"example.com/localchat/pkg/chat"
	"example.com/localchat/pkg/store"
)

func createRoom(t *testing.T, c *userClient, name string) api.RoomSummaryResponse {
	res := c.do(http.MethodPost, "/rooms/", api.RoomCreatePayload{Name: name})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var room api.RoomSummaryResponse
	decode(t, res, &room)
	return room
}

func postMessage(t *testing.T, c *userClient, roomID, text string) chat.Message {
	res := c.do(http.MethodPost, "/rooms/"+roomID+"/messages", api.MessageCreatePayload{Text: text})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var msg chat.Message
	decode(t, res, &msg)
	return msg
}

func TestRoomEndpoints(t *testing.T) {

	t.Run("requires authentication", func(t *testing.T) {
		a := setupTestAPI(t)
		res, err := a.Server.Client().Get(a.Server.URL + "/rooms/")
		require.Nil(t, err)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	})

	t.Run("create and list", func(t *testing.T) {
		a := setupTestAPI(t)
		alice := login(t, a, "alice")

		room := createRoom(t, alice, "General")
		assert.Equal(t, "alice", room.CreatorID)
		assert.Equal(t, "General", room.Name)

		res := alice.do(http.MethodGet, "/rooms/", nil)
		require.Equal(t, http.StatusOK, res.StatusCode)
		var rooms []api.RoomSummaryResponse
		decode(t, res, &rooms)
		require.Len(t, rooms, 1)
		assert.Equal(t, room.ID, rooms[0].ID)
	})

	t.Run("duplicate name conflicts", func(t *testing.T) {
		a := setupTestAPI(t)
		alice := login(t, a, "alice")
		createRoom(t, alice, "General")

		res := alice.do(http.MethodPost, "/rooms/", api.RoomCreatePayload{Name: " General "})
		assert.Equal(t, http.StatusConflict, res.StatusCode)
	})

	t.Run("non-creator cannot delete", func(t *testing.T) {
		a := setupTestAPI(t)
		alice := login(t, a, "alice")
		room := createRoom(t, alice, "General")

		bob := login(t, a, "bob")
		res := bob.do(http.MethodDelete, "/rooms/"+room.ID, nil)
		assert.Equal(t, http.StatusForbidden, res.StatusCode)

		res = alice.do(http.MethodGet, "/rooms/", nil)
		var rooms []api.RoomSummaryResponse
		decode(t, res, &rooms)
		assert.Len(t, rooms, 1)
	})

	t.Run("creator deletes", func(t *testing.T) {
		a := setupTestAPI(t)
		alice := login(t, a, "alice")
		room := createRoom(t, alice, "General")

		res := alice.do(http.MethodDelete, "/rooms/"+room.ID, nil)
		assert.Equal(t, http.StatusNoContent, res.StatusCode)

		res = alice.do(http.MethodGet, "/rooms/"+room.ID, nil)
		assert.Equal(t, http.StatusNotFound, res.StatusCode)
	})
}

func TestMessageEndpoints(t *testing.T) {

	t.Run("post and list", func(t *testing.T) {
		a := setupTestAPI(t)
		alice := login(t, a, "alice")
		room := createRoom(t, alice, "General")

		msg := postMessage(t, alice, room.ID, "hi")
		assert.Equal(t, "alice", msg.UserID)

		res := alice.do(http.MethodGet, "/rooms/"+room.ID+"/messages", nil)
		require.Equal(t, http.StatusOK, res.StatusCode)
		var msgs []chat.Message
		decode(t, res, &msgs)
		require.Len(t, msgs, 1)
		assert.Equal(t, "hi", msgs[0].Text)
	})

	t.Run("empty message rejected", func(t *testing.T) {
		a := setupTestAPI(t)
		alice := login(t, a, "alice")
		room := createRoom(t, alice, "General")

		res := alice.do(http.MethodPost, "/rooms/"+room.ID+"/messages", api.MessageCreatePayload{Text: "   "})
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("stale reply reference rejected at post time", func(t *testing.T) {
		a := setupTestAPI(t)
		alice := login(t, a, "alice")
		room := createRoom(t, alice, "General")

		res := alice.do(http.MethodPost, "/rooms/"+room.ID+"/messages",
			api.MessageCreatePayload{Text: "hi", ReplyTo: "missing"})
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("edit is author-only", func(t *testing.T) {
		a := setupTestAPI(t)
		alice := login(t, a, "alice")
		room := createRoom(t, alice, "General")
		msg := postMessage(t, alice, room.ID, "hi")

		bob := login(t, a, "bob")
		res := bob.do(http.MethodPut, "/rooms/"+room.ID+"/messages/"+msg.ID,
			api.MessageEditPayload{Text: "hacked"})
		assert.Equal(t, http.StatusForbidden, res.StatusCode)

		res = alice.do(http.MethodPut, "/rooms/"+room.ID+"/messages/"+msg.ID,
			api.MessageEditPayload{Text: "hello"})
		require.Equal(t, http.StatusOK, res.StatusCode)
		var edited chat.Message
		decode(t, res, &edited)
		assert.Equal(t, "hello", edited.Text)
		assert.True(t, edited.Edited)
	})

	t.Run("delete is author-only", func(t *testing.T) {
		a := setupTestAPI(t)
		alice := login(t, a, "alice")
		room := createRoom(t, alice, "General")
		msg := postMessage(t, alice, room.ID, "hi")

		bob := login(t, a, "bob")
		res := bob.do(http.MethodDelete, "/rooms/"+room.ID+"/messages/"+msg.ID, nil)
		assert.Equal(t, http.StatusForbidden, res.StatusCode)

		res = alice.do(http.MethodDelete, "/rooms/"+room.ID+"/messages/"+msg.ID, nil)
		assert.Equal(t, http.StatusNoContent, res.StatusCode)
	})

	t.Run("reaction toggles", func(t *testing.T) {
		a := setupTestAPI(t)
		alice := login(t, a, "alice")
		room := createRoom(t, alice, "General")
		msg := postMessage(t, alice, room.ID, "hi")

		bob := login(t, a, "bob")
		path := "/rooms/" + room.ID + "/messages/" + msg.ID + "/reactions"

		res := bob.do(http.MethodPost, path, api.ReactPayload{Type: "🔥"})
		require.Equal(t, http.StatusOK, res.StatusCode)
		var reactions []chat.Reaction
		decode(t, res, &reactions)
		require.Len(t, reactions, 1)
		assert.Equal(t, "🔥", reactions[0].Type)

		res = bob.do(http.MethodPost, path, api.ReactPayload{Type: "🔥"})
		require.Equal(t, http.StatusOK, res.StatusCode)
		decode(t, res, &reactions)
		assert.Empty(t, reactions)
	})
}

// A write that bypasses the API entirely (another process on the same store
// file; no bus, no watcher here) must still become visible: the server-side
// session's polling refresher re-reads the open room from the store.
func TestPollingRefreshesOpenRoom(t *testing.T) {
	a := setupTestAPI(t)
	alice := login(t, a, "alice")
	room := createRoom(t, alice, "General")

	// Opens the room for alice's session.
	res := alice.do(http.MethodGet, "/rooms/"+room.ID+"/messages", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()

	external, err := store.OpenFileStore(a.Store.Path())
	require.Nil(t, err)
	ctx := context.Background()
	rooms, err := external.Load(ctx)
	require.Nil(t, err)
	rooms, _, err = chat.AppendMessage(rooms, room.ID, chat.MessageCreateInput{
		Text: "from outside", UserID: "eve", UserName: "eve",
	})
	require.Nil(t, err)
	require.Nil(t, external.Save(ctx, rooms))

	require.Eventually(t, func() bool {
		res := alice.do(http.MethodGet, "/rooms/"+room.ID+"/messages", nil)
		var msgs []chat.Message
		decode(t, res, &msgs)
		return len(msgs) == 1 && msgs[0].Text == "from outside"
	}, 2*time.Second, 25*time.Millisecond)
}

func TestAuthEndpoints(t *testing.T) {

	t.Run("me returns the logged in user", func(t *testing.T) {
		a := setupTestAPI(t)
		alice := login(t, a, "alice")

		res := alice.do(http.MethodGet, "/auth/me", nil)
		require.Equal(t, http.StatusOK, res.StatusCode)
		var user chat.User
		decode(t, res, &user)
		assert.Equal(t, "alice", user.ID)
	})

	t.Run("empty name rejected", func(t *testing.T) {
		a := setupTestAPI(t)
		c := a.Server.Client()
		res, err := c.Post(a.Server.URL+"/auth/login", "application/json",
			jsonBody(t, api.LoginPayload{Name: "  "}))
		require.Nil(t, err)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})
}
