package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"example.com/localchat/pkg/notify"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// RoomsChangedEvent is pushed to every connected client when the room
// collection changes, whichever session or process changed it.
const RoomsChangedEvent = "rooms_changed"

type wsEvent struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// Hub fans store changes out to websocket clients. Clients are read-only
// consumers of state: mutations go through the REST handlers, which publish
// to the bus the hub subscribes to.
type Hub struct {
	bus      *notify.Bus
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub(bus *notify.Bus, checkOrigin func(*http.Request) bool) *Hub {
	return &Hub{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		log:     log.With().Str("component", "ws-hub").Logger(),
		clients: make(map[*wsClient]struct{}),
	}
}

// Run pumps bus changes to connected clients until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	changes, cancel := h.bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			event, err := json.Marshal(wsEvent{Type: RoomsChangedEvent, Body: c.Payload})
			if err != nil {
				h.log.Error().Err(err).Msg("marshal event")
				continue
			}
			h.broadcast(event)
		}
	}
}

func (h *Hub) broadcast(event []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- event:
		default:
			// Slow consumer; drop it rather than block the hub.
			delete(h.clients, client)
			close(client.send)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[*wsClient]struct{})
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Handler upgrades the request and streams change events until the client
// disconnects.
func (h *Hub) Handler(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the response.
		h.log.Debug().Err(err).Msg("upgrade failed")
		return nil
	}

	client := &wsClient{conn: conn, send: make(chan []byte, 16)}
	h.register(client)

	go h.writePump(client)
	go h.readPump(client)
	return nil
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, event); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		// Clients send nothing meaningful; reads only surface disconnects.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
