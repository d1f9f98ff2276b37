package api

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/cors"

	"example.com/localchat/pkg/auth"
	"example.com/localchat/pkg/notify"
	"example.com/localchat/pkg/store"
)

type Config struct {
	TokenOptions   auth.TokenOptions
	AllowedOrigins []string
	// PollInterval drives each server-side session's polling refresher.
	// Zero falls back to the session default.
	PollInterval time.Duration
}

// API is the HTTP surface over the shared store: the seam the presentation
// layer talks through. REST endpoints carry the mutations; the websocket
// endpoint streams change notifications back out.
type API struct {
	mux *Mux
	hub *Hub
}

func New(ctx context.Context, st store.RoomStore, bus *notify.Bus, config Config) *API {
	a := &API{mux: NewMux()}
	a.mountHandlers(ctx, st, bus, config)
	return a
}

func (a *API) Mux() http.Handler {
	return a.mux
}

func (a *API) mountHandlers(ctx context.Context, st store.RoomStore, bus *notify.Bus, config Config) {
	tokenAuth := auth.NewTokenAuth(config.TokenOptions)
	authHandler := NewAuthHandler(tokenAuth)
	chatHandler := NewChatHandler(ctx, st, bus, config.PollInterval)

	origins := config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	a.hub = NewHub(bus, func(r *http.Request) bool {
		if slices.Contains(origins, "*") {
			return true
		}
		return slices.Contains(origins, r.Header.Get("Origin"))
	})
	go a.hub.Run(ctx)

	a.mux.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
	}))

	a.mux.Route("/auth", func(r *Mux) {
		r.Post("/login", authHandler.LoginHandler)
		r.Post("/logout", authHandler.LogoutHandler)
		r.With(TokenMiddleware(tokenAuth)).Get("/me", authHandler.MeHandler)
	})

	a.mux.Get("/reactions", chatHandler.ListReactionsHandler)

	a.mux.Route("/rooms", func(r *Mux) {
		r.Use(TokenMiddleware(tokenAuth))
		r.Get("/", chatHandler.ListRoomsHandler)
		r.Post("/", chatHandler.CreateRoomHandler)
		r.Get("/{roomID}", chatHandler.GetRoomHandler)
		r.Delete("/{roomID}", chatHandler.DeleteRoomHandler)
		r.Get("/{roomID}/messages", chatHandler.GetRoomMessagesHandler)
		r.Post("/{roomID}/messages", chatHandler.PostMessageHandler)
		r.Put("/{roomID}/messages/{messageID}", chatHandler.EditMessageHandler)
		r.Delete("/{roomID}/messages/{messageID}", chatHandler.DeleteMessageHandler)
		r.Post("/{roomID}/messages/{messageID}/reactions", chatHandler.ReactHandler)
	})

	a.mux.With(TokenMiddleware(tokenAuth)).Get("/ws", a.hub.Handler)
}
