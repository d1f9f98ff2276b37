package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// HandlerFunc is an http handler that reports failure through its return
// value instead of writing error responses inline.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

func (h HandlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := h(w, r)
	if err == nil {
		return
	}

	if apiErr, ok := err.(*APIError); ok {
		if err := WriteJSONStatus(w, apiErr, apiErr.Code); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	log.Error().Err(err).Str("path", r.URL.Path).Msg("internal server error")
	apiErr := NewAPIError("internal server error", http.StatusInternalServerError)
	if err := WriteJSONStatus(w, apiErr, apiErr.Code); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// Middleware wraps a handler in a HandlerFunc so middleware failures use the
// same error envelope.
type Middleware func(http.Handler) HandlerFunc

// Mux is a chi router that mounts HandlerFuncs.
type Mux struct {
	chi.Router
}

func NewMux() *Mux {
	return &Mux{Router: chi.NewRouter()}
}

func (m *Mux) Get(path string, h HandlerFunc) {
	m.Router.Get(path, h.ServeHTTP)
}

func (m *Mux) Post(path string, h HandlerFunc) {
	m.Router.Post(path, h.ServeHTTP)
}

func (m *Mux) Put(path string, h HandlerFunc) {
	m.Router.Put(path, h.ServeHTTP)
}

func (m *Mux) Delete(path string, h HandlerFunc) {
	m.Router.Delete(path, h.ServeHTTP)
}

func (m *Mux) Route(path string, f func(r *Mux)) {
	m.Router.Route(path, func(r chi.Router) {
		f(&Mux{Router: r})
	})
}

func (m *Mux) Use(middleware Middleware) {
	m.Router.Use(func(h http.Handler) http.Handler {
		return middleware(h)
	})
}

func (m *Mux) With(middleware Middleware) *Mux {
	r := m.Router.With(func(h http.Handler) http.Handler {
		return middleware(h)
	})
	return &Mux{Router: r}
}
