// Package server wraps http.Server with context-driven graceful shutdown.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

type Server struct {
	*http.Server
	// CleanupFuncs run after the server has shut down, for closing stores,
	// watchers and the like.
	CleanupFuncs []func(ctx context.Context)
	// ShutdownTimeout bounds graceful shutdown. Zero falls back to 20s.
	ShutdownTimeout time.Duration
}

// Start serves until ctx is cancelled, then shuts down gracefully and runs
// the cleanup funcs. It blocks until shutdown completes.
func (s *Server) Start(ctx context.Context) {
	s.Server.BaseContext = func(_ net.Listener) context.Context {
		return ctx
	}

	timeout := s.ShutdownTimeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}

	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		log.Info().Msg("server shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := s.Server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed, forcing exit")
			os.Exit(1)
		}

		for _, cleanup := range s.CleanupFuncs {
			cleanup(shutdownCtx)
		}
		close(done)
	}()

	log.Info().Str("addr", s.Server.Addr).Msg("server started")

	err := s.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server exit")
		os.Exit(1)
	}

	<-done
}
