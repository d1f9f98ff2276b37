package main

import (
	"context"
	"database/sql"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"

	"example.com/localchat/internal/api"
	"example.com/localchat/pkg/auth"
	"example.com/localchat/pkg/config"
	"example.com/localchat/pkg/logger"
	"example.com/localchat/pkg/notify"
	"example.com/localchat/pkg/server"
	"example.com/localchat/pkg/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Pretty)

	serverCtx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	defer stop()

	bus := notify.NewBus()

	roomStore, watcher, err := openStore(cfg, bus)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	if watcher != nil {
		watcher.Start(serverCtx)
	}

	apiConfig := api.Config{
		TokenOptions: auth.TokenOptions{
			Secret: cfg.Auth.Secret,
			Exp:    cfg.Auth.TokenExp,
		},
		AllowedOrigins: cfg.AllowedOrigins,
		PollInterval:   cfg.Poll.Interval,
	}
	_api := api.New(serverCtx, roomStore, bus, apiConfig)

	r := chi.NewRouter()
	r.Mount("/api", _api.Mux())

	srv := server.Server{
		Server: &http.Server{
			Handler: r,
			Addr:    cfg.Addr(),
		},
		CleanupFuncs: []func(ctx context.Context){
			func(ctx context.Context) {
				if watcher != nil {
					if err := watcher.Close(); err != nil {
						log.Error().Err(err).Msg("close watcher")
					}
				}
				if err := roomStore.Close(); err != nil {
					log.Error().Err(err).Msg("close store")
				}
			},
		},
	}

	srv.Start(serverCtx)
}

// openStore builds the configured store backend. The file backend also gets
// a filesystem watcher so writes from other processes reach the bus.
func openStore(cfg *config.Config, bus *notify.Bus) (store.RoomStore, *notify.Watcher, error) {
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		db, err := sql.Open("sqlite3", "file:"+cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		goose.SetBaseFS(nil)
		if err := goose.SetDialect("sqlite3"); err != nil {
			return nil, nil, err
		}
		if err := goose.Up(db, cfg.Store.Migrations); err != nil {
			return nil, nil, err
		}
		return store.NewSQLiteStore(db), nil, nil

	case config.BackendPebble:
		s, err := store.OpenPebbleStore(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil

	default:
		s, err := store.OpenFileStore(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		watcher, err := notify.NewWatcher(s.Path(), bus)
		if err != nil {
			return nil, nil, err
		}
		return s, watcher, nil
	}
}
