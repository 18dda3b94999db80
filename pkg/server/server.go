// Package server is the public composition root of the ST-Manager service.
// It wires the store, index, scanner, automation pipeline, and HTTP router so
// an embedding binary can host the full service from one call.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/wt7141789/ST-Manager/internal/api"
	"github.com/wt7141789/ST-Manager/internal/api/handlers"
	"github.com/wt7141789/ST-Manager/internal/automation"
	"github.com/wt7141789/ST-Manager/internal/cards"
	"github.com/wt7141789/ST-Manager/internal/config"
	"github.com/wt7141789/ST-Manager/internal/index"
	"github.com/wt7141789/ST-Manager/internal/scanner"
	"github.com/wt7141789/ST-Manager/internal/store"
	"github.com/wt7141789/ST-Manager/internal/telemetry"
)

// Server holds the initialized ST-Manager service.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the SQLite-backed metadata store.
	Store *store.Store

	// Index is the in-memory card cache.
	Index *index.Index

	// Scanner reconciles the cards directory in the background.
	Scanner *scanner.Scanner

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes all components and returns a ready Server. The index
// starts in the initializing state; call InitServices to load it.
func New(ctx context.Context) (*Server, error) {
	cfg := config.Load()

	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	log.Info().Str("data_dir", cfg.DataDir).Msg("store opened")

	ix := index.New(st)
	extractor := cards.PNGExtractor{}
	sc := scanner.New(cfg.CardsDir, st, ix, extractor,
		cfg.Scanner.SweepInterval, cfg.Scanner.Debounce)
	svc := automation.NewService(st, ix, extractor, cfg.CardsDir,
		cfg.Batch.Workers, cfg.Batch.DeepTimeout)

	h := handlers.New(st, ix, svc, sc, cfg.Version)
	router := api.NewRouter(cfg, h)

	return &Server{
		Handler:      router,
		Store:        st,
		Index:        ix,
		Scanner:      sc,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}

// InitServices loads the cache and starts the background scanner. Meant to
// run detached so HTTP serving is not blocked; requests arriving before it
// finishes get a retryable not-ready response. The status value transitions
// initializing → ready, or initializing → error and stays there until the
// next reload.
func (s *Server) InitServices(ctx context.Context) {
	s.Index.SetStatus(index.StatusInitializing, "loading card cache")

	if err := s.Index.Reload(ctx); err != nil {
		log.Error().Err(err).Msg("cache load failed")
		s.Index.SetStatus(index.StatusError, err.Error())
		return
	}

	if err := s.Scanner.Start(ctx); err != nil {
		log.Error().Err(err).Msg("scanner start failed")
		s.Index.SetStatus(index.StatusError, err.Error())
		return
	}

	s.Index.SetStatus(index.StatusReady, "service ready")
	log.Info().Int("cards", s.Index.Len()).Msg("background services started")
}

// Close releases all resources.
func (s *Server) Close() {
	s.Scanner.Stop()
	s.Store.Close()
}
