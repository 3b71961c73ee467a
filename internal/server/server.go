// Package server exposes a headless JSON control surface over the
// workspace: workbook state, sheet and cell lifecycle, cell runs,
// cancellation, downstream queries, and result pages.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/cellflow/internal/engine"
)

// Server is the HTTP API server.
type Server struct {
	engine       *engine.Engine
	host         string
	port         int
	cacheResults bool
	logger       *slog.Logger
}

// Config holds server settings.
type Config struct {
	Engine       *engine.Engine
	Host         string
	Port         int
	CacheResults bool
	Logger       *slog.Logger
}

// NewServer creates a new API server instance.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		engine:       cfg.Engine,
		host:         cfg.Host,
		port:         cfg.Port,
		cacheResults: cfg.CacheResults,
		logger:       logger,
	}
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.logger.Info("starting API server", "addr", addr)

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down API server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// Router builds the API route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewMux()
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Route("/api", func(r chi.Router) {
		r.Get("/workbook", s.handleGetWorkbook)

		r.Route("/sheets", func(r chi.Router) {
			r.Get("/", s.handleListSheets)
			r.Post("/", s.handleAddSheet)
			r.Route("/{sheetID}", func(r chi.Router) {
				r.Delete("/", s.handleRemoveSheet)
				r.Post("/cells", s.handleAddCell)
				r.Delete("/cells/{cellID}", s.handleRemoveCell)
				r.Post("/run", s.handleRunSheet)
				r.Get("/downstream/{cellID}", s.handleGetDownstream)
			})
		})

		r.Route("/cells/{cellID}", func(r chi.Router) {
			r.Patch("/", s.handleUpdateCell)
			r.Get("/status", s.handleGetStatus)
			r.Post("/run", s.handleRunCell)
			r.Post("/cancel", s.handleCancelCell)
			r.Post("/rename", s.handleRenameResult)
			r.Get("/result", s.handleGetResultPage)
		})
	})

	return r
}
