// Package api exposes a read-only HTTP status surface for a running bus
// host: health, channel depth, and recent bus events. It is an operational
// window onto the bus, not part of the dispatch core.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mattjoyce/courier/internal/events"
	"github.com/mattjoyce/courier/internal/log"
)

// DepthReporter reports how many frames a channel currently buffers.
type DepthReporter interface {
	Depth(ctx context.Context) (int, error)
}

// Config holds API server configuration.
type Config struct {
	Listen      string
	ChannelName string
}

// Server represents the HTTP status server.
type Server struct {
	config    Config
	channel   DepthReporter
	hub       *events.Hub
	workers   []string
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new status server instance.
func New(config Config, channel DepthReporter, hub *events.Hub, workers []string) *Server {
	return &Server{
		config:    config,
		channel:   channel,
		hub:       hub,
		workers:   workers,
		logger:    log.WithComponent("api"),
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking until ctx is cancelled).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("status server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("status server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the configured router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/v1/status", s.handleStatus)
	r.Get("/v1/events", s.handleEvents)

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
