package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"chainmirror/internal/storage"
	"chainmirror/internal/syncer"
)

// Pinger is implemented by storage backends that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP surface over the mirror: sync state, event queries,
// manual sync controls, health and Prometheus metrics.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	events     storage.EventRepository
	state      storage.StateRepository
	syncer     *syncer.Syncer
	backends   map[string]Pinger
	port       int
}

// NewServer creates a new API server instance.
func NewServer(
	port int,
	events storage.EventRepository,
	state storage.StateRepository,
	sync *syncer.Syncer,
	backends map[string]Pinger,
) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		mux:      mux,
		events:   events,
		state:    state,
		syncer:   sync,
		backends: backends,
		port:     port,
	}

	s.registerRoutes()

	return s
}

// registerRoutes sets up all HTTP routes
func (s *Server) registerRoutes() {
	// Core endpoints
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", s.handleMetrics())

	// Sync endpoints
	s.mux.HandleFunc("/sync/state", s.handleSyncState)
	s.mux.HandleFunc("/sync/trigger", s.handleSyncTrigger)
	s.mux.HandleFunc("/sync/reset", s.handleSyncReset)

	// Event endpoints
	s.mux.HandleFunc("/events", s.handleEvents)
	s.mux.HandleFunc("/events/latest", s.handleLatestEvents)
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("API server starting",
			"port", s.port,
			"endpoints", []string{"/", "/health", "/metrics", "/sync/state", "/events"},
		)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server error", "error", err)
		}
	}()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("API server shutting down...")
	return s.httpServer.Shutdown(ctx)
}
