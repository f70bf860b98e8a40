package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chainmirror/internal/storage"
)

// handleIndex returns basic service information
// GET / - Returns service info and available endpoints
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	info := map[string]interface{}{
		"service":     "chainmirror",
		"version":     "1.0.0",
		"description": "Durable off-chain mirror of contract event logs",
		"endpoints": map[string]string{
			"GET /":              "This page - Service information",
			"GET /health":        "Health check endpoint",
			"GET /metrics":       "Prometheus metrics for monitoring",
			"GET /sync/state":    "Current sync checkpoint",
			"POST /sync/trigger": "Run one sync cycle now",
			"POST /sync/reset":   "Reset checkpoint (?block=N)",
			"GET /events":        "Query events (?name=, ?from=&to=, ?tx=, ?limit=)",
			"GET /events/latest": "Latest events (?limit=, ?parsed=true)",
		},
	}

	s.sendJSON(w, http.StatusOK, info)
}

// handleHealth returns health status, pinging each storage backend
// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := http.StatusOK
	backends := make(map[string]string, len(s.backends))
	for name, backend := range s.backends {
		if err := backend.Ping(ctx); err != nil {
			backends[name] = "unhealthy: " + err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		backends[name] = "healthy"
	}

	s.sendJSON(w, status, map[string]interface{}{
		"status":    healthLabel(status),
		"backends":  backends,
		"timestamp": time.Now().UTC(),
		"service":   "chainmirror",
	})
}

func healthLabel(status int) string {
	if status == http.StatusOK {
		return "healthy"
	}
	return "unhealthy"
}

// handleMetrics returns Prometheus metrics
// GET /metrics - Prometheus scraping endpoint
func (s *Server) handleMetrics() http.Handler {
	return promhttp.Handler()
}

// handleSyncState returns the current checkpoint
// GET /sync/state
func (s *Server) handleSyncState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cp, err := s.state.GetState(r.Context())
	if err != nil {
		slog.Error("Failed to read sync state", "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.sendJSON(w, http.StatusOK, cp)
}

// handleSyncTrigger runs one sync cycle
// POST /sync/trigger
func (s *Server) handleSyncTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cp, err := s.syncer.RunCycle(r.Context())
	if errors.Is(err, storage.ErrLeaseHeld) {
		s.sendError(w, "A sync cycle is already running", http.StatusConflict)
		return
	}
	if err != nil {
		slog.Error("Triggered sync cycle failed", "error", err)
		s.sendError(w, "Sync cycle failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	s.sendJSON(w, http.StatusOK, cp)
}

// handleSyncReset resets the checkpoint to the given block
// POST /sync/reset?block=N
func (s *Server) handleSyncReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	block, ok := parseUintParam(r, "block")
	if !ok {
		s.sendError(w, "Query parameter 'block' is required", http.StatusBadRequest)
		return
	}

	cp, err := s.syncer.ResetSyncState(r.Context(), block)
	if err != nil {
		slog.Error("Failed to reset sync state", "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.sendJSON(w, http.StatusOK, cp)
}

// handleEvents queries mirrored events
// GET /events?name=DataRegistered&limit=50
// GET /events?from=100&to=200&limit=50
// GET /events?tx=0xabc...
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	query := r.URL.Query()
	limit := parseLimit(r, 50)

	switch {
	case query.Get("tx") != "":
		events, err := s.events.ByTransactionHash(ctx, query.Get("tx"))
		s.sendEvents(w, events, err)

	case query.Get("name") != "":
		events, err := s.events.ByEventName(ctx, query.Get("name"), limit)
		s.sendEvents(w, events, err)

	case query.Get("from") != "" || query.Get("to") != "":
		from, okFrom := parseUintParam(r, "from")
		to, okTo := parseUintParam(r, "to")
		if !okFrom || !okTo || from > to {
			s.sendError(w, "Query parameters 'from' and 'to' must form a valid range", http.StatusBadRequest)
			return
		}
		events, err := s.events.ByBlockRange(ctx, from, to, limit)
		s.sendEvents(w, events, err)

	default:
		s.sendError(w, "One of 'name', 'tx' or 'from'/'to' is required", http.StatusBadRequest)
	}
}

// handleLatestEvents lists the most recent events
// GET /events/latest?limit=20&parsed=true
func (s *Server) handleLatestEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	limit := parseLimit(r, 20)

	if r.URL.Query().Get("parsed") == "true" {
		events, err := s.events.LatestWithParsedArgs(ctx, limit)
		s.sendEvents(w, events, err)
		return
	}

	events, err := s.events.Latest(ctx, limit)
	s.sendEvents(w, events, err)
}
