package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"chainmirror/internal/models"
)

// sendJSON writes a JSON response with the given status code.
func (s *Server) sendJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// sendError writes a JSON error response.
func (s *Server) sendError(w http.ResponseWriter, message string, status int) {
	s.sendJSON(w, status, map[string]string{"error": message})
}

// sendEvents writes an event list, normalizing nil slices and errors.
func (s *Server) sendEvents(w http.ResponseWriter, events []models.BlockchainEvent, err error) {
	if err != nil {
		slog.Error("Event query failed", "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []models.BlockchainEvent{}
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(events),
		"events": events,
	})
}

// parseLimit reads ?limit=, clamped to [1, 100].
func parseLimit(r *http.Request, defaultLimit int) int {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return defaultLimit
	}
	parsed, err := strconv.Atoi(limitStr)
	if err != nil || parsed < 1 {
		return defaultLimit
	}
	if parsed > 100 {
		return 100
	}
	return parsed
}

// parseUintParam reads a uint64 query parameter.
func parseUintParam(r *http.Request, name string) (uint64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false
	}
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}
