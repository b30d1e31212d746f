// Package handler provides HTTP handlers for the read-only status API.
// All writes go through the Discord command surface; these endpoints only
// expose what the engine already knows.
package handler

import (
	"net/http"
	"time"

	"github.com/guan4tou2/discord-ctf-remind-bot/internal/api/respond"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/db"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/store"
)

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	st   store.Store
	pool *db.Pool // nil when running on the memory backend
	now  func() time.Time
}

// New creates a Handler. pool may be nil.
func New(st store.Store, pool *db.Pool) *Handler {
	return &Handler{st: st, pool: pool, now: time.Now}
}

// Root serves API info at /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "CTF Remind Bot API",
		"version": "1.0.0",
		"status":  "running",
	})
}

// HealthCheck returns basic health status.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity. On the memory backend there
// is nothing to ping and the endpoint reports that instead of failing.
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
			"status":    "healthy",
			"database":  "memory",
			"timestamp": h.now().UTC().Format(time.RFC3339),
		})
		return
	}

	if err := h.pool.HealthCheck(r.Context()); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": h.now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}
