// Package api exposes the read-only status HTTP surface.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"

	"github.com/guan4tou2/discord-ctf-remind-bot/internal/api/handler"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/config"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/db"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/store"
)

// NewRouter creates and configures the Chi router with all middleware and
// routes. pool may be nil when the store is memory-backed.
func NewRouter(st store.Store, pool *db.Pool, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TimingMiddleware)
	r.Use(middleware.Compress(5)) // gzip

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type", "Cache-Control"},
		ExposedHeaders:   []string{"X-Process-Time"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	// --- Handler dependencies ---
	h := handler.New(st, pool)

	// --- Routes ---

	r.Get("/", h.Root)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/guilds", h.ListGuilds)
		r.Route("/guilds/{guildID}", func(r chi.Router) {
			r.Get("/events", h.ListEvents)
			r.Get("/events/{eventID}", h.GetEvent)
		})
	})

	return r
}
