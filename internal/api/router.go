/**
 * @description
 * HTTP router setup for the prize-service using go-chi/chi.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new Chi router and registers the prize routes.
func NewRouter(h *Handler, internalKey string, gatherer prometheus.Gatherer) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Prize service is healthy"))
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Get("/leaderboard", h.handleLeaderboard)
		r.Post("/participants", h.handleRegisterParticipant)
		r.Get("/participants/{participantID}/collection", h.handleCollection)
		r.Post("/prizes/{prizeID}/claims", h.handleClaim)
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalKey))
		r.With(middleware.Timeout(60*time.Second)).Get("/prizes", h.handleListPrizes)
		r.With(middleware.Timeout(60*time.Second)).Post("/prizes", h.handleUploadPrize)
		// A round runs to completion on its own deadline.
		r.Post("/rounds", h.handleStartRound)
	})

	return r
}
