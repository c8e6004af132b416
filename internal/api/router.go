// internal/api/router.go
package api

import (
	"context"
	"net/http"
	"time"

	"rent360-leads/internal/common/auth"
	"rent360-leads/internal/common/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type RouterConfig struct {
	Service           RecommendationService
	Resolver          auth.Resolver
	Policy            *auth.AccessPolicy
	Logger            logger.Logger
	AllowedOrigins    []string
	GenerateRateLimit int
	Checks            map[string]ReadinessCheck
}

// NewRouter wires the recommendation routes. They are served both at
// /broker/discover/recommendations and under the /api prefix the web
// client uses.
func NewRouter(cfg RouterConfig) http.Handler {
	h := NewHandler(cfg.Service, cfg.Logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(instrument(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ready", readiness(cfg.Checks))
	r.Handle("/metrics", promhttp.Handler())

	generateLimit := limitPerBroker(cfg.GenerateRateLimit)
	recs := func(r chi.Router) {
		r.Use(authenticate(cfg.Resolver, cfg.Logger))
		r.With(requireCapability(cfg.Policy, auth.CapRead, cfg.Logger)).Get("/", h.List)
		r.With(
			requireCapability(cfg.Policy, auth.CapGenerate, cfg.Logger),
			generateLimit,
		).Post("/", h.Generate)
		r.With(requireCapability(cfg.Policy, auth.CapUpdate, cfg.Logger)).Patch("/{id}", h.Update)
	}
	r.Route("/broker/discover/recommendations", recs)
	r.Route("/api/broker/discover/recommendations", recs)

	return r
}

func readiness(checks map[string]ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		writeJSON(w, status, map[string]interface{}{"ready": status == http.StatusOK, "checks": results})
	}
}
