package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	Health *HealthHandler
	Log    *slog.Logger
	// Metrics serves the Prometheus exposition; defaults to the global
	// registry.
	Metrics http.Handler
}

// NewRouter builds the operational surface: liveness, readiness and metrics.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(d.Log))

	metricsHandler := d.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r.Get("/health", d.Health.Live)
	r.Get("/ready", d.Health.Ready)
	r.Method(http.MethodGet, "/metrics", metricsHandler)
	return r
}
