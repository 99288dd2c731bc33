package router

import (
	"github.com/go-chi/chi/v5"
)

// registerHealthRoutes registra /health y /metrics (sin auth).
func registerHealthRoutes(r chi.Router, d Deps) {
	if d.Health != nil {
		r.Get("/health", d.Health.Health)
	}
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}
}
