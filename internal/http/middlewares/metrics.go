package middlewares

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/opslinkcad/internal/metrics"
)

// WithMetrics instrumenta requests (contador, latencia, inflight). El label
// path usa el patrón de chi cuando existe.
func WithMetrics(m *metrics.Metrics) Middleware {
	if m == nil {
		return nil
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			method := strings.ToUpper(r.Method)
			inflightPath := metrics.NormalizePath(r.URL.Path)
			done := m.TrackInflight(method, inflightPath)
			start := time.Now()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			defer func() {
				done()
				path := inflightPath
				if rc := chi.RouteContext(r.Context()); rc != nil {
					if pattern := rc.RoutePattern(); pattern != "" {
						path = pattern
					}
				}
				m.ObserveHTTP(method, path, rec.status, time.Since(start))
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
