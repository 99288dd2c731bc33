package middlewares

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/opslinkcad/internal/http/errors"
	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
)

// OriginPolicy es la lista explícita de orígenes permitidos. No admite "*":
// las cookies viajan con credentials.
type OriginPolicy struct {
	allowed map[string]struct{}
}

func trimOrigin(s string) string { return strings.ToLower(strings.TrimRight(strings.TrimSpace(s), "/")) }

func NewOriginPolicy(origins []string) *OriginPolicy {
	p := &OriginPolicy{allowed: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		if o = trimOrigin(o); o != "" && o != "*" {
			p.allowed[o] = struct{}{}
		}
	}
	return p
}

// Allowed reporta si origin está en la lista. Vacío nunca está permitido.
func (p *OriginPolicy) Allowed(origin string) bool {
	o := trimOrigin(origin)
	if p == nil || o == "" {
		return false
	}
	_, ok := p.allowed[o]
	return ok
}

// WithCORS aplica CORS estricto: requests con Origin fuera de la lista se
// rechazan con 403. Requests sin Origin (server-to-server) pasan sin headers.
func WithCORS(p *OriginPolicy, onReject func()) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")
			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")

			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !p.Allowed(origin) {
				if onReject != nil {
					onReject()
				}
				logger.From(r.Context()).Debug("cors rejected", logger.Origin(origin))
				errors.WriteError(w, errors.ErrForbidden)
				return
			}

			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Tenant-ID")
			h.Set("Access-Control-Expose-Headers", "X-Request-ID, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After")
			h.Set("Access-Control-Max-Age", "600")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
