// Package router arma el árbol de rutas chi con sus cadenas de middlewares.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	authctrl "github.com/dropDatabas3/opslinkcad/internal/http/controllers/auth"
	communityctrl "github.com/dropDatabas3/opslinkcad/internal/http/controllers/community"
	custodyctrl "github.com/dropDatabas3/opslinkcad/internal/http/controllers/custody"
	healthctrl "github.com/dropDatabas3/opslinkcad/internal/http/controllers/health"
	httperrors "github.com/dropDatabas3/opslinkcad/internal/http/errors"
	mw "github.com/dropDatabas3/opslinkcad/internal/http/middlewares"
	"github.com/dropDatabas3/opslinkcad/internal/metrics"
)

// Deps contiene todo lo que el router necesita. Metrics, Gate, Communities y
// RateLimit.Limiter son opcionales.
type Deps struct {
	Auth        *authctrl.Controllers
	Custody     *custodyctrl.Controller
	Communities *communityctrl.Controller
	Health      *healthctrl.Controller

	// Gate es el handler websocket montado en /ws.
	Gate http.Handler

	Authenticator mw.Authenticator
	CookieName    string

	CORS      *mw.OriginPolicy
	Proxies   *mw.ProxyPolicy
	RateLimit mw.RateLimitConfig
	Metrics   *metrics.Metrics
}

// New construye el handler raíz.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	var onCORSReject func()
	if d.Metrics != nil {
		onCORSReject = d.Metrics.CORSRejected
		if d.RateLimit.OnLimited == nil {
			d.RateLimit.OnLimited = d.Metrics.RateLimited
		}
	}
	if len(d.RateLimit.Whitelist) == 0 {
		d.RateLimit.Whitelist = []string{"/health", "/metrics"}
	}

	use(r,
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithClientIP(d.Proxies),
		mw.WithLogging(),
		mw.WithMetrics(d.Metrics),
		mw.WithSecurityHeaders(),
		mw.WithCORS(d.CORS, onCORSReject),
		mw.WithRateLimit(d.RateLimit),
	)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	requireAuth := mw.RequireAuth(d.Authenticator, d.CookieName)

	registerHealthRoutes(r, d)
	if d.Auth != nil {
		registerAuthRoutes(r, d.Auth, requireAuth)
	}
	if d.Custody != nil {
		registerCustodyRoutes(r, d.Custody, requireAuth)
	}
	if d.Communities != nil {
		registerCommunityRoutes(r, d.Communities, requireAuth)
	}
	if d.Gate != nil {
		r.Handle("/ws", d.Gate)
	}
	return r
}

// use registra los middlewares no-nil.
func use(r chi.Router, mws ...mw.Middleware) {
	for _, m := range mws {
		if m != nil {
			r.Use(m)
		}
	}
}
