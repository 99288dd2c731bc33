package middlewares

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dropDatabas3/opslinkcad/internal/http/errors"
	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
	"github.com/dropDatabas3/opslinkcad/internal/rate"
)

// RateKeyFunc define cómo generar la clave de rate limiting.
type RateKeyFunc func(r *http.Request) string

// IPOnlyRateKey genera una clave basada solo en IP.
func IPOnlyRateKey(r *http.Request) string { return ClientIP(r) }

// RateLimitConfig configura el middleware de rate limiting.
type RateLimitConfig struct {
	Limiter   rate.Limiter
	Max       int64
	KeyFunc   RateKeyFunc
	Whitelist []string // paths excluidos (ej: /health)
	OnLimited func()
}

// WithRateLimit rechaza con 429 cuando se excede la ventana. Ante errores del
// limiter deja pasar el request.
func WithRateLimit(cfg RateLimitConfig) Middleware {
	if cfg.Limiter == nil {
		return nil
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = IPOnlyRateKey
	}
	whitelist := make(map[string]struct{}, len(cfg.Whitelist))
	for _, p := range cfg.Whitelist {
		whitelist[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := whitelist[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			res, err := cfg.Limiter.Allow(r.Context(), cfg.KeyFunc(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limit error", logger.Layer("middleware"), logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			if cfg.Max > 0 {
				h.Set("X-RateLimit-Limit", strconv.FormatInt(cfg.Max, 10))
			}
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			if res.WindowTTL > 0 {
				h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(res.WindowTTL).Unix(), 10))
			}

			if !res.Allowed {
				if res.RetryAfter > 0 {
					secs := int((res.RetryAfter + time.Second - 1) / time.Second)
					h.Set("Retry-After", strconv.Itoa(secs))
				}
				if cfg.OnLimited != nil {
					cfg.OnLimited()
				}
				errors.WriteError(w, errors.ErrRateLimitExceeded)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
