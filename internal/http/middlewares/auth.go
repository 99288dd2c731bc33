package middlewares

import (
	"context"
	"net/http"
	"strings"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
	"github.com/dropDatabas3/opslinkcad/internal/http/errors"
	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
	"github.com/dropDatabas3/opslinkcad/internal/session"
)

// Authenticator resuelve un access token a un principal.
type Authenticator interface {
	Authenticate(ctx context.Context, rawAccess string) (*session.Principal, error)
}

// TenantHeader, si viene, debe coincidir con el tenant autenticado.
const TenantHeader = "X-Tenant-ID"

// RequireAuth lee el access token (cookie o Bearer), lo resuelve a sesión y
// usuario, y guarda el principal en el contexto. Toda falla es 401 salvo
// store caído (503).
func RequireAuth(auth Authenticator, cookieName string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := session.TokenFromRequest(r, cookieName)
			if raw == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
				errors.WriteError(w, errors.ErrUnauthorized)
				return
			}

			p, err := auth.Authenticate(r.Context(), raw)
			if err != nil {
				if repository.IsUnavailable(err) {
					errors.WriteErrorCtx(r, w, errors.ErrStoreUnavailable.WithCause(err))
					return
				}
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
				errors.WriteError(w, errors.ErrUnauthorized)
				return
			}

			if t := strings.TrimSpace(r.Header.Get(TenantHeader)); t != "" && t != p.TenantID {
				logger.From(r.Context()).Warn("tenant header mismatch",
					logger.Layer("middleware"),
					logger.TenantID(p.TenantID),
					logger.String("header_tenant", t),
				)
				errors.WriteError(w, errors.ErrUnauthorized)
				return
			}

			ctx := WithPrincipal(r.Context(), p)
			ctx = logger.ToContext(ctx, logger.From(ctx).With(
				logger.TenantID(p.TenantID),
				logger.UserID(p.UserID),
				logger.SessionID(p.SessionID),
			))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePerm exige la capability (o el wildcard). Debe correr después de
// RequireAuth.
func RequirePerm(perm string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := GetPrincipal(r.Context())
			if p == nil {
				errors.WriteError(w, errors.ErrUnauthorized)
				return
			}
			if !p.Can(perm) {
				errors.WriteError(w, errors.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
