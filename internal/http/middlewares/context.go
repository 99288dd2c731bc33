package middlewares

import (
	"context"

	"github.com/dropDatabas3/opslinkcad/internal/session"
)

type ctxKey string

const (
	ctxPrincipalKey ctxKey = "principal"
	ctxRequestIDKey ctxKey = "request_id"
	ctxClientIPKey  ctxKey = "client_ip"
)

// WithPrincipal inyecta el principal autenticado.
func WithPrincipal(ctx context.Context, p *session.Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipalKey, p)
}

func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// GetPrincipal retorna nil si RequireAuth no corrió.
func GetPrincipal(ctx context.Context) *session.Principal {
	p, _ := ctx.Value(ctxPrincipalKey).(*session.Principal)
	return p
}

func GetRequestID(ctx context.Context) string {
	s, _ := ctx.Value(ctxRequestIDKey).(string)
	return s
}

func setClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxClientIPKey, ip)
}
