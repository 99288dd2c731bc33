package auth

import (
	"context"

	dto "github.com/dropDatabas3/opslinkcad/internal/http/dto/auth"
	"github.com/dropDatabas3/opslinkcad/internal/session"
)

// RegisterService crea usuarios dentro de un tenant activo.
type RegisterService interface {
	Register(ctx context.Context, in dto.RegisterRequest) (*dto.RegisterResponse, error)
}

// LoginService autentica por password. Devuelve tokens o MFA pendiente.
type LoginService interface {
	LoginPassword(ctx context.Context, in dto.LoginRequest, client dto.ClientInfo) (*dto.LoginResult, error)
}

// MFAService cubre verify (paso 2 del login), enroll y enable.
type MFAService interface {
	Verify(ctx context.Context, in dto.MFAVerifyRequest, client dto.ClientInfo) (*dto.IssuedTokens, error)
	Enroll(ctx context.Context, p *session.Principal) (*dto.MFAEnrollResponse, error)
	Enable(ctx context.Context, p *session.Principal, code string) error
}

// RefreshService rota un refresh token por un par nuevo.
type RefreshService interface {
	Refresh(ctx context.Context, rawRefresh, cookieRefreshID string, client dto.ClientInfo) (*dto.IssuedTokens, error)
}

// LogoutService revoca la sesión actual y el refresh token de la cookie.
type LogoutService interface {
	Logout(ctx context.Context, p *session.Principal, refreshID string) error
}
