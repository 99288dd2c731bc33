// Package auth implementa el flujo de autenticación: registro, login con
// lockout y MFA, rotación de refresh tokens, logout y who-am-i.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/opslinkcad/internal/audit"
	"github.com/dropDatabas3/opslinkcad/internal/lockout"
	"github.com/dropDatabas3/opslinkcad/internal/security/fieldcipher"
	"github.com/dropDatabas3/opslinkcad/internal/security/password"
	"github.com/dropDatabas3/opslinkcad/internal/security/token"
	"github.com/dropDatabas3/opslinkcad/internal/security/totp"
	"github.com/dropDatabas3/opslinkcad/internal/session"
	store "github.com/dropDatabas3/opslinkcad/internal/store"
)

// Deps contiene las dependencias compartidas por los services de auth.
type Deps struct {
	DAL      store.DataAccessLayer
	Codec    *token.Codec
	Sessions *session.Store
	Lockout  *lockout.Guard
	Hasher   password.Hasher
	Policy   password.Policy
	TOTP     *totp.Verifier
	Cipher   *fieldcipher.Cipher
	Audit    *audit.Chain

	// OnEvent recibe (flow, result) para métricas. nil = no-op.
	OnEvent func(flow, result string)
	Now     func() time.Time
}

// Errores de auth
var (
	ErrMissingFields      = errors.New("missing required fields")
	ErrInvalidInput       = errors.New("invalid input")
	ErrTenantNotFound     = errors.New("Community not found")
	ErrRoleNotFound       = errors.New("Role not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMFANotConfigured   = errors.New("MFA not configured")
	ErrMFAAlreadyEnabled  = errors.New("MFA already enabled")
	ErrInvalidCode        = errors.New("invalid code")

	// Re-exportados para que los controllers no importen paquetes de dominio.
	ErrTooManyAttempts = lockout.ErrTooManyAttempts
	ErrUnauthorized    = session.ErrUnauthorized
	ErrWeakPassword    = password.ErrWeak
)

// Services agrupa todos los services del dominio auth.
type Services struct {
	Register RegisterService
	Login    LoginService
	MFA      MFAService
	Refresh  RefreshService
	Logout   LogoutService
}

// NewServices crea el agregador de services auth.
func NewServices(d Deps) Services {
	d = withDefaults(d)
	iss := &issuer{deps: d}
	return Services{
		Register: &registerService{deps: d},
		Login:    &loginService{deps: d, issuer: iss},
		MFA:      &mfaService{deps: d, issuer: iss},
		Refresh:  &refreshService{deps: d, issuer: iss},
		Logout:   &logoutService{deps: d},
	}
}

func withDefaults(d Deps) Deps {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.OnEvent == nil {
		d.OnEvent = func(string, string) {}
	}
	return d
}

// appendAudit agrega el evento y solo loguea si falla: el efecto principal
// (usuario, sesión) ya quedó persistido.
func appendAudit(ctx context.Context, d Deps, e audit.Entry) {
	if d.Audit == nil {
		return
	}
	if _, err := d.Audit.Append(ctx, e); err != nil {
		logAuditFailure(ctx, e, err)
	}
}
