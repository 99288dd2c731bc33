package session

import (
	"context"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
	"github.com/dropDatabas3/opslinkcad/internal/domain/types"
	"github.com/dropDatabas3/opslinkcad/internal/security/token"
)

// Principal es el usuario autenticado de un request o conexión.
type Principal struct {
	UserID    string
	TenantID  string
	SessionID string
	Email     string
	Username  string
	Role      string
	Caps      types.Capabilities
}

// Can reporta si el principal tiene la capability (o el comodín).
func (p *Principal) Can(perm string) bool {
	return p != nil && p.Caps.Allows(perm)
}

// Authenticator es la misma compuerta para HTTP y realtime:
// token -> sesión -> usuario activo del mismo tenant.
type Authenticator struct {
	codec    *token.Codec
	sessions *Store
	users    repository.UserRepository
}

func NewAuthenticator(codec *token.Codec, sessions *Store, users repository.UserRepository) *Authenticator {
	return &Authenticator{codec: codec, sessions: sessions, users: users}
}

// Authenticate retorna ErrUnauthorized para cualquier falla de credencial.
func (a *Authenticator) Authenticate(ctx context.Context, rawAccess string) (*Principal, error) {
	if rawAccess == "" {
		return nil, ErrUnauthorized
	}
	claims, err := a.codec.VerifyAccess(rawAccess)
	if err != nil {
		return nil, ErrUnauthorized
	}

	sess, err := a.sessions.Resolve(ctx, claims.TenantID, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != claims.Subject {
		return nil, ErrUnauthorized
	}

	user, err := a.users.GetByID(ctx, claims.TenantID, claims.Subject)
	if err != nil {
		if repository.IsUnavailable(err) {
			return nil, err
		}
		return nil, ErrUnauthorized
	}
	if user.TenantID != claims.TenantID || !user.Active() {
		return nil, ErrUnauthorized
	}

	return &Principal{
		UserID:    user.ID,
		TenantID:  user.TenantID,
		SessionID: sess.ID,
		Email:     user.Email,
		Username:  user.Username,
		Role:      user.Role,
		Caps:      types.NewCapabilities(user.Perms...),
	}, nil
}
