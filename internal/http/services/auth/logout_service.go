package auth

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/opslinkcad/internal/audit"
	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
	"github.com/dropDatabas3/opslinkcad/internal/session"
)

type logoutService struct {
	deps Deps
}

// NewLogoutService creates a new logout service.
func NewLogoutService(deps Deps) LogoutService {
	return &logoutService{deps: withDefaults(deps)}
}

// Logout revoca la sesión del principal y, si viene, el refresh de la cookie.
// Un refresh de otro usuario o inexistente se ignora.
func (s *logoutService) Logout(ctx context.Context, p *session.Principal, refreshID string) error {
	if p == nil {
		return ErrUnauthorized
	}
	if err := s.deps.Sessions.Revoke(ctx, p.TenantID, p.SessionID); err != nil && !repository.IsNotFound(err) {
		return err
	}

	if refreshID != "" {
		repo := s.deps.DAL.RefreshTokens()
		row, err := repo.Get(ctx, p.TenantID, refreshID)
		switch {
		case err == nil && row.UserID == p.UserID:
			rerr := repo.Revoke(ctx, p.TenantID, row.ID, s.deps.Now().UTC())
			if rerr != nil && !repository.IsConflict(rerr) && !repository.IsNotFound(rerr) {
				return fmt.Errorf("revoke refresh: %w", rerr)
			}
		case err != nil && !repository.IsNotFound(err):
			return fmt.Errorf("get refresh: %w", err)
		}
	}

	appendAudit(ctx, s.deps, audit.Entry{
		TenantID:    p.TenantID,
		ActorUserID: p.UserID,
		ActorRole:   p.Role,
		Action:      "logout",
		Entity:      "session",
		EntityID:    p.SessionID,
	})
	s.deps.OnEvent("logout", "ok")
	logger.From(ctx).Info("logout",
		logger.Layer("service"),
		logger.Component("auth.logout"),
		logger.TenantID(p.TenantID),
		logger.UserID(p.UserID),
		logger.SessionID(p.SessionID),
	)
	return nil
}
