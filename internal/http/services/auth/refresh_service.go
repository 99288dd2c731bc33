package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/dropDatabas3/opslinkcad/internal/audit"
	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
	dto "github.com/dropDatabas3/opslinkcad/internal/http/dto/auth"
	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
	"github.com/dropDatabas3/opslinkcad/internal/security/token"
)

type refreshService struct {
	deps   Deps
	issuer *issuer
}

// NewRefreshService creates a new refresh service.
func NewRefreshService(deps Deps) RefreshService {
	deps = withDefaults(deps)
	return &refreshService{deps: deps, issuer: &issuer{deps: deps}}
}

// Refresh rota el refresh token: revoca la fila y la sesión de origen y abre
// una sesión nueva. Un token ya revocado dispara la revocación de todo lo
// vivo del usuario.
func (s *refreshService) Refresh(ctx context.Context, rawRefresh, cookieRefreshID string, client dto.ClientInfo) (*dto.IssuedTokens, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.refresh"),
		logger.Op("Refresh"),
	)

	rawRefresh = strings.TrimSpace(rawRefresh)
	if rawRefresh == "" {
		return nil, ErrMissingFields
	}
	if err := checkDeviceName(client.DeviceName); err != nil {
		return nil, err
	}
	claims, err := s.deps.Codec.VerifyRefresh(rawRefresh)
	if err != nil {
		s.deps.OnEvent("refresh", "invalid")
		return nil, ErrUnauthorized
	}
	if cookieRefreshID != "" && cookieRefreshID != claims.TokenID {
		s.deps.OnEvent("refresh", "mismatch")
		return nil, ErrUnauthorized
	}
	log = log.With(logger.TenantID(claims.TenantID), logger.UserID(claims.Subject))

	repo := s.deps.DAL.RefreshTokens()
	row, err := repo.Get(ctx, claims.TenantID, claims.TokenID)
	if err != nil {
		if repository.IsNotFound(err) {
			s.deps.OnEvent("refresh", "invalid")
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("get refresh: %w", err)
	}
	if row.UserID != claims.Subject || !token.DigestEqual(token.SHA256Hex(rawRefresh), row.TokenHash) {
		s.deps.OnEvent("refresh", "invalid")
		return nil, ErrUnauthorized
	}

	now := s.deps.Now().UTC()
	if row.RevokedAt != nil {
		s.revokeEverything(ctx, row)
		s.deps.OnEvent("refresh", "reuse")
		log.Warn("refresh token reuse detected", logger.String("refresh_id", row.ID))
		return nil, ErrUnauthorized
	}
	if !now.Before(row.ExpiresAt) {
		s.deps.OnEvent("refresh", "expired")
		return nil, ErrUnauthorized
	}

	u, err := s.deps.DAL.Users().GetByID(ctx, row.TenantID, row.UserID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !u.Active() {
		return nil, ErrUnauthorized
	}

	// la revocación condicional decide la carrera: sólo un caller rota
	if err := repo.Revoke(ctx, row.TenantID, row.ID, now); err != nil {
		if repository.IsConflict(err) {
			s.revokeEverything(ctx, row)
			s.deps.OnEvent("refresh", "reuse")
			log.Warn("concurrent refresh rotation lost", logger.String("refresh_id", row.ID))
			return nil, ErrUnauthorized
		}
		if repository.IsNotFound(err) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("revoke refresh: %w", err)
	}
	if row.SessionID != "" {
		if err := s.deps.Sessions.Revoke(ctx, row.TenantID, row.SessionID); err != nil && !repository.IsNotFound(err) {
			return nil, err
		}
	}

	tokens, err := s.issuer.open(ctx, u, client)
	if err != nil {
		return nil, err
	}
	s.deps.OnEvent("refresh", "ok")
	log.Info("refresh rotated", logger.SessionID(tokens.SessionID))
	return tokens, nil
}

func (s *refreshService) revokeEverything(ctx context.Context, row *repository.RefreshToken) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.TenantID(row.TenantID), logger.UserID(row.UserID))
	n, err := s.deps.DAL.RefreshTokens().RevokeAllForUser(ctx, row.TenantID, row.UserID, s.deps.Now().UTC())
	if err != nil {
		log.Error("revoke refresh tokens failed", logger.Err(err))
	}
	m, err := s.deps.Sessions.RevokeAll(ctx, row.TenantID, row.UserID)
	if err != nil {
		log.Error("revoke sessions failed", logger.Err(err))
	}
	appendAudit(ctx, s.deps, audit.Entry{
		TenantID: row.TenantID,
		Action:   "revoke_all",
		Entity:   "session",
		EntityID: row.UserID,
		Meta: map[string]any{
			"reason":         "refresh_reuse",
			"refresh_tokens": n,
			"sessions":       m,
		},
	})
}
