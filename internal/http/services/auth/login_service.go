package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dropDatabas3/opslinkcad/internal/audit"
	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
	dto "github.com/dropDatabas3/opslinkcad/internal/http/dto/auth"
	"github.com/dropDatabas3/opslinkcad/internal/lockout"
	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
)

type loginService struct {
	deps   Deps
	issuer *issuer
}

// NewLoginService creates a new login service.
func NewLoginService(deps Deps) LoginService {
	deps = withDefaults(deps)
	return &loginService{deps: deps, issuer: &issuer{deps: deps}}
}

func (s *loginService) LoginPassword(ctx context.Context, in dto.LoginRequest, client dto.ClientInfo) (*dto.LoginResult, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.login"),
		logger.Op("LoginPassword"),
	)

	in.TenantID = strings.TrimSpace(in.TenantID)
	in.Email = lockout.Normalize(in.Email)
	if in.TenantID == "" || in.Email == "" || in.Password == "" {
		return nil, ErrMissingFields
	}
	if err := checkDeviceName(client.DeviceName); err != nil {
		return nil, err
	}
	log = log.With(logger.TenantID(in.TenantID), logger.ClientIP(client.IP))

	// 1) lockout antes de tocar credenciales
	if err := s.deps.Lockout.Check(ctx, in.TenantID, in.Email, client.IP); err != nil {
		if errors.Is(err, lockout.ErrTooManyAttempts) {
			s.deps.OnEvent("login", "locked")
			log.Warn("login locked out", logger.Email(in.Email))
		}
		return nil, err
	}

	// 2) usuario activo + password. Mismo error para ambos casos.
	u, err := s.deps.DAL.Users().GetByEmail(ctx, in.TenantID, in.Email)
	if err != nil && !repository.IsNotFound(err) {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil || !u.Active() || !s.deps.Hasher.Verify(in.Password, u.PasswordHash) {
		s.recordAttempt(ctx, in.TenantID, in.Email, client.IP, false)
		s.deps.OnEvent("login", "invalid_credentials")
		log.Info("login failed", logger.Email(in.Email))
		return nil, ErrInvalidCredentials
	}

	// 3) MFA: sin cookies hasta /auth/mfa/verify
	mfa, err := s.deps.DAL.MFA().Get(ctx, u.TenantID, u.ID)
	if err != nil && !repository.IsNotFound(err) {
		return nil, fmt.Errorf("get mfa: %w", err)
	}
	if mfa != nil && mfa.Enabled {
		s.deps.OnEvent("login", "mfa_required")
		log.Info("mfa required", logger.UserID(u.ID))
		return &dto.LoginResult{MFARequired: true, UserID: u.ID}, nil
	}

	s.recordAttempt(ctx, in.TenantID, in.Email, client.IP, true)

	tokens, err := s.issuer.open(ctx, u, client)
	if err != nil {
		return nil, err
	}
	auditLogin(ctx, s.deps, u, tokens.SessionID, "password")

	s.deps.OnEvent("login", "ok")
	log.Info("login ok", logger.UserID(u.ID), logger.SessionID(tokens.SessionID))
	return &dto.LoginResult{UserID: u.ID, Tokens: tokens}, nil
}

// recordAttempt no corta el flujo: un fallo del store ya se refleja en Check.
func (s *loginService) recordAttempt(ctx context.Context, tenantID, email, ip string, ok bool) {
	recordAttempt(ctx, s.deps, tenantID, email, ip, ok)
}

func recordAttempt(ctx context.Context, d Deps, tenantID, email, ip string, ok bool) {
	if err := d.Lockout.Record(ctx, tenantID, email, ip, ok); err != nil {
		logger.From(ctx).Warn("record attempt failed",
			logger.Layer("service"),
			logger.TenantID(tenantID),
			logger.Err(err),
		)
	}
}

func auditLogin(ctx context.Context, d Deps, u *repository.User, sessionID, method string) {
	appendAudit(ctx, d, audit.Entry{
		TenantID:    u.TenantID,
		ActorUserID: u.ID,
		ActorRole:   u.Role,
		Action:      "login",
		Entity:      "session",
		EntityID:    sessionID,
		Meta:        map[string]string{"method": method},
	})
}
