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
	"github.com/dropDatabas3/opslinkcad/internal/session"
)

type mfaService struct {
	deps   Deps
	issuer *issuer
}

// NewMFAService creates a new MFA service.
func NewMFAService(deps Deps) MFAService {
	deps = withDefaults(deps)
	return &mfaService{deps: deps, issuer: &issuer{deps: deps}}
}

// Verify completa el login de una cuenta con MFA y abre la sesión completa.
func (s *mfaService) Verify(ctx context.Context, in dto.MFAVerifyRequest, client dto.ClientInfo) (*dto.IssuedTokens, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.mfa"),
		logger.Op("Verify"),
	)

	in.TenantID = strings.TrimSpace(in.TenantID)
	in.UserID = strings.TrimSpace(in.UserID)
	in.Code = strings.TrimSpace(in.Code)
	if in.TenantID == "" || in.UserID == "" || in.Code == "" {
		return nil, ErrMissingFields
	}
	if err := checkDeviceName(client.DeviceName); err != nil {
		return nil, err
	}

	u, err := s.deps.DAL.Users().GetByID(ctx, in.TenantID, in.UserID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrMFANotConfigured
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !u.Active() {
		return nil, ErrMFANotConfigured
	}

	if err := s.deps.Lockout.Check(ctx, u.TenantID, u.Email, client.IP); err != nil {
		if errors.Is(err, lockout.ErrTooManyAttempts) {
			s.deps.OnEvent("mfa_verify", "locked")
		}
		return nil, err
	}

	sec, err := s.loadSecret(ctx, u.TenantID, u.ID)
	if err != nil {
		return nil, err
	}
	if !sec.enabled {
		return nil, ErrMFANotConfigured
	}

	step, ok := s.deps.TOTP.Validate(sec.plain, in.Code, sec.lastStep)
	if !ok {
		recordAttempt(ctx, s.deps, u.TenantID, u.Email, client.IP, false)
		s.deps.OnEvent("mfa_verify", "invalid_code")
		log.Info("invalid mfa code", logger.TenantID(u.TenantID), logger.UserID(u.ID))
		return nil, ErrInvalidCode
	}
	// el step aceptado no se puede reusar
	if err := s.deps.DAL.MFA().AdvanceStep(ctx, u.TenantID, u.ID, step); err != nil {
		if repository.IsConflict(err) {
			recordAttempt(ctx, s.deps, u.TenantID, u.Email, client.IP, false)
			s.deps.OnEvent("mfa_verify", "replay")
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("advance step: %w", err)
	}
	recordAttempt(ctx, s.deps, u.TenantID, u.Email, client.IP, true)

	tokens, err := s.issuer.open(ctx, u, client)
	if err != nil {
		return nil, err
	}
	auditLogin(ctx, s.deps, u, tokens.SessionID, "mfa")

	s.deps.OnEvent("mfa_verify", "ok")
	log.Info("mfa login ok", logger.TenantID(u.TenantID), logger.UserID(u.ID), logger.SessionID(tokens.SessionID))
	return tokens, nil
}

// Enroll genera un secreto nuevo deshabilitado. Re-enrolar reemplaza el
// secreto pendiente; una cuenta con MFA activo no puede re-enrolar.
func (s *mfaService) Enroll(ctx context.Context, p *session.Principal) (*dto.MFAEnrollResponse, error) {
	if p == nil {
		return nil, ErrUnauthorized
	}
	cur, err := s.deps.DAL.MFA().Get(ctx, p.TenantID, p.UserID)
	if err != nil && !repository.IsNotFound(err) {
		return nil, fmt.Errorf("get mfa: %w", err)
	}
	if cur != nil && cur.Enabled {
		return nil, ErrMFAAlreadyEnabled
	}

	enr, err := s.deps.TOTP.Enroll(p.Email)
	if err != nil {
		return nil, fmt.Errorf("enroll: %w", err)
	}
	blob, err := s.deps.Cipher.Encrypt(enr.Secret)
	if err != nil {
		return nil, fmt.Errorf("encrypt secret: %w", err)
	}
	now := s.deps.Now().UTC()
	rec := repository.MFASecret{
		TenantID:  p.TenantID,
		UserID:    p.UserID,
		Secret:    blob,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.deps.DAL.MFA().Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("store mfa: %w", err)
	}

	s.deps.OnEvent("mfa_enroll", "ok")
	logger.From(ctx).Info("mfa enrolled",
		logger.Layer("service"),
		logger.Component("auth.mfa"),
		logger.TenantID(p.TenantID),
		logger.UserID(p.UserID),
	)
	return &dto.MFAEnrollResponse{OK: true, Secret: enr.Secret, OTPAuthURL: enr.URL}, nil
}

// Enable confirma el enrolamiento con un código válido.
func (s *mfaService) Enable(ctx context.Context, p *session.Principal, code string) error {
	if p == nil {
		return ErrUnauthorized
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrMissingFields
	}
	sec, err := s.loadSecret(ctx, p.TenantID, p.UserID)
	if err != nil {
		return err
	}
	if sec.enabled {
		return ErrMFAAlreadyEnabled
	}
	step, ok := s.deps.TOTP.Validate(sec.plain, code, sec.lastStep)
	if !ok {
		s.deps.OnEvent("mfa_enable", "invalid_code")
		return ErrInvalidCode
	}
	if err := s.deps.DAL.MFA().AdvanceStep(ctx, p.TenantID, p.UserID, step); err != nil {
		if repository.IsConflict(err) {
			return ErrInvalidCode
		}
		return fmt.Errorf("advance step: %w", err)
	}
	if err := s.deps.DAL.MFA().Enable(ctx, p.TenantID, p.UserID, s.deps.Now().UTC()); err != nil {
		return fmt.Errorf("enable mfa: %w", err)
	}

	appendAudit(ctx, s.deps, audit.Entry{
		TenantID:    p.TenantID,
		ActorUserID: p.UserID,
		ActorRole:   p.Role,
		Action:      "enable",
		Entity:      "mfa",
		EntityID:    p.UserID,
		After:       map[string]bool{"enabled": true},
	})
	s.deps.OnEvent("mfa_enable", "ok")
	return nil
}

type plainSecret struct {
	plain    string
	enabled  bool
	lastStep int64
}

// loadSecret descifra el secreto. Sin fila = ErrMFANotConfigured; blob
// corrupto se propaga (fieldcipher.ErrIntegrity) y el controller lo mapea a 500.
func (s *mfaService) loadSecret(ctx context.Context, tenantID, userID string) (*plainSecret, error) {
	rec, err := s.deps.DAL.MFA().Get(ctx, tenantID, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrMFANotConfigured
		}
		return nil, fmt.Errorf("get mfa: %w", err)
	}
	plain, err := s.deps.Cipher.Decrypt(rec.Secret)
	if err != nil {
		return nil, fmt.Errorf("decrypt mfa secret: %w", err)
	}
	return &plainSecret{plain: plain, enabled: rec.Enabled, lastStep: rec.LastStep}, nil
}
