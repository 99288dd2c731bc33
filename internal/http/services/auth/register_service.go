package auth

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropDatabas3/opslinkcad/internal/audit"
	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
	"github.com/dropDatabas3/opslinkcad/internal/domain/types"
	dto "github.com/dropDatabas3/opslinkcad/internal/http/dto/auth"
	"github.com/dropDatabas3/opslinkcad/internal/lockout"
	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
)

type registerService struct {
	deps Deps
}

// NewRegisterService creates a new register service.
func NewRegisterService(deps Deps) RegisterService {
	return &registerService{deps: withDefaults(deps)}
}

func (s *registerService) Register(ctx context.Context, in dto.RegisterRequest) (*dto.RegisterResponse, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.register"),
		logger.Op("Register"),
	)

	in.TenantID = strings.TrimSpace(in.TenantID)
	in.Email = lockout.Normalize(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	in.Role = strings.TrimSpace(in.Role)
	if in.Role == "" {
		in.Role = types.DefaultRole
	}
	if err := validateRegister(in); err != nil {
		return nil, err
	}

	if err := s.deps.Policy.Validate(in.Password); err != nil {
		s.deps.OnEvent("register", "weak_password")
		return nil, err
	}

	tenant, err := s.deps.DAL.Tenants().Get(ctx, in.TenantID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	if !tenant.Active() {
		return nil, ErrTenantNotFound
	}

	role, err := s.deps.DAL.Roles().Get(ctx, in.TenantID, in.Role)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("get role: %w", err)
	}

	hash, err := s.deps.Hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.deps.Now().UTC()
	u := repository.User{
		ID:           uuid.NewString(),
		TenantID:     in.TenantID,
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: hash,
		Role:         role.Name,
		Perms:        append([]string(nil), role.Perms...),
		Status:       repository.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.deps.DAL.Users().Create(ctx, u); err != nil {
		if repository.IsConflict(err) {
			s.deps.OnEvent("register", "conflict")
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	appendAudit(ctx, s.deps, audit.Entry{
		TenantID:    u.TenantID,
		ActorUserID: u.ID,
		ActorRole:   u.Role,
		Action:      "create",
		Entity:      "user",
		EntityID:    u.ID,
		After:       map[string]string{"email": u.Email, "role": u.Role},
		Meta:        map[string]string{"by": "self"},
	})

	s.deps.OnEvent("register", "ok")
	log.Info("user registered",
		logger.TenantID(u.TenantID),
		logger.UserID(u.ID),
		zap.String("role", u.Role),
	)
	return &dto.RegisterResponse{OK: true, UserID: u.ID}, nil
}

func validateRegister(in dto.RegisterRequest) error {
	if in.TenantID == "" || in.Email == "" || in.Username == "" || in.Password == "" {
		return ErrMissingFields
	}
	if utf8.RuneCountInString(in.TenantID) < 3 {
		return fmt.Errorf("%w: tenant_id too short", ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(in.Username); n < 3 || n > 32 {
		return fmt.Errorf("%w: username must be 3-32 characters", ErrInvalidInput)
	}
	if utf8.RuneCountInString(in.Role) < 3 {
		return fmt.Errorf("%w: role too short", ErrInvalidInput)
	}
	if a, err := mail.ParseAddress(in.Email); err != nil || a.Address != in.Email {
		return fmt.Errorf("%w: email", ErrInvalidInput)
	}
	return nil
}
