package auth

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
	dto "github.com/dropDatabas3/opslinkcad/internal/http/dto/auth"
	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
	"github.com/dropDatabas3/opslinkcad/internal/security/token"
	"github.com/dropDatabas3/opslinkcad/internal/session"
)

const (
	defaultDeviceName = "Browser"
	maxDeviceNameLen  = 64
)

func checkDeviceName(name string) error {
	if utf8.RuneCountInString(name) > maxDeviceNameLen {
		return fmt.Errorf("%w: device_name too long", ErrInvalidInput)
	}
	return nil
}

// issuer abre sesiones: fila de sesión + device, access y refresh. Lo comparten
// login por password, MFA verify y refresh.
type issuer struct {
	deps Deps
}

func (i *issuer) open(ctx context.Context, u *repository.User, client dto.ClientInfo) (*dto.IssuedTokens, error) {
	name := client.DeviceName
	if name == "" {
		name = defaultDeviceName
	}
	sess, err := i.deps.Sessions.Create(ctx, u.TenantID, u.ID, session.Device{
		Name:      name,
		IP:        client.IP,
		UserAgent: client.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	access, accessExp, err := i.deps.Codec.IssueAccess(u.ID, sess.ID, u.TenantID)
	if err != nil {
		return nil, fmt.Errorf("issue access: %w", err)
	}
	refreshID := uuid.NewString()
	refresh, refreshExp, err := i.deps.Codec.IssueRefresh(u.ID, refreshID, u.TenantID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh: %w", err)
	}

	// solo el digest se persiste
	err = i.deps.DAL.RefreshTokens().Create(ctx, repository.RefreshToken{
		ID:        refreshID,
		TenantID:  u.TenantID,
		UserID:    u.ID,
		SessionID: sess.ID,
		TokenHash: token.SHA256Hex(refresh),
		CreatedAt: i.deps.Now().UTC(),
		ExpiresAt: refreshExp,
	})
	if err != nil {
		return nil, fmt.Errorf("store refresh: %w", err)
	}

	logger.From(ctx).Debug("session opened",
		logger.Layer("service"),
		logger.TenantID(u.TenantID),
		logger.UserID(u.ID),
		logger.SessionID(sess.ID),
		logger.DeviceID(sess.DeviceID),
	)

	return &dto.IssuedTokens{
		UserID:        u.ID,
		SessionID:     sess.ID,
		AccessToken:   access,
		AccessExpires: accessExp,
		RefreshToken:  refresh,
		RefreshID:     refreshID,
		RefreshExp:    refreshExp,
	}, nil
}
