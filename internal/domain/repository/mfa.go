package repository

import (
	"context"
	"time"

	"github.com/dropDatabas3/opslinkcad/internal/domain/types"
)

// MFASecret es el secreto TOTP de un usuario, cifrado con FieldCipher.
type MFASecret struct {
	TenantID  string              `bson:"tenant_id"`
	UserID    string              `bson:"user_id"`
	Secret    types.EncryptedBlob `bson:"secret"`
	Enabled   bool                `bson:"enabled"`
	LastStep  int64               `bson:"last_step"`
	CreatedAt time.Time           `bson:"created_at"`
	UpdatedAt time.Time           `bson:"updated_at"`
}

// MFARepository define el acceso a secretos MFA, uno por (tenant, user).
type MFARepository interface {
	Get(ctx context.Context, tenantID, userID string) (*MFASecret, error)

	// Upsert reemplaza el secreto; se usa al (re)enrolar, deja Enabled=false.
	Upsert(ctx context.Context, s MFASecret) error

	Enable(ctx context.Context, tenantID, userID string, at time.Time) error

	// AdvanceStep guarda el último paso TOTP aceptado. Retorna ErrConflict si
	// step <= LastStep actual (código ya usado).
	AdvanceStep(ctx context.Context, tenantID, userID string, step int64) error
}
