package repository

import (
	"context"
	"time"
)

// RefreshToken guarda solo el digest del secreto presentado al cliente.
type RefreshToken struct {
	ID        string     `bson:"_id"`
	TenantID  string     `bson:"tenant_id"`
	UserID    string     `bson:"user_id"`
	SessionID string     `bson:"session_id"`
	TokenHash string     `bson:"token_hash"`
	CreatedAt time.Time  `bson:"created_at"`
	ExpiresAt time.Time  `bson:"expires_at"`
	RevokedAt *time.Time `bson:"revoked_at,omitempty"`
}

// RefreshTokenRepository define el acceso a refresh tokens. TokenHash es único.
type RefreshTokenRepository interface {
	// Create retorna ErrConflict si el digest ya existe.
	Create(ctx context.Context, t RefreshToken) error

	Get(ctx context.Context, tenantID, id string) (*RefreshToken, error)

	// Revoke marca RevokedAt sólo si aún no estaba marcado. Es la escritura
	// que decide la rotación: retorna ErrConflict si otro caller ya la revocó.
	Revoke(ctx context.Context, tenantID, id string, at time.Time) error

	RevokeAllForUser(ctx context.Context, tenantID, userID string, at time.Time) (int64, error)

	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
