package repository

import (
	"context"
	"time"
)

// AuthAttempt es inmutable; solo alimenta los conteos de lockout.
type AuthAttempt struct {
	TenantID string    `bson:"tenant_id"`
	Email    string    `bson:"email"`
	IP       string    `bson:"ip"`
	OK       bool      `bson:"ok"`
	TS       time.Time `bson:"ts"`
}

// AttemptRepository define el registro y conteo de intentos de login.
type AttemptRepository interface {
	Record(ctx context.Context, a AuthAttempt) error

	// CountFailures cuenta intentos fallidos para la tripleta exacta con TS >= since.
	CountFailures(ctx context.Context, tenantID, email, ip string, since time.Time) (int64, error)

	// DeleteBefore borra intentos con TS < cutoff. Idempotente.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
