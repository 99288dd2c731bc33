package repository

import (
	"context"
	"time"
)

// Session es un login concreto desde un dispositivo.
// Es válida mientras RevokedAt sea nil y now < ExpiresAt.
type Session struct {
	ID        string     `bson:"_id"`
	TenantID  string     `bson:"tenant_id"`
	UserID    string     `bson:"user_id"`
	DeviceID  string     `bson:"device_id"`
	IP        string     `bson:"ip"`
	UserAgent string     `bson:"user_agent"`
	CreatedAt time.Time  `bson:"created_at"`
	ExpiresAt time.Time  `bson:"expires_at"`
	RevokedAt *time.Time `bson:"revoked_at,omitempty"`
}

// ValidAt reporta si la sesión es utilizable en el instante dado.
func (s Session) ValidAt(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// Device es el historial de un dispositivo; sobrevive a las sesiones.
type Device struct {
	TenantID   string    `bson:"tenant_id"`
	UserID     string    `bson:"user_id"`
	DeviceID   string    `bson:"device_id"`
	DeviceName string    `bson:"device_name"`
	IP         string    `bson:"ip"`
	UserAgent  string    `bson:"user_agent"`
	CreatedAt  time.Time `bson:"created_at"`
	LastSeenAt time.Time `bson:"last_seen_at"`
}

// SessionRepository define el acceso a sesiones.
type SessionRepository interface {
	Create(ctx context.Context, s Session) error

	// Get busca la sesión dentro del tenant. ErrNotFound si no existe.
	Get(ctx context.Context, tenantID, id string) (*Session, error)

	// Revoke marca RevokedAt si aún no estaba marcado. No borra la fila.
	Revoke(ctx context.Context, tenantID, id string, at time.Time) error

	// RevokeAllForUser revoca todas las sesiones vigentes del usuario.
	RevokeAllForUser(ctx context.Context, tenantID, userID string, at time.Time) (int64, error)

	// DeleteExpired borra filas con ExpiresAt < now. Idempotente.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// DeviceRepository define el upsert de dispositivos, únicos por (tenant, user, device).
type DeviceRepository interface {
	// Upsert inserta o refresca LastSeenAt/DeviceName/IP/UserAgent. CreatedAt se conserva.
	Upsert(ctx context.Context, d Device) error

	Get(ctx context.Context, tenantID, userID, deviceID string) (*Device, error)
}
