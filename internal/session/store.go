// Package session mantiene las sesiones y dispositivos, y resuelve un access
// token hasta el usuario autenticado.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
	"github.com/dropDatabas3/opslinkcad/internal/security/token"
)

// ErrUnauthorized es la única señal hacia afuera: sesión inexistente,
// revocada o expirada son indistinguibles para el caller.
var ErrUnauthorized = errors.New("session: unauthorized")

// DefaultTTL coincide con la vida del access token.
const DefaultTTL = token.DefaultAccessTTL

const fingerprintLen = 24

// Device describe el cliente que inicia sesión.
type Device struct {
	Name      string
	IP        string
	UserAgent string
}

// Fingerprint es el identificador estable del dispositivo.
func (d Device) Fingerprint() string {
	return token.SHA256Hex(d.Name + ":" + d.IP + ":" + d.UserAgent)[:fingerprintLen]
}

// Store crea, resuelve y revoca sesiones.
type Store struct {
	sessions repository.SessionRepository
	devices  repository.DeviceRepository
	ttl      time.Duration
	now      func() time.Time
}

type Option func(*Store)

func WithTTL(d time.Duration) Option { return func(s *Store) { s.ttl = d } }

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func NewStore(sessions repository.SessionRepository, devices repository.DeviceRepository, opts ...Option) *Store {
	s := &Store{sessions: sessions, devices: devices, ttl: DefaultTTL, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// TTL retorna la vida de una sesión nueva.
func (s *Store) TTL() time.Duration { return s.ttl }

// Create inserta la sesión y actualiza el dispositivo por separado: el
// historial de dispositivos sobrevive a las sesiones. Un fallo del upsert
// del dispositivo no invalida la sesión ya creada.
func (s *Store) Create(ctx context.Context, tenantID, userID string, dev Device) (*repository.Session, error) {
	now := s.now()
	deviceID := dev.Fingerprint()

	sess := repository.Session{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		UserID:    userID,
		DeviceID:  deviceID,
		IP:        dev.IP,
		UserAgent: dev.UserAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("session: create: %w", err)
	}

	err := s.devices.Upsert(ctx, repository.Device{
		TenantID:   tenantID,
		UserID:     userID,
		DeviceID:   deviceID,
		DeviceName: dev.Name,
		IP:         dev.IP,
		UserAgent:  dev.UserAgent,
		CreatedAt:  now,
		LastSeenAt: now,
	})
	if err != nil {
		logger.From(ctx).Warn("device upsert failed",
			logger.Component("session"),
			logger.TenantID(tenantID),
			logger.DeviceID(deviceID),
			logger.Err(err),
		)
	}
	return &sess, nil
}

// Resolve retorna la sesión solo si existe en ese tenant, no está revocada y
// no expiró. Errores de disponibilidad del store se propagan tal cual.
func (s *Store) Resolve(ctx context.Context, tenantID, sessionID string) (*repository.Session, error) {
	if tenantID == "" || sessionID == "" {
		return nil, ErrUnauthorized
	}
	sess, err := s.sessions.Get(ctx, tenantID, sessionID)
	if err != nil {
		if repository.IsUnavailable(err) {
			return nil, err
		}
		return nil, ErrUnauthorized
	}
	if sess.TenantID != tenantID || !sess.ValidAt(s.now()) {
		return nil, ErrUnauthorized
	}
	return sess, nil
}

// Revoke marca revokedAt; la fila se conserva.
func (s *Store) Revoke(ctx context.Context, tenantID, sessionID string) error {
	if err := s.sessions.Revoke(ctx, tenantID, sessionID, s.now()); err != nil {
		return fmt.Errorf("session: revoke: %w", err)
	}
	return nil
}

// RevokeAll revoca todas las sesiones vivas del usuario.
func (s *Store) RevokeAll(ctx context.Context, tenantID, userID string) (int64, error) {
	n, err := s.sessions.RevokeAllForUser(ctx, tenantID, userID, s.now())
	if err != nil {
		return 0, fmt.Errorf("session: revoke all: %w", err)
	}
	return n, nil
}
