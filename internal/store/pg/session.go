package pg

import (
	"context"
	"time"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
)

// ─── Sessions ───

type sessionRepo struct{ d *DAL }

func (r sessionRepo) Create(ctx context.Context, s repository.Session) error {
	_, err := r.d.exec(ctx, `
		INSERT INTO sessions (id, tenant_id, user_id, device_id, ip, user_agent, created_at, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, s.ID, s.TenantID, s.UserID, s.DeviceID, s.IP, s.UserAgent, s.CreatedAt, s.ExpiresAt, s.RevokedAt)
	return err
}

func (r sessionRepo) Get(ctx context.Context, tenantID, id string) (*repository.Session, error) {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	var s repository.Session
	err := r.d.pool.QueryRow(ctx, `
		SELECT id, tenant_id, user_id, device_id, ip, user_agent, created_at, expires_at, revoked_at
		FROM sessions WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(&s.ID, &s.TenantID, &s.UserID, &s.DeviceID, &s.IP, &s.UserAgent, &s.CreatedAt, &s.ExpiresAt, &s.RevokedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

func (r sessionRepo) Revoke(ctx context.Context, tenantID, id string, at time.Time) error {
	if err := r.d.revokeOne(ctx, "sessions", tenantID, id, at); err != nil && !repository.IsConflict(err) {
		return err
	}
	return nil
}

func (r sessionRepo) RevokeAllForUser(ctx context.Context, tenantID, userID string, at time.Time) (int64, error) {
	return r.d.exec(ctx,
		`UPDATE sessions SET revoked_at = $3 WHERE tenant_id = $1 AND user_id = $2 AND revoked_at IS NULL`,
		tenantID, userID, at)
}

func (r sessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.d.exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now)
}

// revokeOne fija revoked_at sólo si seguía en NULL, así un único caller
// gana. ErrConflict indica que la fila ya estaba revocada.
// table es siempre una constante interna.
func (d *DAL) revokeOne(ctx context.Context, table, tenantID, id string, at time.Time) error {
	n, err := d.exec(ctx,
		`UPDATE `+table+` SET revoked_at = $3 WHERE tenant_id = $1 AND id = $2 AND revoked_at IS NULL`,
		tenantID, id, at)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	ctx, cancel := d.op(ctx)
	defer cancel()
	var exists bool
	if err := d.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE tenant_id = $1 AND id = $2)`,
		tenantID, id).Scan(&exists); err != nil {
		return mapErr(err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

// ─── Devices ───

type deviceRepo struct{ d *DAL }

func (r deviceRepo) Upsert(ctx context.Context, dev repository.Device) error {
	_, err := r.d.exec(ctx, `
		INSERT INTO devices (tenant_id, user_id, device_id, device_name, ip, user_agent, created_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, user_id, device_id) DO UPDATE SET
			device_name = EXCLUDED.device_name,
			ip = EXCLUDED.ip,
			user_agent = EXCLUDED.user_agent,
			last_seen_at = EXCLUDED.last_seen_at
	`, dev.TenantID, dev.UserID, dev.DeviceID, dev.DeviceName, dev.IP, dev.UserAgent, dev.CreatedAt, dev.LastSeenAt)
	return err
}

func (r deviceRepo) Get(ctx context.Context, tenantID, userID, deviceID string) (*repository.Device, error) {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	var dev repository.Device
	err := r.d.pool.QueryRow(ctx, `
		SELECT tenant_id, user_id, device_id, device_name, ip, user_agent, created_at, last_seen_at
		FROM devices WHERE tenant_id = $1 AND user_id = $2 AND device_id = $3
	`, tenantID, userID, deviceID).Scan(
		&dev.TenantID, &dev.UserID, &dev.DeviceID, &dev.DeviceName, &dev.IP, &dev.UserAgent, &dev.CreatedAt, &dev.LastSeenAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &dev, nil
}

// ─── Refresh tokens ───

type refreshRepo struct{ d *DAL }

func (r refreshRepo) Create(ctx context.Context, t repository.RefreshToken) error {
	_, err := r.d.exec(ctx, `
		INSERT INTO refresh_tokens (id, tenant_id, user_id, session_id, token_hash, created_at, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.TenantID, t.UserID, t.SessionID, t.TokenHash, t.CreatedAt, t.ExpiresAt, t.RevokedAt)
	return err
}

func (r refreshRepo) Get(ctx context.Context, tenantID, id string) (*repository.RefreshToken, error) {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	var t repository.RefreshToken
	err := r.d.pool.QueryRow(ctx, `
		SELECT id, tenant_id, user_id, session_id, token_hash, created_at, expires_at, revoked_at
		FROM refresh_tokens WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(&t.ID, &t.TenantID, &t.UserID, &t.SessionID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.RevokedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (r refreshRepo) Revoke(ctx context.Context, tenantID, id string, at time.Time) error {
	return r.d.revokeOne(ctx, "refresh_tokens", tenantID, id, at)
}

func (r refreshRepo) RevokeAllForUser(ctx context.Context, tenantID, userID string, at time.Time) (int64, error) {
	return r.d.exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $3 WHERE tenant_id = $1 AND user_id = $2 AND revoked_at IS NULL`,
		tenantID, userID, at)
}

func (r refreshRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.d.exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, now)
}

// ─── Attempts ───

type attemptRepo struct{ d *DAL }

func (r attemptRepo) Record(ctx context.Context, a repository.AuthAttempt) error {
	_, err := r.d.exec(ctx,
		`INSERT INTO auth_attempts (tenant_id, email, ip, ok, ts) VALUES ($1, $2, $3, $4, $5)`,
		a.TenantID, a.Email, a.IP, a.OK, a.TS)
	return err
}

func (r attemptRepo) CountFailures(ctx context.Context, tenantID, email, ip string, since time.Time) (int64, error) {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	var n int64
	err := r.d.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM auth_attempts
		WHERE tenant_id = $1 AND email = $2 AND ip = $3 AND ok = FALSE AND ts >= $4
	`, tenantID, email, ip, since).Scan(&n)
	return n, mapErr(err)
}

func (r attemptRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.d.exec(ctx, `DELETE FROM auth_attempts WHERE ts < $1`, cutoff)
}
