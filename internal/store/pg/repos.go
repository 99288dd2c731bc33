package pg

import (
	"context"
	"time"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
	"github.com/dropDatabas3/opslinkcad/internal/domain/types"
)

// ─── Tenants ───

type tenantRepo struct{ d *DAL }

func (r tenantRepo) Get(ctx context.Context, id string) (*repository.Tenant, error) {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	var t repository.Tenant
	err := r.d.pool.QueryRow(ctx,
		`SELECT id, name, status, created_at FROM communities WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (r tenantRepo) Upsert(ctx context.Context, t repository.Tenant) error {
	_, err := r.d.exec(ctx, `
		INSERT INTO communities (id, name, status, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, status = EXCLUDED.status
	`, t.ID, t.Name, t.Status, t.CreatedAt)
	return err
}

func (r tenantRepo) List(ctx context.Context) ([]repository.Tenant, error) {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	rows, err := r.d.pool.Query(ctx, `SELECT id, name, status, created_at FROM communities ORDER BY id`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []repository.Tenant
	for rows.Next() {
		var t repository.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, t)
	}
	return out, mapErr(rows.Err())
}

// ─── Roles ───

type roleRepo struct{ d *DAL }

func (r roleRepo) Get(ctx context.Context, tenantID, name string) (*repository.Role, error) {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	var role repository.Role
	err := r.d.pool.QueryRow(ctx,
		`SELECT tenant_id, name, perms, created_at FROM roles WHERE tenant_id = $1 AND name = $2`,
		tenantID, name,
	).Scan(&role.TenantID, &role.Name, &role.Perms, &role.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &role, nil
}

func (r roleRepo) Upsert(ctx context.Context, role repository.Role) error {
	perms := role.Perms
	if perms == nil {
		perms = []string{}
	}
	_, err := r.d.exec(ctx, `
		INSERT INTO roles (tenant_id, name, perms, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, name) DO UPDATE SET perms = EXCLUDED.perms
	`, role.TenantID, role.Name, perms, role.CreatedAt)
	return err
}

// ─── Users ───

type userRepo struct{ d *DAL }

const userColumns = `id, tenant_id, email, username, password_hash, role, perms, status, created_at, updated_at`

func (r userRepo) Create(ctx context.Context, u repository.User) error {
	perms := u.Perms
	if perms == nil {
		perms = []string{}
	}
	_, err := r.d.exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, u.ID, u.TenantID, u.Email, u.Username, u.PasswordHash, u.Role, perms, u.Status, u.CreatedAt, u.UpdatedAt)
	return err
}

func (r userRepo) GetByEmail(ctx context.Context, tenantID, email string) (*repository.User, error) {
	return r.scanOne(ctx, `SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND email = $2`, tenantID, email)
}

func (r userRepo) GetByID(ctx context.Context, tenantID, id string) (*repository.User, error) {
	return r.scanOne(ctx, `SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND id = $2`, tenantID, id)
}

func (r userRepo) scanOne(ctx context.Context, sql string, args ...any) (*repository.User, error) {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	var u repository.User
	err := r.d.pool.QueryRow(ctx, sql, args...).Scan(
		&u.ID, &u.TenantID, &u.Email, &u.Username, &u.PasswordHash,
		&u.Role, &u.Perms, &u.Status, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

// ─── MFA ───

type mfaRepo struct{ d *DAL }

func (r mfaRepo) Get(ctx context.Context, tenantID, userID string) (*repository.MFASecret, error) {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	var m repository.MFASecret
	var blob types.EncryptedBlob
	err := r.d.pool.QueryRow(ctx, `
		SELECT tenant_id, user_id, secret_alg, secret_iv, secret_ct, secret_tag, enabled, last_step, created_at, updated_at
		FROM mfa_secrets WHERE tenant_id = $1 AND user_id = $2
	`, tenantID, userID).Scan(
		&m.TenantID, &m.UserID, &blob.Alg, &blob.IV, &blob.CT, &blob.Tag,
		&m.Enabled, &m.LastStep, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	m.Secret = blob
	return &m, nil
}

func (r mfaRepo) Upsert(ctx context.Context, m repository.MFASecret) error {
	_, err := r.d.exec(ctx, `
		INSERT INTO mfa_secrets (tenant_id, user_id, secret_alg, secret_iv, secret_ct, secret_tag, enabled, last_step, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET
			secret_alg = EXCLUDED.secret_alg,
			secret_iv = EXCLUDED.secret_iv,
			secret_ct = EXCLUDED.secret_ct,
			secret_tag = EXCLUDED.secret_tag,
			enabled = EXCLUDED.enabled,
			last_step = EXCLUDED.last_step,
			updated_at = EXCLUDED.updated_at
	`, m.TenantID, m.UserID, m.Secret.Alg, m.Secret.IV, m.Secret.CT, m.Secret.Tag,
		m.Enabled, m.LastStep, m.CreatedAt, m.UpdatedAt)
	return err
}

func (r mfaRepo) Enable(ctx context.Context, tenantID, userID string, at time.Time) error {
	n, err := r.d.exec(ctx,
		`UPDATE mfa_secrets SET enabled = TRUE, updated_at = $3 WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID, at)
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r mfaRepo) AdvanceStep(ctx context.Context, tenantID, userID string, step int64) error {
	n, err := r.d.exec(ctx,
		`UPDATE mfa_secrets SET last_step = $3 WHERE tenant_id = $1 AND user_id = $2 AND last_step < $3`,
		tenantID, userID, step)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := r.Get(ctx, tenantID, userID); err != nil {
		return err
	}
	return repository.ErrConflict
}
