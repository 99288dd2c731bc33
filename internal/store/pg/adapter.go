// Package pg implementa store.DataAccessLayer sobre PostgreSQL con pgxpool.
package pg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
	"github.com/dropDatabas3/opslinkcad/internal/store"
	migrations "github.com/dropDatabas3/opslinkcad/migrations/postgres"
)

func init() {
	store.RegisterAdapter(adapter{})
}

type adapter struct{}

func (adapter) Name() string { return "postgres" }

func (adapter) Open(ctx context.Context, cfg store.Config) (store.DataAccessLayer, error) {
	return Connect(ctx, cfg)
}

// DAL es la conexión abierta.
type DAL struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// Connect crea el pool y hace ping.
func Connect(ctx context.Context, cfg store.Config) (*DAL, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	timeout := cfg.OpTimeout
	if timeout <= 0 {
		timeout = store.DefaultOpTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}

	d := &DAL{pool: pool, timeout: timeout}
	if err := d.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.From(ctx).Info("postgres connected",
		logger.Component("store.pg"),
		logger.Int("max_conns", int(poolCfg.MaxConns)),
	)
	return d, nil
}

func (d *DAL) Driver() string { return "postgres" }

func (d *DAL) Ping(ctx context.Context) error {
	ctx, cancel := d.op(ctx)
	defer cancel()
	if err := d.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: pg ping: %v", repository.ErrUnavailable, err)
	}
	return nil
}

func (d *DAL) Close(context.Context) error {
	d.pool.Close()
	return nil
}

func (d *DAL) Tenants() repository.TenantRepository { return tenantRepo{d} }
func (d *DAL) Roles() repository.RoleRepository { return roleRepo{d} }
func (d *DAL) Users() repository.UserRepository { return userRepo{d} }
func (d *DAL) Sessions() repository.SessionRepository { return sessionRepo{d} }
func (d *DAL) Devices() repository.DeviceRepository { return deviceRepo{d} }
func (d *DAL) RefreshTokens() repository.RefreshTokenRepository { return refreshRepo{d} }
func (d *DAL) Attempts() repository.AttemptRepository { return attemptRepo{d} }
func (d *DAL) MFA() repository.MFARepository { return mfaRepo{d} }
func (d *DAL) AuditEvents() repository.ChainRepository { return chainRepo{d: d, table: "audit_events"} }
func (d *DAL) EvidenceChain() repository.ChainRepository { return chainRepo{d: d, table: "evidence_chain"} }

func (d *DAL) op(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, d.timeout)
}

// exec corre un statement bajo timeout y retorna filas afectadas.
func (d *DAL) exec(ctx context.Context, sql string, args ...any) (int64, error) {
	ctx, cancel := d.op(ctx)
	defer cancel()
	tag, err := d.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return fmt.Errorf("%w: %s", repository.ErrConflict, pgErr.ConstraintName)
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	return err
}

// ─── Schema ───

const migrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version     TEXT PRIMARY KEY,
    applied_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// EnsureSchema aplica las migraciones embebidas pendientes, una transacción por archivo.
func (d *DAL) EnsureSchema(ctx context.Context) error {
	log := logger.From(ctx).With(logger.Component("store.pg"), logger.Op("EnsureSchema"))

	if _, err := d.exec(ctx, migrationsTable); err != nil {
		return fmt.Errorf("pg: create schema_migrations: %w", err)
	}

	files, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)

	applied := 0
	for _, name := range files {
		body, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return err
		}
		ok, err := d.applyMigration(ctx, name, string(body))
		if err != nil {
			return fmt.Errorf("pg: migration %s: %w", name, err)
		}
		if ok {
			applied++
			log.Info("migration applied", logger.String("version", name))
		}
	}
	log.Debug("schema up to date", logger.Int("applied", applied), logger.Int("total", len(files)))
	return nil
}

func (d *DAL) applyMigration(ctx context.Context, version, body string) (bool, error) {
	ctx, cancel := d.op(ctx)
	defer cancel()

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return false, mapErr(err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING`, version)
	if err != nil {
		return false, mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if _, err := tx.Exec(ctx, body); err != nil {
		return false, mapErr(err)
	}
	return true, mapErr(tx.Commit(ctx))
}
