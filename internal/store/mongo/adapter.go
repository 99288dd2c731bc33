// Package mongo implementa store.DataAccessLayer sobre MongoDB (driver v2).
//
// Cada operación corre con timeout explícito (CSOT del cliente más un
// context.WithTimeout local). Las restricciones de unicidad se declaran en
// EnsureSchema y los errores de clave duplicada se traducen a ErrConflict.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
	"github.com/dropDatabas3/opslinkcad/internal/store"
)

func init() {
	store.RegisterAdapter(adapter{})
}

const (
	defaultDatabase = "opslinkcad"

	collTenants  = "communities"
	collRoles    = "roles"
	collUsers    = "users"
	collSessions = "sessions"
	collDevices  = "devices"
	collRefresh  = "refresh_tokens"
	collAttempts = "auth_attempts"
	collMFA      = "mfa_secrets"
	collAudit    = "audit_events"
	collEvidence = "evidence_chain"
)

type adapter struct{}

func (adapter) Name() string { return "mongo" }

func (adapter) Open(ctx context.Context, cfg store.Config) (store.DataAccessLayer, error) {
	return Connect(ctx, cfg)
}

// DAL es la conexión abierta.
type DAL struct {
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
}

// Connect abre el cliente y verifica el primario con Ping.
func Connect(ctx context.Context, cfg store.Config) (*DAL, error) {
	timeout := cfg.OpTimeout
	if timeout <= 0 {
		timeout = store.DefaultOpTimeout
	}

	copts := options.Client().
		ApplyURI(cfg.DSN).
		SetTimeout(timeout).
		SetServerSelectionTimeout(timeout).
		SetAppName("opslinkcad")
	if cfg.MaxConns > 0 {
		copts.SetMaxPoolSize(uint64(cfg.MaxConns))
	}
	if cfg.MinConns > 0 {
		copts.SetMinPoolSize(uint64(cfg.MinConns))
	}

	client, err := mongo.Connect(copts)
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}

	d := &DAL{
		client:  client,
		db:      client.Database(databaseName(cfg)),
		timeout: timeout,
	}
	if err := d.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.From(ctx).Info("mongo connected",
		logger.Component("store.mongo"),
		logger.String("database", d.db.Name()),
	)
	return d, nil
}

// databaseName prioriza cfg.Database, luego el path del DSN.
func databaseName(cfg store.Config) string {
	if cfg.Database != "" {
		return cfg.Database
	}
	if u, err := url.Parse(cfg.DSN); err == nil {
		if name := strings.Trim(u.Path, "/"); name != "" {
			return name
		}
	}
	return defaultDatabase
}

func (d *DAL) Driver() string { return "mongo" }

func (d *DAL) Ping(ctx context.Context) error {
	ctx, cancel := d.op(ctx)
	defer cancel()
	if err := d.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: mongo ping: %v", repository.ErrUnavailable, err)
	}
	return nil
}

func (d *DAL) Close(ctx context.Context) error {
	ctx, cancel := d.op(ctx)
	defer cancel()
	return d.client.Disconnect(ctx)
}

func (d *DAL) Tenants() repository.TenantRepository {
	return tenantRepo{d: d, c: d.db.Collection(collTenants)}
}

func (d *DAL) Roles() repository.RoleRepository {
	return roleRepo{d: d, c: d.db.Collection(collRoles)}
}

func (d *DAL) Users() repository.UserRepository {
	return userRepo{d: d, c: d.db.Collection(collUsers)}
}

func (d *DAL) Sessions() repository.SessionRepository {
	return sessionRepo{d: d, c: d.db.Collection(collSessions)}
}

func (d *DAL) Devices() repository.DeviceRepository {
	return deviceRepo{d: d, c: d.db.Collection(collDevices)}
}

func (d *DAL) RefreshTokens() repository.RefreshTokenRepository {
	return refreshRepo{d: d, c: d.db.Collection(collRefresh)}
}

func (d *DAL) Attempts() repository.AttemptRepository {
	return attemptRepo{d: d, c: d.db.Collection(collAttempts)}
}

func (d *DAL) MFA() repository.MFARepository {
	return mfaRepo{d: d, c: d.db.Collection(collMFA)}
}

func (d *DAL) AuditEvents() repository.ChainRepository {
	return chainRepo{d: d, c: d.db.Collection(collAudit)}
}

func (d *DAL) EvidenceChain() repository.ChainRepository {
	return chainRepo{d: d, c: d.db.Collection(collEvidence)}
}

// op acota la operación con el timeout del store.
func (d *DAL) op(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, d.timeout)
}

// mapErr traduce errores del driver a errores de dominio.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return repository.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", repository.ErrConflict, err)
	case mongo.IsTimeout(err), mongo.IsNetworkError(err), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	return err
}

// ─── Schema ───

type indexSpec struct {
	coll   string
	keys   bson.D
	unique bool
}

var indexes = []indexSpec{
	{collUsers, bson.D{{Key: "tenant_id", Value: 1}, {Key: "email", Value: 1}}, true},
	{collRoles, bson.D{{Key: "tenant_id", Value: 1}, {Key: "name", Value: 1}}, true},
	{collDevices, bson.D{{Key: "tenant_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "device_id", Value: 1}}, true},
	{collRefresh, bson.D{{Key: "token_hash", Value: 1}}, true},
	{collRefresh, bson.D{{Key: "tenant_id", Value: 1}, {Key: "user_id", Value: 1}}, false},
	{collRefresh, bson.D{{Key: "expires_at", Value: 1}}, false},
	{collSessions, bson.D{{Key: "tenant_id", Value: 1}, {Key: "user_id", Value: 1}}, false},
	{collSessions, bson.D{{Key: "expires_at", Value: 1}}, false},
	{collAttempts, bson.D{{Key: "tenant_id", Value: 1}, {Key: "email", Value: 1}, {Key: "ip", Value: 1}, {Key: "ts", Value: -1}}, false},
	{collAttempts, bson.D{{Key: "ts", Value: 1}}, false},
	{collMFA, bson.D{{Key: "tenant_id", Value: 1}, {Key: "user_id", Value: 1}}, true},
	{collAudit, bson.D{{Key: "hash", Value: 1}}, true},
	{collAudit, bson.D{{Key: "tenant_id", Value: 1}, {Key: "evidence_id", Value: 1}, {Key: "seq", Value: 1}}, true},
	{collEvidence, bson.D{{Key: "hash", Value: 1}}, true},
	{collEvidence, bson.D{{Key: "tenant_id", Value: 1}, {Key: "evidence_id", Value: 1}, {Key: "seq", Value: 1}}, true},
}

// EnsureSchema crea los índices; crear un índice existente es no-op en MongoDB.
func (d *DAL) EnsureSchema(ctx context.Context) error {
	log := logger.From(ctx).With(logger.Component("store.mongo"), logger.Op("EnsureSchema"))
	for _, ix := range indexes {
		opctx, cancel := d.op(ctx)
		model := mongo.IndexModel{Keys: ix.keys}
		if ix.unique {
			model.Options = options.Index().SetUnique(true)
		}
		_, err := d.db.Collection(ix.coll).Indexes().CreateOne(opctx, model)
		cancel()
		if err != nil {
			return fmt.Errorf("mongo: create index on %s: %w", ix.coll, mapErr(err))
		}
	}
	log.Info("indexes ensured", logger.Int("count", len(indexes)))
	return nil
}
