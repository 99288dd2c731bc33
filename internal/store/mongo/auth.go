package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
)

// revokeOne marca revoked_at sólo si no estaba marcado; el filtro
// revoked_at: null hace que un único caller gane. Distingue "no existe"
// (ErrNotFound) de "ya revocado" (ErrConflict) con un segundo conteo.
func revokeOne(ctx context.Context, c *mongo.Collection, tenantID, id string, at time.Time) error {
	filter := bson.D{{Key: "_id", Value: id}, {Key: "tenant_id", Value: tenantID}}
	unrevoked := append(bson.D{}, filter...)
	unrevoked = append(unrevoked, bson.E{Key: "revoked_at", Value: nil})

	res, err := c.UpdateOne(ctx, unrevoked, bson.D{{Key: "$set", Value: bson.D{{Key: "revoked_at", Value: at}}}})
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	n, err := c.CountDocuments(ctx, filter)
	if err != nil {
		return mapErr(err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

func revokeAllForUser(ctx context.Context, c *mongo.Collection, tenantID, userID string, at time.Time) (int64, error) {
	filter := bson.D{
		{Key: "tenant_id", Value: tenantID},
		{Key: "user_id", Value: userID},
		{Key: "revoked_at", Value: nil},
	}
	res, err := c.UpdateMany(ctx, filter, bson.D{{Key: "$set", Value: bson.D{{Key: "revoked_at", Value: at}}}})
	if err != nil {
		return 0, mapErr(err)
	}
	return res.ModifiedCount, nil
}

func deleteExpired(ctx context.Context, c *mongo.Collection, now time.Time) (int64, error) {
	res, err := c.DeleteMany(ctx, bson.D{{Key: "expires_at", Value: bson.D{{Key: "$lt", Value: now}}}})
	if err != nil {
		return 0, mapErr(err)
	}
	return res.DeletedCount, nil
}

// ─── Sessions ───

type sessionRepo struct {
	d *DAL
	c *mongo.Collection
}

func (r sessionRepo) Create(ctx context.Context, s repository.Session) error {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	_, err := r.c.InsertOne(ctx, s)
	return mapErr(err)
}

func (r sessionRepo) Get(ctx context.Context, tenantID, id string) (*repository.Session, error) {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	var s repository.Session
	if err := r.c.FindOne(ctx, bson.D{{Key: "_id", Value: id}, {Key: "tenant_id", Value: tenantID}}).Decode(&s); err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

func (r sessionRepo) Revoke(ctx context.Context, tenantID, id string, at time.Time) error {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	if err := revokeOne(ctx, r.c, tenantID, id, at); err != nil && !repository.IsConflict(err) {
		return err
	}
	return nil
}

func (r sessionRepo) RevokeAllForUser(ctx context.Context, tenantID, userID string, at time.Time) (int64, error) {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	return revokeAllForUser(ctx, r.c, tenantID, userID, at)
}

func (r sessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	return deleteExpired(ctx, r.c, now)
}

// ─── Devices ───

type deviceRepo struct {
	d *DAL
	c *mongo.Collection
}

func (r deviceRepo) Upsert(ctx context.Context, dev repository.Device) error {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	filter := bson.D{
		{Key: "tenant_id", Value: dev.TenantID},
		{Key: "user_id", Value: dev.UserID},
		{Key: "device_id", Value: dev.DeviceID},
	}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "device_name", Value: dev.DeviceName},
			{Key: "ip", Value: dev.IP},
			{Key: "user_agent", Value: dev.UserAgent},
			{Key: "last_seen_at", Value: dev.LastSeenAt},
		}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "created_at", Value: dev.CreatedAt}}},
	}
	_, err := r.c.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if repository.IsConflict(mapErr(err)) {
		// dos upserts concurrentes del mismo dispositivo: el otro ganó
		return nil
	}
	return mapErr(err)
}

func (r deviceRepo) Get(ctx context.Context, tenantID, userID, deviceID string) (*repository.Device, error) {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	var dev repository.Device
	filter := bson.D{
		{Key: "tenant_id", Value: tenantID},
		{Key: "user_id", Value: userID},
		{Key: "device_id", Value: deviceID},
	}
	if err := r.c.FindOne(ctx, filter).Decode(&dev); err != nil {
		return nil, mapErr(err)
	}
	return &dev, nil
}

// ─── Refresh tokens ───

type refreshRepo struct {
	d *DAL
	c *mongo.Collection
}

func (r refreshRepo) Create(ctx context.Context, t repository.RefreshToken) error {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	_, err := r.c.InsertOne(ctx, t)
	return mapErr(err)
}

func (r refreshRepo) Get(ctx context.Context, tenantID, id string) (*repository.RefreshToken, error) {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	var t repository.RefreshToken
	if err := r.c.FindOne(ctx, bson.D{{Key: "_id", Value: id}, {Key: "tenant_id", Value: tenantID}}).Decode(&t); err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (r refreshRepo) Revoke(ctx context.Context, tenantID, id string, at time.Time) error {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	return revokeOne(ctx, r.c, tenantID, id, at)
}

func (r refreshRepo) RevokeAllForUser(ctx context.Context, tenantID, userID string, at time.Time) (int64, error) {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	return revokeAllForUser(ctx, r.c, tenantID, userID, at)
}

func (r refreshRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	return deleteExpired(ctx, r.c, now)
}

// ─── Attempts ───

type attemptRepo struct {
	d *DAL
	c *mongo.Collection
}

func (r attemptRepo) Record(ctx context.Context, a repository.AuthAttempt) error {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	_, err := r.c.InsertOne(ctx, a)
	return mapErr(err)
}

func (r attemptRepo) CountFailures(ctx context.Context, tenantID, email, ip string, since time.Time) (int64, error) {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	filter := bson.D{
		{Key: "tenant_id", Value: tenantID},
		{Key: "email", Value: email},
		{Key: "ip", Value: ip},
		{Key: "ok", Value: false},
		{Key: "ts", Value: bson.D{{Key: "$gte", Value: since}}},
	}
	n, err := r.c.CountDocuments(ctx, filter)
	return n, mapErr(err)
}

func (r attemptRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	res, err := r.c.DeleteMany(ctx, bson.D{{Key: "ts", Value: bson.D{{Key: "$lt", Value: cutoff}}}})
	if err != nil {
		return 0, mapErr(err)
	}
	return res.DeletedCount, nil
}

// ─── MFA ───

type mfaRepo struct {
	d *DAL
	c *mongo.Collection
}

func mfaFilter(tenantID, userID string) bson.D {
	return bson.D{{Key: "tenant_id", Value: tenantID}, {Key: "user_id", Value: userID}}
}

func (r mfaRepo) Get(ctx context.Context, tenantID, userID string) (*repository.MFASecret, error) {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	var m repository.MFASecret
	if err := r.c.FindOne(ctx, mfaFilter(tenantID, userID)).Decode(&m); err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

func (r mfaRepo) Upsert(ctx context.Context, m repository.MFASecret) error {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "secret", Value: m.Secret},
			{Key: "enabled", Value: m.Enabled},
			{Key: "last_step", Value: m.LastStep},
			{Key: "updated_at", Value: m.UpdatedAt},
		}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "created_at", Value: m.CreatedAt}}},
	}
	_, err := r.c.UpdateOne(ctx, mfaFilter(m.TenantID, m.UserID), update, options.UpdateOne().SetUpsert(true))
	return mapErr(err)
}

func (r mfaRepo) Enable(ctx context.Context, tenantID, userID string, at time.Time) error {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	res, err := r.c.UpdateOne(ctx, mfaFilter(tenantID, userID), bson.D{{Key: "$set", Value: bson.D{
		{Key: "enabled", Value: true},
		{Key: "updated_at", Value: at},
	}}})
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r mfaRepo) AdvanceStep(ctx context.Context, tenantID, userID string, step int64) error {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	filter := append(mfaFilter(tenantID, userID), bson.E{Key: "last_step", Value: bson.D{{Key: "$lt", Value: step}}})
	res, err := r.c.UpdateOne(ctx, filter, bson.D{{Key: "$set", Value: bson.D{{Key: "last_step", Value: step}}}})
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	n, err := r.c.CountDocuments(ctx, mfaFilter(tenantID, userID))
	if err != nil {
		return mapErr(err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}
