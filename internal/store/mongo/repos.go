package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
)

// ─── Tenants ───

type tenantRepo struct {
	d *DAL
	c *mongo.Collection
}

func (r tenantRepo) Get(ctx context.Context, id string) (*repository.Tenant, error) {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	var t repository.Tenant
	if err := r.c.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&t); err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (r tenantRepo) Upsert(ctx context.Context, t repository.Tenant) error {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "name", Value: t.Name}, {Key: "status", Value: t.Status}}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "created_at", Value: t.CreatedAt}}},
	}
	_, err := r.c.UpdateOne(ctx, bson.D{{Key: "_id", Value: t.ID}}, update, options.UpdateOne().SetUpsert(true))
	return mapErr(err)
}

func (r tenantRepo) List(ctx context.Context) ([]repository.Tenant, error) {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	cur, err := r.c.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, mapErr(err)
	}
	var out []repository.Tenant
	if err := cur.All(ctx, &out); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

// ─── Roles ───

type roleRepo struct {
	d *DAL
	c *mongo.Collection
}

func (r roleRepo) Get(ctx context.Context, tenantID, name string) (*repository.Role, error) {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	var role repository.Role
	err := r.c.FindOne(ctx, bson.D{{Key: "tenant_id", Value: tenantID}, {Key: "name", Value: name}}).Decode(&role)
	if err != nil {
		return nil, mapErr(err)
	}
	return &role, nil
}

func (r roleRepo) Upsert(ctx context.Context, role repository.Role) error {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	filter := bson.D{{Key: "tenant_id", Value: role.TenantID}, {Key: "name", Value: role.Name}}
	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "perms", Value: role.Perms}}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "created_at", Value: role.CreatedAt}}},
	}
	_, err := r.c.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return mapErr(err)
}

// ─── Users ───

type userRepo struct {
	d *DAL
	c *mongo.Collection
}

func (r userRepo) Create(ctx context.Context, u repository.User) error {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	_, err := r.c.InsertOne(ctx, u)
	return mapErr(err)
}

func (r userRepo) GetByEmail(ctx context.Context, tenantID, email string) (*repository.User, error) {
	return r.findOne(ctx, bson.D{{Key: "tenant_id", Value: tenantID}, {Key: "email", Value: email}})
}

func (r userRepo) GetByID(ctx context.Context, tenantID, id string) (*repository.User, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}, {Key: "tenant_id", Value: tenantID}})
}

func (r userRepo) findOne(ctx context.Context, filter bson.D) (*repository.User, error) {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	var u repository.User
	if err := r.c.FindOne(ctx, filter).Decode(&u); err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}
