package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
)

type chainRepo struct {
	d *DAL
	c *mongo.Collection
}

func partitionFilter(p repository.Partition) bson.D {
	return bson.D{{Key: "tenant_id", Value: p.TenantID}, {Key: "evidence_id", Value: p.EvidenceID}}
}

func (r chainRepo) Last(ctx context.Context, p repository.Partition) (*repository.ChainEvent, error) {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	var e repository.ChainEvent
	opts := options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}})
	if err := r.c.FindOne(ctx, partitionFilter(p), opts).Decode(&e); err != nil {
		return nil, mapErr(err)
	}
	return &e, nil
}

// Insert depende de los índices únicos (hash) y (tenant, evidence, seq):
// un escritor concurrente que calculó el mismo eslabón recibe ErrConflict.
func (r chainRepo) Insert(ctx context.Context, e repository.ChainEvent) error {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	_, err := r.c.InsertOne(ctx, e)
	return mapErr(err)
}

func (r chainRepo) List(ctx context.Context, p repository.Partition) ([]repository.ChainEvent, error) {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	cur, err := r.c.Find(ctx, partitionFilter(p), options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, mapErr(err)
	}
	var out []repository.ChainEvent
	if err := cur.All(ctx, &out); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}
