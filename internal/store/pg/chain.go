package pg

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
)

// chainRepo sirve audit_events y evidence_chain; table es una constante interna.
type chainRepo struct {
	d     *DAL
	table string
}

const chainColumns = `id, tenant_id, evidence_id, seq, actor_user_id, actor_role, action, entity, entity_id,
	before, after, meta, note, ts, prev_hash, hash`

func scanChainEvent(row pgx.Row) (repository.ChainEvent, error) {
	var e repository.ChainEvent
	err := row.Scan(
		&e.ID, &e.TenantID, &e.EvidenceID, &e.Seq, &e.ActorUserID, &e.ActorRole, &e.Action, &e.Entity, &e.EntityID,
		&e.Before, &e.After, &e.Meta, &e.Note, &e.TS, &e.PrevHash, &e.Hash,
	)
	return e, err
}

func (r chainRepo) Last(ctx context.Context, p repository.Partition) (*repository.ChainEvent, error) {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	row := r.d.pool.QueryRow(ctx, `SELECT `+chainColumns+` FROM `+r.table+`
		WHERE tenant_id = $1 AND evidence_id = $2 ORDER BY seq DESC LIMIT 1`, p.TenantID, p.EvidenceID)
	e, err := scanChainEvent(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return &e, nil
}

func (r chainRepo) Insert(ctx context.Context, e repository.ChainEvent) error {
	_, err := r.d.exec(ctx, `INSERT INTO `+r.table+` (`+chainColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		e.ID, e.TenantID, e.EvidenceID, e.Seq, e.ActorUserID, e.ActorRole, e.Action, e.Entity, e.EntityID,
		e.Before, e.After, e.Meta, e.Note, e.TS, e.PrevHash, e.Hash,
	)
	return err
}

func (r chainRepo) List(ctx context.Context, p repository.Partition) ([]repository.ChainEvent, error) {
	ctx, cancel := r.d.op(ctx)
	defer cancel()
	rows, err := r.d.pool.Query(ctx, `SELECT `+chainColumns+` FROM `+r.table+`
		WHERE tenant_id = $1 AND evidence_id = $2 ORDER BY seq ASC`, p.TenantID, p.EvidenceID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []repository.ChainEvent
	for rows.Next() {
		e, err := scanChainEvent(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		out = append(out, e)
	}
	return out, mapErr(rows.Err())
}
