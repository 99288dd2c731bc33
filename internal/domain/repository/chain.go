package repository

import (
	"context"
	"time"
)

// Partition identifica una cadena: solo TenantID para auditoría,
// TenantID+EvidenceID para cadena de custodia.
type Partition struct {
	TenantID   string
	EvidenceID string
}

// String retorna "tenant" o "tenant/evidence".
func (p Partition) String() string {
	if p.EvidenceID == "" {
		return p.TenantID
	}
	return p.TenantID + "/" + p.EvidenceID
}

// ChainEvent es un eslabón append-only. Before/After/Meta son JSON canónico.
// Seq es la posición dentro de la partición (1..n).
type ChainEvent struct {
	ID          string    `bson:"_id"`
	TenantID    string    `bson:"tenant_id"`
	EvidenceID  string    `bson:"evidence_id"`
	Seq         int64     `bson:"seq"`
	ActorUserID string    `bson:"actor_user_id"`
	ActorRole   string    `bson:"actor_role"`
	Action      string    `bson:"action"`
	Entity      string    `bson:"entity"`
	EntityID    string    `bson:"entity_id"`
	Before      string    `bson:"before"`
	After       string    `bson:"after"`
	Meta        string    `bson:"meta"`
	Note        string    `bson:"note"`
	TS          time.Time `bson:"ts"`
	PrevHash    string    `bson:"prev_hash"`
	Hash        string    `bson:"hash"`
}

// Partition retorna la partición a la que pertenece el evento.
func (e ChainEvent) Partition() Partition {
	return Partition{TenantID: e.TenantID, EvidenceID: e.EvidenceID}
}

// ChainRepository persiste una colección de eventos encadenados.
// Unicidad: hash, y (tenant, evidence, seq).
type ChainRepository interface {
	// Last retorna el evento de mayor Seq de la partición, o ErrNotFound si está vacía.
	Last(ctx context.Context, p Partition) (*ChainEvent, error)

	// Insert retorna ErrConflict si otro escritor ocupó el Seq o el hash.
	Insert(ctx context.Context, e ChainEvent) error

	// List retorna la partición ordenada por Seq ascendente.
	List(ctx context.Context, p Partition) ([]ChainEvent, error)
}
