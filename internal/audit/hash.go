package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
)

// hashInput fija el orden de campos del digest. Cambiarlo invalida todas las cadenas.
type hashInput struct {
	ID          string `json:"id"`
	Seq         int64  `json:"seq"`
	TS          int64  `json:"ts"`
	TenantID    string `json:"tenant_id"`
	EvidenceID  string `json:"evidence_id"`
	ActorUserID string `json:"actor_user_id"`
	ActorRole   string `json:"actor_role"`
	Action      string `json:"action"`
	Entity      string `json:"entity"`
	EntityID    string `json:"entity_id"`
	Before      string `json:"before"`
	After       string `json:"after"`
	Meta        string `json:"meta"`
	Note        string `json:"note"`
	PrevHash    string `json:"prev_hash"`
}

// ComputeHash es sha256 hex sobre todos los campos del evento salvo Hash.
func ComputeHash(e repository.ChainEvent) string {
	b, _ := json.Marshal(hashInput{
		ID:          e.ID,
		Seq:         e.Seq,
		TS:          e.TS.UnixMilli(),
		TenantID:    e.TenantID,
		EvidenceID:  e.EvidenceID,
		ActorUserID: e.ActorUserID,
		ActorRole:   e.ActorRole,
		Action:      e.Action,
		Entity:      e.Entity,
		EntityID:    e.EntityID,
		Before:      e.Before,
		After:       e.After,
		Meta:        e.Meta,
		Note:        e.Note,
		PrevHash:    e.PrevHash,
	})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
