// Package custody contiene DTOs de cadena de custodia y auditoría.
package custody

import (
	"encoding/json"
	"time"

	"github.com/dropDatabas3/opslinkcad/internal/audit"
	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
)

// AppendRequest es un evento de custodia {action, from, to, note}.
type AppendRequest struct {
	Action string          `json:"action"`
	From   json.RawMessage `json:"from,omitempty"`
	To     json.RawMessage `json:"to,omitempty"`
	Note   string          `json:"note,omitempty"`
}

type Event struct {
	ID          string          `json:"id"`
	Seq         int64           `json:"seq"`
	EvidenceID  string          `json:"evidence_id,omitempty"`
	ActorUserID string          `json:"actor_user_id,omitempty"`
	ActorRole   string          `json:"actor_role,omitempty"`
	Action      string          `json:"action"`
	Entity      string          `json:"entity"`
	EntityID    string          `json:"entity_id,omitempty"`
	Before      json.RawMessage `json:"before,omitempty"`
	After       json.RawMessage `json:"after,omitempty"`
	Note        string          `json:"note,omitempty"`
	TS          time.Time       `json:"ts"`
	PrevHash    string          `json:"prev_hash"`
	Hash        string          `json:"hash"`
}

type AppendResponse struct {
	OK    bool  `json:"ok"`
	Event Event `json:"event"`
}

type ListResponse struct {
	OK     bool         `json:"ok"`
	Events []Event      `json:"events"`
	Report audit.Report `json:"report"`
}

type VerifyResponse struct {
	OK     bool         `json:"ok"`
	Report audit.Report `json:"report"`
}

// rawOrNil devuelve el snapshot canónico como JSON si lo es, o como string.
func rawOrNil(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	b, _ := json.Marshal(s)
	return b
}

func FromChainEvent(e repository.ChainEvent) Event {
	return Event{
		ID:          e.ID,
		Seq:         e.Seq,
		EvidenceID:  e.EvidenceID,
		ActorUserID: e.ActorUserID,
		ActorRole:   e.ActorRole,
		Action:      e.Action,
		Entity:      e.Entity,
		EntityID:    e.EntityID,
		Before:      rawOrNil(e.Before),
		After:       rawOrNil(e.After),
		Note:        e.Note,
		TS:          e.TS,
		PrevHash:    e.PrevHash,
		Hash:        e.Hash,
	}
}
