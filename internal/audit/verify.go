package audit

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
)

// Report es el resultado de reproducir una partición.
type Report struct {
	Partition string `json:"partition"`
	Events    int    `json:"events"`
	HeadHash  string `json:"head_hash,omitempty"`
	OK        bool   `json:"ok"`

	// BrokenSeq y Reason sólo se llenan cuando OK es false.
	BrokenSeq int64  `json:"broken_seq,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Verify reproduce la partición de la más vieja a la más nueva y recalcula
// cada hash. Ante cualquier diferencia retorna el reporte y un error que
// envuelve ErrTampered.
func (c *Chain) Verify(ctx context.Context, tenantID, evidenceID string) (Report, error) {
	p, err := c.partition(tenantID, evidenceID)
	if err != nil {
		return Report{}, err
	}
	events, err := c.repo.List(ctx, p)
	if err != nil {
		return Report{}, fmt.Errorf("audit: list: %w", err)
	}
	return VerifyEvents(p, events)
}

// VerifyEvents valida una secuencia ya cargada y ordenada por seq.
func VerifyEvents(p repository.Partition, events []repository.ChainEvent) (Report, error) {
	rep := Report{Partition: p.String(), Events: len(events)}

	prev := GenesisHash
	for i, e := range events {
		want := int64(i + 1)
		var reason string
		switch {
		case e.TenantID != p.TenantID || e.EvidenceID != p.EvidenceID:
			reason = "foreign partition"
		case e.Seq != want:
			reason = fmt.Sprintf("sequence gap: want %d got %d", want, e.Seq)
		case e.PrevHash != prev:
			reason = "prev_hash does not link to predecessor"
		case ComputeHash(e) != e.Hash:
			reason = "hash mismatch"
		}
		if reason != "" {
			rep.BrokenSeq = e.Seq
			rep.Reason = reason
			return rep, fmt.Errorf("%w: %s at seq %d: %s", ErrTampered, rep.Partition, e.Seq, reason)
		}
		prev = e.Hash
	}

	rep.OK = true
	rep.HeadHash = prev
	return rep, nil
}
