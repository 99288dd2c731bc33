package custody

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/opslinkcad/internal/audit"
	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
	"github.com/dropDatabas3/opslinkcad/internal/domain/types"
	dto "github.com/dropDatabas3/opslinkcad/internal/http/dto/custody"
	"github.com/dropDatabas3/opslinkcad/internal/realtime"
	"github.com/dropDatabas3/opslinkcad/internal/session"
	"github.com/dropDatabas3/opslinkcad/internal/store/memory"
)

type recordingHub struct {
	tenant string
	perm   string
	events []any
}

func (h *recordingHub) Broadcast(tenantID string, ev any, perm string) int {
	h.tenant, h.perm = tenantID, perm
	h.events = append(h.events, ev)
	return 1
}

func newTestService(t *testing.T) (Service, *memory.Store, *recordingHub) {
	t.Helper()
	dal := memory.New()
	hub := &recordingHub{}
	svc := NewService(Deps{
		Evidence:     audit.NewEvidenceChain(dal.EvidenceChain()),
		EvidenceRepo: dal.EvidenceChain(),
		Audit:        audit.NewAuditChain(dal.AuditEvents()),
		AuditRepo:    dal.AuditEvents(),
		Hub:          hub,
	})
	return svc, dal, hub
}

func officer(tenant string) *session.Principal {
	return &session.Principal{
		UserID:   "u-1",
		TenantID: tenant,
		Role:     "Officer",
		Caps:     types.NewCapabilities(types.PermEvidenceRead, types.PermEvidenceWrite),
	}
}

func TestAppendAndList(t *testing.T) {
	svc, _, hub := newTestService(t)
	ctx := context.Background()
	p := officer("alpha")

	first, err := svc.Append(ctx, p, "EV-1", dto.AppendRequest{
		Action: "checkout",
		From:   json.RawMessage(`{"locker":"A1"}`),
		To:     json.RawMessage(`{"officer":"u-1"}`),
		Note:   "lab",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Event.Seq)
	assert.Equal(t, "evidence", first.Event.Entity)
	assert.JSONEq(t, `{"locker":"A1"}`, string(first.Event.Before))

	second, err := svc.Append(ctx, p, "EV-1", dto.AppendRequest{Action: "return"})
	require.NoError(t, err)
	assert.Equal(t, first.Event.Hash, second.Event.PrevHash)
	assert.Nil(t, second.Event.Before)

	require.Len(t, hub.events, 2)
	assert.Equal(t, "alpha", hub.tenant)
	assert.Equal(t, types.PermEvidenceRead, hub.perm)
	ev, ok := hub.events[0].(realtime.Event)
	require.True(t, ok)
	assert.Equal(t, EventCustody, ev.Type)

	list, err := svc.List(ctx, p, "EV-1")
	require.NoError(t, err)
	require.Len(t, list.Events, 2)
	assert.True(t, list.Report.OK)
	assert.Equal(t, 2, list.Report.Events)
	assert.Equal(t, second.Event.Hash, list.Report.HeadHash)

	// otra evidencia es otra cadena
	other, err := svc.List(ctx, p, "EV-2")
	require.NoError(t, err)
	assert.Empty(t, other.Events)
	assert.True(t, other.Report.OK)
}

func TestList_TenantIsolation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Append(ctx, officer("alpha"), "EV-1", dto.AppendRequest{Action: "seize"})
	require.NoError(t, err)

	list, err := svc.List(ctx, officer("bravo"), "EV-1")
	require.NoError(t, err)
	assert.Empty(t, list.Events)
}

func TestList_ReportsTampering(t *testing.T) {
	svc, dal, _ := newTestService(t)
	ctx := context.Background()
	p := officer("alpha")

	for _, a := range []string{"seize", "transfer", "store"} {
		_, err := svc.Append(ctx, p, "EV-9", dto.AppendRequest{Action: a})
		require.NoError(t, err)
	}
	require.True(t, dal.UnsafeEditChainEvent(true, repository.Partition{TenantID: "alpha", EvidenceID: "EV-9"}, 2, func(e *repository.ChainEvent) {
		e.Note = "edited"
	}))

	list, err := svc.List(ctx, p, "EV-9")
	require.NoError(t, err)
	assert.False(t, list.Report.OK)
	assert.Equal(t, int64(2), list.Report.BrokenSeq)
}

func TestAppend_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Append(ctx, officer("alpha"), " ", dto.AppendRequest{Action: "seize"})
	require.ErrorIs(t, err, ErrInvalidEvidenceID)

	_, err = svc.Append(ctx, officer("alpha"), "EV-1", dto.AppendRequest{})
	require.ErrorIs(t, err, ErrMissingAction)

	_, err = svc.Append(ctx, nil, "EV-1", dto.AppendRequest{Action: "seize"})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyAudit(t *testing.T) {
	svc, dal, _ := newTestService(t)
	ctx := context.Background()

	chain := audit.NewAuditChain(dal.AuditEvents())
	_, err := chain.Append(ctx, audit.Entry{TenantID: "alpha", Action: "login", Entity: "session"})
	require.NoError(t, err)

	res, err := svc.VerifyAudit(ctx, officer("alpha"))
	require.NoError(t, err)
	assert.True(t, res.Report.OK)
	assert.Equal(t, 1, res.Report.Events)
}
