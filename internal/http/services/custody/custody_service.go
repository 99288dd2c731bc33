// Package custody expone la cadena de custodia de evidencia y la verificación
// de la cadena de auditoría del tenant.
package custody

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dropDatabas3/opslinkcad/internal/audit"
	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
	"github.com/dropDatabas3/opslinkcad/internal/domain/types"
	dto "github.com/dropDatabas3/opslinkcad/internal/http/dto/custody"
	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
	"github.com/dropDatabas3/opslinkcad/internal/realtime"
	"github.com/dropDatabas3/opslinkcad/internal/session"
)

// EventCustody es el tipo de frame realtime emitido en cada append.
const EventCustody = "evidence.custody"

const maxEvidenceIDLen = 128

var (
	ErrInvalidEvidenceID = errors.New("invalid evidence id")
	ErrMissingAction     = errors.New("action is required")
	ErrUnauthorized      = errors.New("unauthorized")
)

// Broadcaster publica eventos a las conexiones realtime de un tenant.
type Broadcaster interface {
	Broadcast(tenantID string, ev any, requiredPerm string) int
}

// Deps contiene las dependencias del service de custodia.
type Deps struct {
	Evidence     *audit.Chain
	EvidenceRepo repository.ChainRepository
	Audit        *audit.Chain
	AuditRepo    repository.ChainRepository

	// Hub es opcional.
	Hub Broadcaster
}

// Service define las operaciones de custodia y verificación.
type Service interface {
	Append(ctx context.Context, p *session.Principal, evidenceID string, in dto.AppendRequest) (*dto.AppendResponse, error)
	List(ctx context.Context, p *session.Principal, evidenceID string) (*dto.ListResponse, error)
	VerifyAudit(ctx context.Context, p *session.Principal) (*dto.VerifyResponse, error)
}

type service struct {
	deps Deps
}

// NewService creates a new custody service.
func NewService(deps Deps) Service {
	return &service{deps: deps}
}

func normalizeEvidenceID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > maxEvidenceIDLen || strings.ContainsAny(id, "/\\") {
		return "", ErrInvalidEvidenceID
	}
	return id, nil
}

func (s *service) Append(ctx context.Context, p *session.Principal, evidenceID string, in dto.AppendRequest) (*dto.AppendResponse, error) {
	if p == nil {
		return nil, ErrUnauthorized
	}
	evidenceID, err := normalizeEvidenceID(evidenceID)
	if err != nil {
		return nil, err
	}
	in.Action = strings.TrimSpace(in.Action)
	if in.Action == "" {
		return nil, ErrMissingAction
	}

	ev, err := s.deps.Evidence.Append(ctx, audit.Entry{
		TenantID:    p.TenantID,
		EvidenceID:  evidenceID,
		ActorUserID: p.UserID,
		ActorRole:   p.Role,
		Action:      in.Action,
		Entity:      "evidence",
		EntityID:    evidenceID,
		Before:      in.From,
		After:       in.To,
		Note:        in.Note,
	})
	if err != nil {
		return nil, err
	}

	out := dto.FromChainEvent(*ev)
	if s.deps.Hub != nil {
		n := s.deps.Hub.Broadcast(p.TenantID, realtime.Event{Type: EventCustody, Data: out}, types.PermEvidenceRead)
		logger.From(ctx).Debug("custody broadcast", logger.Layer("service"), logger.Count(int64(n)))
	}
	logger.From(ctx).Info("custody appended",
		logger.Layer("service"),
		logger.Component("custody"),
		logger.TenantID(p.TenantID),
		logger.UserID(p.UserID),
		logger.String("evidence_id", evidenceID),
		logger.Int("seq", int(ev.Seq)),
	)
	return &dto.AppendResponse{OK: true, Event: out}, nil
}

func (s *service) List(ctx context.Context, p *session.Principal, evidenceID string) (*dto.ListResponse, error) {
	if p == nil {
		return nil, ErrUnauthorized
	}
	evidenceID, err := normalizeEvidenceID(evidenceID)
	if err != nil {
		return nil, err
	}
	part := repository.Partition{TenantID: p.TenantID, EvidenceID: evidenceID}
	events, err := s.deps.EvidenceRepo.List(ctx, part)
	if err != nil {
		return nil, fmt.Errorf("list custody: %w", err)
	}
	report, err := verifyReport(ctx, part, events)
	if err != nil {
		return nil, err
	}

	out := make([]dto.Event, 0, len(events))
	for _, e := range events {
		out = append(out, dto.FromChainEvent(e))
	}
	return &dto.ListResponse{OK: true, Events: out, Report: report}, nil
}

func (s *service) VerifyAudit(ctx context.Context, p *session.Principal) (*dto.VerifyResponse, error) {
	if p == nil {
		return nil, ErrUnauthorized
	}
	part := repository.Partition{TenantID: p.TenantID}
	events, err := s.deps.AuditRepo.List(ctx, part)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	report, err := verifyReport(ctx, part, events)
	if err != nil {
		return nil, err
	}
	return &dto.VerifyResponse{OK: true, Report: report}, nil
}

// verifyReport convierte ErrTampered en un reporte con OK=false: una cadena
// rota es un resultado, no un error del request.
func verifyReport(ctx context.Context, part repository.Partition, events []repository.ChainEvent) (audit.Report, error) {
	report, err := audit.VerifyEvents(part, events)
	if err != nil && !errors.Is(err, audit.ErrTampered) {
		return audit.Report{}, err
	}
	if err != nil {
		logger.From(ctx).Error("chain verification failed",
			logger.Layer("service"),
			logger.Partition(part.String()),
			logger.Err(err),
		)
	}
	return report, nil
}
