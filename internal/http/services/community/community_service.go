// Package community expone el directorio de comunidades (tenants) en modo lectura.
package community

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
	dto "github.com/dropDatabas3/opslinkcad/internal/http/dto/community"
	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
	"github.com/dropDatabas3/opslinkcad/internal/session"
)

const maxCommunityIDLen = 128

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("community not found")
)

// Service define las lecturas del directorio.
type Service interface {
	List(ctx context.Context, p *session.Principal) (*dto.ListResponse, error)
	Get(ctx context.Context, p *session.Principal, id string) (*dto.GetResponse, error)
}

type service struct {
	tenants repository.TenantRepository
}

// NewService creates a new community service.
func NewService(tenants repository.TenantRepository) Service {
	return &service{tenants: tenants}
}

// List retorna sólo las comunidades activas.
func (s *service) List(ctx context.Context, p *session.Principal) (*dto.ListResponse, error) {
	if p == nil {
		return nil, ErrUnauthorized
	}
	rows, err := s.tenants.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list communities: %w", err)
	}
	out := &dto.ListResponse{OK: true, Communities: make([]dto.Community, 0, len(rows))}
	for _, t := range rows {
		if t.Active() {
			out.Communities = append(out.Communities, toDTO(t))
		}
	}
	logger.From(ctx).Debug("communities listed",
		logger.Layer("service"),
		logger.Component("community"),
		logger.Count(int64(len(out.Communities))),
	)
	return out, nil
}

// Get busca por id sin filtrar estado.
func (s *service) Get(ctx context.Context, p *session.Principal, id string) (*dto.GetResponse, error) {
	if p == nil {
		return nil, ErrUnauthorized
	}
	id = strings.TrimSpace(id)
	if id == "" || len(id) > maxCommunityIDLen {
		return nil, ErrNotFound
	}
	t, err := s.tenants.Get(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get community: %w", err)
	}
	return &dto.GetResponse{OK: true, Community: toDTO(*t)}, nil
}

func toDTO(t repository.Tenant) dto.Community {
	return dto.Community{ID: t.ID, Name: t.Name, Status: t.Status, CreatedAt: t.CreatedAt}
}
