package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
	"github.com/dropDatabas3/opslinkcad/internal/domain/types"
	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
)

// SeedOptions configura el bootstrap de datos base.
type SeedOptions struct {
	// TenantID opcional: crea (o reactiva) ese tenant antes de sembrar roles.
	TenantID   string
	TenantName string

	Now func() time.Time
}

// SeedResult resume lo aplicado.
type SeedResult struct {
	Tenants int
	Roles   int
}

// Seed aplica el schema y siembra los roles base en todos los tenants.
// Es idempotente: re-ejecutarlo solo actualiza las perms de los templates.
func Seed(ctx context.Context, dal DataAccessLayer, opts SeedOptions) (SeedResult, error) {
	log := logger.From(ctx).With(logger.Component("store.seed"), logger.Op("Seed"))
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	if err := dal.EnsureSchema(ctx); err != nil {
		return SeedResult{}, fmt.Errorf("ensure schema: %w", err)
	}

	if id := strings.TrimSpace(opts.TenantID); id != "" {
		name := strings.TrimSpace(opts.TenantName)
		if name == "" {
			name = id
		}
		if err := dal.Tenants().Upsert(ctx, repository.Tenant{
			ID:        id,
			Name:      name,
			Status:    repository.StatusActive,
			CreatedAt: now().UTC(),
		}); err != nil {
			return SeedResult{}, fmt.Errorf("upsert tenant %s: %w", id, err)
		}
		log.Info("tenant bootstrapped", logger.TenantID(id))
	}

	tenants, err := dal.Tenants().List(ctx)
	if err != nil {
		return SeedResult{}, fmt.Errorf("list tenants: %w", err)
	}

	var res SeedResult
	for _, t := range tenants {
		for _, tpl := range types.RoleTemplates() {
			if err := dal.Roles().Upsert(ctx, repository.Role{
				TenantID:  t.ID,
				Name:      tpl.Name,
				Perms:     tpl.Perms,
				CreatedAt: now().UTC(),
			}); err != nil {
				return res, fmt.Errorf("upsert role %s/%s: %w", t.ID, tpl.Name, err)
			}
			res.Roles++
		}
		res.Tenants++
	}

	log.Info("seed completed", logger.Int("tenants", res.Tenants), logger.Int("roles", res.Roles))
	return res, nil
}
