package auth

import (
	"context"

	"github.com/dropDatabas3/opslinkcad/internal/audit"
	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
)

func logAuditFailure(ctx context.Context, e audit.Entry, err error) {
	logger.From(ctx).Error("audit append failed",
		logger.Layer("service"),
		logger.Component("auth.audit"),
		logger.TenantID(e.TenantID),
		logger.String("action", e.Action),
		logger.String("entity", e.Entity),
		logger.Err(err),
	)
}
