package router

import (
	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/opslinkcad/internal/domain/types"
	ctrl "github.com/dropDatabas3/opslinkcad/internal/http/controllers/custody"
	mw "github.com/dropDatabas3/opslinkcad/internal/http/middlewares"
)

func registerCustodyRoutes(r chi.Router, c *ctrl.Controller, requireAuth mw.Middleware) {
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)

		r.With(mw.RequirePerm(types.PermEvidenceWrite)).Post("/evidence/{id}/custody", c.Append)
		r.With(mw.RequirePerm(types.PermEvidenceRead)).Get("/evidence/{id}/custody", c.List)
		r.With(mw.RequirePerm(types.PermAuditRead)).Get("/audit/verify", c.VerifyAudit)
	})
}
