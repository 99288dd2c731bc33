package router

import (
	"github.com/go-chi/chi/v5"

	ctrl "github.com/dropDatabas3/opslinkcad/internal/http/controllers/community"
	mw "github.com/dropDatabas3/opslinkcad/internal/http/middlewares"
)

func registerCommunityRoutes(r chi.Router, c *ctrl.Controller, requireAuth mw.Middleware) {
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)

		r.Get("/communities", c.List)
		r.Get("/communities/{id}", c.Get)
	})
}
