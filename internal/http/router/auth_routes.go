package router

import (
	"github.com/go-chi/chi/v5"

	ctrl "github.com/dropDatabas3/opslinkcad/internal/http/controllers/auth"
	mw "github.com/dropDatabas3/opslinkcad/internal/http/middlewares"
)

// registerAuthRoutes registra /auth/*. Todas las respuestas son no-store.
func registerAuthRoutes(r chi.Router, c *ctrl.Controllers, requireAuth mw.Middleware) {
	r.Route("/auth", func(r chi.Router) {
		r.Use(mw.WithNoStore())

		// públicas
		r.Post("/register", c.Register.Register)
		r.Post("/login", c.Login.Login)
		r.Post("/mfa/verify", c.MFA.Verify)
		r.Post("/refresh", c.Refresh.Refresh)

		// autenticadas
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/logout", c.Logout.Logout)
			r.Get("/me", c.Me.Me)
			r.Post("/mfa/enroll", c.MFA.Enroll)
			r.Post("/mfa/enable", c.MFA.Enable)
		})
	})
}
