package auth

import (
	"net/http"

	dto "github.com/dropDatabas3/opslinkcad/internal/http/dto/auth"
	httperrors "github.com/dropDatabas3/opslinkcad/internal/http/errors"
	"github.com/dropDatabas3/opslinkcad/internal/http/helpers"
	"github.com/dropDatabas3/opslinkcad/internal/http/middlewares"
	svc "github.com/dropDatabas3/opslinkcad/internal/http/services/auth"
)

// LogoutController handles POST /auth/logout.
type LogoutController struct {
	service svc.LogoutService
	cookies CookieConfig
}

// NewLogoutController creates the controller.
func NewLogoutController(s svc.LogoutService, cookies CookieConfig) *LogoutController {
	return &LogoutController{service: s, cookies: cookies}
}

func (c *LogoutController) Logout(w http.ResponseWriter, r *http.Request) {
	p := middlewares.GetPrincipal(r.Context())
	if p == nil {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}
	if err := c.service.Logout(r.Context(), p, c.cookies.refreshID(r)); err != nil {
		writeAuthError(w, r, err)
		return
	}
	c.cookies.clear(w)
	helpers.WriteJSON(w, http.StatusOK, dto.OKResponse{OK: true})
}
