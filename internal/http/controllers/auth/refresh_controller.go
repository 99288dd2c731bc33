package auth

import (
	"errors"
	"net/http"
	"time"

	dto "github.com/dropDatabas3/opslinkcad/internal/http/dto/auth"
	"github.com/dropDatabas3/opslinkcad/internal/http/helpers"
	svc "github.com/dropDatabas3/opslinkcad/internal/http/services/auth"
)

// RefreshController handles POST /auth/refresh.
type RefreshController struct {
	service svc.RefreshService
	cookies CookieConfig
}

// NewRefreshController creates the controller.
func NewRefreshController(s svc.RefreshService, cookies CookieConfig) *RefreshController {
	return &RefreshController{service: s, cookies: cookies}
}

// Refresh requiere el refresh JWT en el body; si además llega la cookie de
// refresh, su id tiene que coincidir con el del token.
func (c *RefreshController) Refresh(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	tokens, err := c.service.Refresh(r.Context(), req.RefreshToken, c.cookies.refreshID(r), clientInfo(r, req.DeviceName))
	if err != nil {
		if errors.Is(err, svc.ErrUnauthorized) {
			c.cookies.clear(w)
		}
		writeAuthError(w, r, err)
		return
	}
	c.cookies.setSession(w, tokens)
	helpers.WriteJSON(w, http.StatusOK, tokenResponse(tokens, time.Now()))
}
