package auth

import (
	"net/http"
	"time"

	dto "github.com/dropDatabas3/opslinkcad/internal/http/dto/auth"
	httperrors "github.com/dropDatabas3/opslinkcad/internal/http/errors"
	"github.com/dropDatabas3/opslinkcad/internal/http/helpers"
	"github.com/dropDatabas3/opslinkcad/internal/http/middlewares"
	svc "github.com/dropDatabas3/opslinkcad/internal/http/services/auth"
)

// MFAController handles /auth/mfa/*.
type MFAController struct {
	service svc.MFAService
	cookies CookieConfig
}

// NewMFAController creates the controller.
func NewMFAController(s svc.MFAService, cookies CookieConfig) *MFAController {
	return &MFAController{service: s, cookies: cookies}
}

// Verify handles POST /auth/mfa/verify (segundo paso del login, sin auth).
func (c *MFAController) Verify(w http.ResponseWriter, r *http.Request) {
	var req dto.MFAVerifyRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	tokens, err := c.service.Verify(r.Context(), req, clientInfo(r, req.DeviceName))
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	c.cookies.setSession(w, tokens)
	helpers.WriteJSON(w, http.StatusOK, tokenResponse(tokens, time.Now()))
}

// Enroll handles POST /auth/mfa/enroll
// Requires: authenticated user
func (c *MFAController) Enroll(w http.ResponseWriter, r *http.Request) {
	p := middlewares.GetPrincipal(r.Context())
	if p == nil {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}
	res, err := c.service.Enroll(r.Context(), p)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}

// Enable handles POST /auth/mfa/enable
// Requires: authenticated user
func (c *MFAController) Enable(w http.ResponseWriter, r *http.Request) {
	p := middlewares.GetPrincipal(r.Context())
	if p == nil {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}
	var req dto.MFAEnableRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if err := c.service.Enable(r.Context(), p, req.Code); err != nil {
		writeAuthError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.OKResponse{OK: true})
}
