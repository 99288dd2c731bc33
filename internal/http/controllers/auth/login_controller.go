package auth

import (
	"net/http"
	"time"

	dto "github.com/dropDatabas3/opslinkcad/internal/http/dto/auth"
	"github.com/dropDatabas3/opslinkcad/internal/http/helpers"
	"github.com/dropDatabas3/opslinkcad/internal/http/middlewares"
	svc "github.com/dropDatabas3/opslinkcad/internal/http/services/auth"
	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
)

// LoginController handles POST /auth/login.
type LoginController struct {
	service svc.LoginService
	cookies CookieConfig
}

// NewLoginController creates the controller.
func NewLoginController(s svc.LoginService, cookies CookieConfig) *LoginController {
	return &LoginController{service: s, cookies: cookies}
}

func clientInfo(r *http.Request, deviceName string) dto.ClientInfo {
	return dto.ClientInfo{
		IP:         middlewares.ClientIP(r),
		UserAgent:  r.UserAgent(),
		DeviceName: deviceName,
	}
}

func (c *LoginController) Login(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("auth.login"))

	var req dto.LoginRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	res, err := c.service.LoginPassword(r.Context(), req, clientInfo(r, req.DeviceName))
	if err != nil {
		writeAuthError(w, r, err)
		return
	}

	// segundo factor pendiente: sin cookies
	if res.MFARequired {
		log.Debug("login pending mfa", logger.UserID(res.UserID))
		helpers.WriteJSON(w, http.StatusAccepted, dto.MFARequiredResponse{MFARequired: true, UserID: res.UserID})
		return
	}

	c.cookies.setSession(w, res.Tokens)
	helpers.WriteJSON(w, http.StatusOK, tokenResponse(res.Tokens, time.Now()))
}
