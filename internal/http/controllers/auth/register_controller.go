package auth

import (
	"net/http"

	dto "github.com/dropDatabas3/opslinkcad/internal/http/dto/auth"
	"github.com/dropDatabas3/opslinkcad/internal/http/helpers"
	svc "github.com/dropDatabas3/opslinkcad/internal/http/services/auth"
)

// RegisterController handles POST /auth/register.
type RegisterController struct {
	service svc.RegisterService
}

// NewRegisterController creates the controller.
func NewRegisterController(s svc.RegisterService) *RegisterController {
	return &RegisterController{service: s}
}

func (c *RegisterController) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	res, err := c.service.Register(r.Context(), req)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, res)
}
