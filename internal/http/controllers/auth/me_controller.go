package auth

import (
	"net/http"

	dto "github.com/dropDatabas3/opslinkcad/internal/http/dto/auth"
	httperrors "github.com/dropDatabas3/opslinkcad/internal/http/errors"
	"github.com/dropDatabas3/opslinkcad/internal/http/helpers"
	"github.com/dropDatabas3/opslinkcad/internal/http/middlewares"
)

// MeController handles GET /auth/me. El principal ya viene resuelto por
// RequireAuth con el usuario cargado.
type MeController struct{}

func NewMeController() *MeController { return &MeController{} }

func (c *MeController) Me(w http.ResponseWriter, r *http.Request) {
	p := middlewares.GetPrincipal(r.Context())
	if p == nil {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.MeResponse{
		OK: true,
		User: dto.MeUser{
			ID:       p.UserID,
			Email:    p.Email,
			Username: p.Username,
			Role:     p.Role,
		},
	})
}
