// Package community contiene el controller del directorio de comunidades.
package community

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
	httperrors "github.com/dropDatabas3/opslinkcad/internal/http/errors"
	"github.com/dropDatabas3/opslinkcad/internal/http/helpers"
	"github.com/dropDatabas3/opslinkcad/internal/http/middlewares"
	svc "github.com/dropDatabas3/opslinkcad/internal/http/services/community"
)

// Controller handles /communities.
type Controller struct {
	service svc.Service
}

// NewController creates the controller.
func NewController(s svc.Service) *Controller {
	return &Controller{service: s}
}

// List handles GET /communities
func (c *Controller) List(w http.ResponseWriter, r *http.Request) {
	res, err := c.service.List(r.Context(), middlewares.GetPrincipal(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}

// Get handles GET /communities/{id}
func (c *Controller) Get(w http.ResponseWriter, r *http.Request) {
	res, err := c.service.Get(r.Context(), middlewares.GetPrincipal(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *httperrors.AppError
	switch {
	case errors.Is(err, svc.ErrUnauthorized):
		appErr = httperrors.ErrUnauthorized
	case errors.Is(err, svc.ErrNotFound):
		appErr = httperrors.ErrNotFound.WithDetail("community not found")
	case errors.Is(err, repository.ErrUnavailable):
		appErr = httperrors.ErrStoreUnavailable.WithCause(err)
	default:
		appErr = httperrors.ErrInternalServerError.WithCause(err)
	}
	httperrors.WriteErrorCtx(r, w, appErr)
}
