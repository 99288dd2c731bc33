// Package custody contiene los controllers de cadena de custodia y auditoría.
package custody

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/opslinkcad/internal/audit"
	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
	dto "github.com/dropDatabas3/opslinkcad/internal/http/dto/custody"
	httperrors "github.com/dropDatabas3/opslinkcad/internal/http/errors"
	"github.com/dropDatabas3/opslinkcad/internal/http/helpers"
	"github.com/dropDatabas3/opslinkcad/internal/http/middlewares"
	svc "github.com/dropDatabas3/opslinkcad/internal/http/services/custody"
)

// Controller handles /evidence/{id}/custody and /audit/verify.
type Controller struct {
	service svc.Service
}

// NewController creates the controller.
func NewController(s svc.Service) *Controller {
	return &Controller{service: s}
}

// Append handles POST /evidence/{id}/custody
// Requires: evidence:write
func (c *Controller) Append(w http.ResponseWriter, r *http.Request) {
	var req dto.AppendRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	res, err := c.service.Append(r.Context(), middlewares.GetPrincipal(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, res)
}

// List handles GET /evidence/{id}/custody
// Requires: evidence:read
func (c *Controller) List(w http.ResponseWriter, r *http.Request) {
	res, err := c.service.List(r.Context(), middlewares.GetPrincipal(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}

// VerifyAudit handles GET /audit/verify
// Requires: audit:read
func (c *Controller) VerifyAudit(w http.ResponseWriter, r *http.Request) {
	res, err := c.service.VerifyAudit(r.Context(), middlewares.GetPrincipal(r.Context()))
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
	case errors.Is(err, svc.ErrInvalidEvidenceID):
		appErr = httperrors.ErrValidation.WithDetail("invalid evidence id")
	case errors.Is(err, svc.ErrMissingAction), errors.Is(err, audit.ErrInvalidEntry):
		appErr = httperrors.ErrValidation.WithDetail("action is required")
	case errors.Is(err, audit.ErrContention):
		appErr = httperrors.ErrConflict.WithCause(err)
	case errors.Is(err, repository.ErrUnavailable):
		appErr = httperrors.ErrStoreUnavailable.WithCause(err)
	default:
		appErr = httperrors.ErrInternalServerError.WithCause(err)
	}
	httperrors.WriteErrorCtx(r, w, appErr)
}
