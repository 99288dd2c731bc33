// Package health contiene el controller de /health.
package health

import (
	"net/http"

	"github.com/dropDatabas3/opslinkcad/internal/http/helpers"
	svc "github.com/dropDatabas3/opslinkcad/internal/http/services/health"
)

// Controller handles GET /health.
type Controller struct {
	service svc.Service
}

// NewController creates the controller.
func NewController(s svc.Service) *Controller {
	return &Controller{service: s}
}

// Health responde 200 si la base está arriba y 503 si no; el body siempre
// trae el detalle por componente.
func (c *Controller) Health(w http.ResponseWriter, r *http.Request) {
	res := c.service.Check(r.Context())
	status := http.StatusOK
	if !res.OK {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Cache-Control", "no-store")
	helpers.WriteJSON(w, status, res)
}
