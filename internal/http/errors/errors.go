package errors

import (
	"encoding/json"
	"net/http"

	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// WriteError escribe {code, message, detail?}. La causa interna nunca sale.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
	})
}

// WriteErrorCtx es WriteError más un log server-side de la causa en 5xx.
func WriteErrorCtx(r *http.Request, w http.ResponseWriter, err error) {
	appErr := FromError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logger.From(r.Context()).Error("request failed",
			logger.String("code", appErr.Code),
			logger.Err(appErr.Err),
		)
	}
	WriteError(w, appErr)
}
