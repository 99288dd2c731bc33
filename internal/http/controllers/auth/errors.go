package auth

import (
	"errors"
	"net/http"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
	httperrors "github.com/dropDatabas3/opslinkcad/internal/http/errors"
	svc "github.com/dropDatabas3/opslinkcad/internal/http/services/auth"
	"github.com/dropDatabas3/opslinkcad/internal/security/fieldcipher"
)

var (
	errCommunityNotFound = httperrors.New(http.StatusBadRequest, "COMMUNITY_NOT_FOUND", "Community not found")
	errRoleNotFound      = httperrors.New(http.StatusBadRequest, "ROLE_NOT_FOUND", "Role not found")
	errMFANotConfigured  = httperrors.New(http.StatusBadRequest, "MFA_NOT_CONFIGURED", "MFA not configured")
	errMFAAlreadyEnabled = httperrors.New(http.StatusConflict, "MFA_ALREADY_ENABLED", "MFA already enabled")
	errInvalidCode       = httperrors.New(http.StatusUnauthorized, "INVALID_CODE", "Invalid code")
	errEmailTaken        = httperrors.New(http.StatusConflict, "EMAIL_TAKEN", "Email already registered")
)

// writeAuthError mapea errores del service a respuestas HTTP.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *httperrors.AppError
	switch {
	case errors.Is(err, svc.ErrMissingFields):
		appErr = httperrors.ErrValidation.WithDetail("missing required fields")
	case errors.Is(err, svc.ErrInvalidInput):
		appErr = httperrors.ErrValidation.WithDetail(err.Error())
	case errors.Is(err, svc.ErrWeakPassword):
		appErr = httperrors.ErrPasswordTooWeak
	case errors.Is(err, svc.ErrTenantNotFound):
		appErr = errCommunityNotFound
	case errors.Is(err, svc.ErrRoleNotFound):
		appErr = errRoleNotFound
	case errors.Is(err, svc.ErrEmailTaken):
		appErr = errEmailTaken
	case errors.Is(err, svc.ErrInvalidCredentials):
		appErr = httperrors.ErrInvalidCredentials
	case errors.Is(err, svc.ErrTooManyAttempts):
		appErr = httperrors.ErrTooManyAttempts
	case errors.Is(err, svc.ErrMFANotConfigured):
		appErr = errMFANotConfigured
	case errors.Is(err, svc.ErrMFAAlreadyEnabled):
		appErr = errMFAAlreadyEnabled
	case errors.Is(err, svc.ErrInvalidCode):
		appErr = errInvalidCode
	case errors.Is(err, svc.ErrUnauthorized):
		appErr = httperrors.ErrUnauthorized
	case errors.Is(err, repository.ErrUnavailable):
		appErr = httperrors.ErrStoreUnavailable.WithCause(err)
	case errors.Is(err, fieldcipher.ErrIntegrity):
		appErr = httperrors.ErrIntegrity.WithCause(err)
	default:
		appErr = httperrors.ErrInternalServerError.WithCause(err)
	}
	httperrors.WriteErrorCtx(r, w, appErr)
}
