package handlers

import (
	"errors"
	"net/http"

	"github.com/jmercier/aegis/internal/models"
	pkgauth "github.com/jmercier/aegis/pkg/auth"
	pkghttp "github.com/jmercier/aegis/pkg/http"
)

// WriteServiceError maps domain errors onto HTTP status codes. Anything
// unrecognized becomes a 500 with no internals leaked.
func WriteServiceError(w http.ResponseWriter, err error) {
	var policyErr *pkgauth.PasswordPolicyError
	if errors.As(err, &policyErr) {
		pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "password_policy_violation",
			"Password does not meet the policy", policyErr.Violations)
		return
	}

	switch {
	case errors.Is(err, models.ErrAccountLocked):
		pkghttp.WriteLocked(w, "Account is locked")
	case errors.Is(err, models.ErrAccountDisabled):
		pkghttp.WriteForbidden(w, "Account is disabled")
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteUnauthorized(w, err.Error())
	case errors.Is(err, models.ErrInvalidTOTPCode):
		pkghttp.WriteUnauthorized(w, "Invalid verification code")
	case errors.Is(err, models.ErrTokenRevoked):
		pkghttp.WriteUnauthorized(w, "Token has been revoked")
	case errors.Is(err, models.ErrTokenInvalid):
		pkghttp.WriteUnauthorized(w, "Invalid or expired token")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Unauthorized")
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "Forbidden")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Resource not found")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, err.Error())
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, err.Error())
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
