package auth

import (
	"github.com/jmercier/aegis/internal/models"
)

// Authorize reports whether the user's resolved role set grants the required
// capability. Pure function: no transport, no storage.
func Authorize(user *models.User, requiredCapability string) bool {
	if user == nil {
		return false
	}
	for _, role := range user.Roles {
		if !role.Active {
			continue
		}
		if role.HasPermission(requiredCapability) {
			return true
		}
	}
	return false
}

// AuthorizeAny reports whether the user holds at least one of the capabilities.
func AuthorizeAny(user *models.User, capabilities ...string) bool {
	for _, c := range capabilities {
		if Authorize(user, c) {
			return true
		}
	}
	return false
}
