package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jmercier/aegis/internal/models"
)

func TestAuthorize(t *testing.T) {
	user := &models.User{
		Username: "jdoe",
		Roles: []*models.Role{
			{Name: models.RoleUser, Active: true, Permissions: []string{"READ_PROFILE"}},
			{Name: models.RoleManager, Active: true, Permissions: []string{"READ_USERS", "UPDATE_USERS"}},
		},
	}

	assert.True(t, Authorize(user, "READ_PROFILE"))
	assert.True(t, Authorize(user, "READ_USERS"))
	assert.False(t, Authorize(user, "DELETE_USERS"))
	assert.False(t, Authorize(nil, "READ_PROFILE"))
}

func TestAuthorize_InactiveRoleIgnored(t *testing.T) {
	user := &models.User{
		Username: "jdoe",
		Roles: []*models.Role{
			{Name: models.RoleSecurity, Active: false, Permissions: []string{"READ_AUDIT"}},
		},
	}

	assert.False(t, Authorize(user, "READ_AUDIT"))
}

func TestAuthorizeAny(t *testing.T) {
	user := &models.User{
		Roles: []*models.Role{
			{Name: models.RoleUser, Active: true, Permissions: []string{"READ_PROFILE"}},
		},
	}

	assert.True(t, AuthorizeAny(user, "DELETE_USERS", "READ_PROFILE"))
	assert.False(t, AuthorizeAny(user, "DELETE_USERS", "READ_AUDIT"))
	assert.False(t, AuthorizeAny(user))
}
