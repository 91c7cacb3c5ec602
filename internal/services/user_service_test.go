package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmercier/aegis/internal/config"
	"github.com/jmercier/aegis/internal/models"
)

type userFixture struct {
	svc      *UserService
	users    *mockUserRepo
	roles    *mockRoleRepo
	refresh  *mockRefreshTokenRepo
	sessions *mockSessionRepo
	audit    *mockAuditRepo
	admin    *models.User
	now      time.Time
}

func newUserFixture(t *testing.T) *userFixture {
	t.Helper()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	users := &mockUserRepo{}
	roles := &mockRoleRepo{
		GetByNameFunc: func(ctx context.Context, name string) (*models.Role, error) {
			return &models.Role{ID: "r-" + name, Name: name, Active: true}, nil
		},
	}
	refresh := &mockRefreshTokenRepo{}
	sessions := &mockSessionRepo{}
	auditRepo := &mockAuditRepo{}

	logger := testLogger()
	auditSvc := NewAuditService(auditRepo, logger)
	auditSvc.SetClock(fixedClock(now))

	passwordSvc := NewPasswordService(users, refresh, auditSvc, config.SecurityConfig{
		PasswordHistoryDepth: 5,
		PasswordMaxAgeDays:   90,
	}, logger)
	passwordSvc.SetClock(fixedClock(now))

	svc := NewUserService(users, roles, refresh, sessions, passwordSvc, auditSvc, logger)
	svc.SetClock(fixedClock(now))

	admin := &models.User{ID: "admin-1", Username: "root",
		Roles: []*models.Role{{Name: models.RoleAdmin, Active: true}}}

	return &userFixture{
		svc:      svc,
		users:    users,
		roles:    roles,
		refresh:  refresh,
		sessions: sessions,
		audit:    auditRepo,
		admin:    admin,
		now:      now,
	}
}

func TestCreateUser(t *testing.T) {
	f := newUserFixture(t)

	f.users.ExistsByUsernameFunc = func(ctx context.Context, username string) (bool, error) { return false, nil }
	f.users.ExistsByEmailFunc = func(ctx context.Context, email string) (bool, error) { return false, nil }

	var created *models.User
	f.users.CreateFunc = func(ctx context.Context, user *models.User) (*models.User, error) {
		user.ID = "user-new"
		created = user
		return user, nil
	}

	user, err := f.svc.Create(context.Background(), f.admin, CreateUserInput{
		Username:  "Bob",
		Email:     "Bob@Example.com",
		Password:  "Str0ng-Enough!",
		FirstName: "Bob",
		LastName:  "Builder",
		RoleNames: []string{models.RoleUser},
	}, "10.0.0.1", "agent")
	require.NoError(t, err)

	assert.Equal(t, "bob", user.Username)
	assert.Equal(t, "bob@example.com", user.Email)
	assert.True(t, created.Enabled)
	assert.NotEmpty(t, created.PasswordHash)
	assert.NotEqual(t, "Str0ng-Enough!", created.PasswordHash)
	assert.Contains(t, f.audit.actions(), models.ActionUserCreated)
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	f := newUserFixture(t)

	f.users.ExistsByUsernameFunc = func(ctx context.Context, username string) (bool, error) { return true, nil }

	_, err := f.svc.Create(context.Background(), f.admin, CreateUserInput{
		Username: "bob", Email: "bob@example.com", Password: "Str0ng-Enough!",
	}, "10.0.0.1", "agent")
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestCreateUserUnknownRole(t *testing.T) {
	f := newUserFixture(t)

	f.users.ExistsByUsernameFunc = func(ctx context.Context, username string) (bool, error) { return false, nil }
	f.users.ExistsByEmailFunc = func(ctx context.Context, email string) (bool, error) { return false, nil }
	f.roles.GetByNameFunc = func(ctx context.Context, name string) (*models.Role, error) {
		return nil, models.ErrNotFound
	}

	_, err := f.svc.Create(context.Background(), f.admin, CreateUserInput{
		Username: "bob", Email: "bob@example.com", Password: "Str0ng-Enough!",
		RoleNames: []string{"NOPE"},
	}, "10.0.0.1", "agent")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestDeleteUserCannotDeleteSelf(t *testing.T) {
	f := newUserFixture(t)

	err := f.svc.Delete(context.Background(), f.admin, f.admin.ID, "10.0.0.1", "agent")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestDeleteUser(t *testing.T) {
	f := newUserFixture(t)

	f.users.GetByIDFunc = func(ctx context.Context, id string) (*models.User, error) {
		return &models.User{ID: id, Username: "bob"}, nil
	}

	var deleted string
	f.users.DeleteFunc = func(ctx context.Context, id string) error {
		deleted = id
		return nil
	}

	err := f.svc.Delete(context.Background(), f.admin, "user-2", "10.0.0.1", "agent")
	require.NoError(t, err)
	assert.Equal(t, "user-2", deleted)
	assert.Contains(t, f.audit.actions(), models.ActionUserDeleted)
}

func TestUnlockUser(t *testing.T) {
	f := newUserFixture(t)

	lockTime := f.now.Add(-5 * time.Minute)
	f.users.GetByIDFunc = func(ctx context.Context, id string) (*models.User, error) {
		return &models.User{ID: id, Username: "bob", Locked: true, LockTime: &lockTime}, nil
	}

	var unlocked string
	f.users.UnlockFunc = func(ctx context.Context, id string) error {
		unlocked = id
		return nil
	}

	err := f.svc.Unlock(context.Background(), f.admin, "user-2", "10.0.0.1", "agent")
	require.NoError(t, err)
	assert.Equal(t, "user-2", unlocked)
	assert.Contains(t, f.audit.actions(), models.ActionUserUnlocked)
}

func TestUnlockUserNotLocked(t *testing.T) {
	f := newUserFixture(t)

	f.users.GetByIDFunc = func(ctx context.Context, id string) (*models.User, error) {
		return &models.User{ID: id, Username: "bob"}, nil
	}

	err := f.svc.Unlock(context.Background(), f.admin, "user-2", "10.0.0.1", "agent")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestDisableUserKillsAccess(t *testing.T) {
	f := newUserFixture(t)

	f.users.GetByIDFunc = func(ctx context.Context, id string) (*models.User, error) {
		return &models.User{ID: id, Username: "bob", Enabled: true}, nil
	}
	f.users.SetEnabledFunc = func(ctx context.Context, id string, enabled bool) error {
		assert.False(t, enabled)
		return nil
	}

	var revoked, deactivated bool
	f.refresh.RevokeAllForUserFunc = func(ctx context.Context, userID string, at time.Time) error {
		revoked = true
		return nil
	}
	f.sessions.DeactivateAllForUserFunc = func(ctx context.Context, userID string) (int64, error) {
		deactivated = true
		return 1, nil
	}

	err := f.svc.SetEnabled(context.Background(), f.admin, "user-2", false, "10.0.0.1", "agent")
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.True(t, deactivated)
	assert.Contains(t, f.audit.actions(), models.ActionUserDisabled)
}

func TestDisableOwnAccountRejected(t *testing.T) {
	f := newUserFixture(t)

	err := f.svc.SetEnabled(context.Background(), f.admin, f.admin.ID, false, "10.0.0.1", "agent")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestAssignRoles(t *testing.T) {
	f := newUserFixture(t)

	target := &models.User{ID: "user-2", Username: "bob"}
	f.users.GetByIDFunc = func(ctx context.Context, id string) (*models.User, error) {
		return target, nil
	}

	var replaced []string
	f.users.ReplaceRolesFunc = func(ctx context.Context, userID string, roleIDs []string) error {
		replaced = roleIDs
		return nil
	}

	_, err := f.svc.AssignRoles(context.Background(), f.admin, "user-2",
		[]string{models.RoleUser, models.RoleManager}, "10.0.0.1", "agent")
	require.NoError(t, err)
	assert.Equal(t, []string{"r-" + models.RoleUser, "r-" + models.RoleManager}, replaced)
	assert.Contains(t, f.audit.actions(), models.ActionRoleAssigned)
}
