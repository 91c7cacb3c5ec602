package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmercier/aegis/internal/models"
	"github.com/jmercier/aegis/pkg/auth"
)

// CreateUserInput is the admin-facing payload for provisioning an account.
type CreateUserInput struct {
	Username           string
	Email              string
	Password           string
	FirstName          string
	LastName           string
	RoleNames          []string
	MustChangePassword bool
}

// UpdateUserInput carries the mutable profile fields.
type UpdateUserInput struct {
	Email     string
	FirstName string
	LastName  string
}

// UserService is the administrative account management surface.
type UserService struct {
	users         UserRepository
	roles         RoleRepository
	refreshTokens RefreshTokenRepository
	sessions      SessionRepository
	passwords     *PasswordService
	audit         *AuditService
	logger        *slog.Logger
	clock         Clock
}

func NewUserService(
	users UserRepository,
	roles RoleRepository,
	refreshTokens RefreshTokenRepository,
	sessions SessionRepository,
	passwords *PasswordService,
	audit *AuditService,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:         users,
		roles:         roles,
		refreshTokens: refreshTokens,
		sessions:      sessions,
		passwords:     passwords,
		audit:         audit,
		logger:        logger,
		clock:         time.Now,
	}
}

func (s *UserService) SetClock(clock Clock) {
	s.clock = clock
}

func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.users.GetByUsername(ctx, username)
}

func (s *UserService) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.users.List(ctx, limit, offset)
}

func (s *UserService) Create(ctx context.Context, actor *models.User, input CreateUserInput, ipAddress, userAgent string) (*models.User, error) {
	username := strings.TrimSpace(strings.ToLower(input.Username))
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if username == "" || email == "" {
		return nil, fmt.Errorf("%w: username and email are required", models.ErrBadRequest)
	}

	if taken, err := s.users.ExistsByUsername(ctx, username); err != nil {
		return nil, err
	} else if taken {
		return nil, fmt.Errorf("%w: username already in use", models.ErrConflict)
	}
	if taken, err := s.users.ExistsByEmail(ctx, email); err != nil {
		return nil, err
	} else if taken {
		return nil, fmt.Errorf("%w: email already in use", models.ErrConflict)
	}

	if err := auth.ValidatePassword(input.Password); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	roles, err := s.resolveRoles(ctx, input.RoleNames)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	user := &models.User{
		Username:           username,
		Email:              email,
		PasswordHash:       hash,
		FirstName:          input.FirstName,
		LastName:           input.LastName,
		Enabled:            true,
		MustChangePassword: input.MustChangePassword,
		PasswordChangedAt:  &now,
		Roles:              roles,
	}

	created, err := s.users.Create(ctx, user)
	if err != nil {
		return nil, err
	}

	s.audit.LogSuccess(ctx, actor.Username, models.ActionUserCreated,
		fmt.Sprintf("created user %s", created.Username), ipAddress, userAgent)
	return created, nil
}

func (s *UserService) Update(ctx context.Context, actor *models.User, id string, input UpdateUserInput, ipAddress, userAgent string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Email != "" {
		email := strings.TrimSpace(strings.ToLower(input.Email))
		if email != user.Email {
			if taken, err := s.users.ExistsByEmail(ctx, email); err != nil {
				return nil, err
			} else if taken {
				return nil, fmt.Errorf("%w: email already in use", models.ErrConflict)
			}
			user.Email = email
		}
	}
	if input.FirstName != "" {
		user.FirstName = input.FirstName
	}
	if input.LastName != "" {
		user.LastName = input.LastName
	}

	updated, err := s.users.Update(ctx, user)
	if err != nil {
		return nil, err
	}

	s.audit.LogSuccess(ctx, actor.Username, models.ActionUserUpdated,
		fmt.Sprintf("updated user %s", user.Username), ipAddress, userAgent)
	return updated, nil
}

// Delete removes the account and everything hanging off it. Admins cannot
// delete themselves.
func (s *UserService) Delete(ctx context.Context, actor *models.User, id, ipAddress, userAgent string) error {
	if actor.ID == id {
		return fmt.Errorf("%w: cannot delete own account", models.ErrBadRequest)
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}

	s.audit.LogSuccess(ctx, actor.Username, models.ActionUserDeleted,
		fmt.Sprintf("deleted user %s", user.Username), ipAddress, userAgent)
	return nil
}

// Unlock clears a lockout immediately, regardless of the auto-unlock window.
func (s *UserService) Unlock(ctx context.Context, actor *models.User, id, ipAddress, userAgent string) error {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !user.Locked {
		return fmt.Errorf("%w: account is not locked", models.ErrBadRequest)
	}

	if err := s.users.Unlock(ctx, id); err != nil {
		return err
	}

	s.audit.LogSuccess(ctx, actor.Username, models.ActionUserUnlocked,
		fmt.Sprintf("unlocked user %s", user.Username), ipAddress, userAgent)
	return nil
}

// SetEnabled enables or disables the account. Disabling also kills live
// sessions and refresh tokens so access ends now, not at token expiry.
func (s *UserService) SetEnabled(ctx context.Context, actor *models.User, id string, enabled bool, ipAddress, userAgent string) error {
	if actor.ID == id && !enabled {
		return fmt.Errorf("%w: cannot disable own account", models.ErrBadRequest)
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.users.SetEnabled(ctx, id, enabled); err != nil {
		return err
	}

	action := models.ActionUserEnabled
	if !enabled {
		action = models.ActionUserDisabled

		if err := s.refreshTokens.RevokeAllForUser(ctx, id, s.clock()); err != nil {
			s.logger.ErrorContext(ctx, "failed to revoke refresh tokens for disabled user",
				"user_id", id, "error", err)
		}
		if _, err := s.sessions.DeactivateAllForUser(ctx, id); err != nil {
			s.logger.ErrorContext(ctx, "failed to deactivate sessions for disabled user",
				"user_id", id, "error", err)
		}
	}

	s.audit.LogSuccess(ctx, actor.Username, action,
		fmt.Sprintf("user %s", user.Username), ipAddress, userAgent)
	return nil
}

// ResetPassword sets a new password on behalf of an admin; the user must
// rotate it at next login.
func (s *UserService) ResetPassword(ctx context.Context, actor *models.User, id, newPassword, ipAddress, userAgent string) error {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.passwords.Reset(ctx, id, newPassword); err != nil {
		return err
	}

	s.audit.LogSuccess(ctx, actor.Username, models.ActionPasswordReset,
		fmt.Sprintf("reset password for %s", user.Username), ipAddress, userAgent)
	return nil
}

// AssignRoles replaces the user's role set with the named roles.
func (s *UserService) AssignRoles(ctx context.Context, actor *models.User, id string, roleNames []string, ipAddress, userAgent string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	roles, err := s.resolveRoles(ctx, roleNames)
	if err != nil {
		return nil, err
	}

	roleIDs := make([]string, 0, len(roles))
	for _, role := range roles {
		roleIDs = append(roleIDs, role.ID)
	}

	if err := s.users.ReplaceRoles(ctx, user.ID, roleIDs); err != nil {
		return nil, err
	}

	s.audit.LogSuccess(ctx, actor.Username, models.ActionRoleAssigned,
		fmt.Sprintf("roles %s assigned to %s", strings.Join(roleNames, ","), user.Username),
		ipAddress, userAgent)

	return s.users.GetByID(ctx, user.ID)
}

func (s *UserService) resolveRoles(ctx context.Context, names []string) ([]*models.Role, error) {
	roles := make([]*models.Role, 0, len(names))
	for _, name := range names {
		role, err := s.roles.GetByName(ctx, name)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown role %q", models.ErrBadRequest, name)
			}
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}
