package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmercier/aegis/internal/models"
)

// RoleService manages roles and their permission sets.
type RoleService struct {
	roles  RoleRepository
	audit  *AuditService
	logger *slog.Logger
}

func NewRoleService(roles RoleRepository, audit *AuditService, logger *slog.Logger) *RoleService {
	return &RoleService{roles: roles, audit: audit, logger: logger}
}

func (s *RoleService) Get(ctx context.Context, id string) (*models.Role, error) {
	return s.roles.GetByID(ctx, id)
}

func (s *RoleService) List(ctx context.Context) ([]*models.Role, error) {
	return s.roles.List(ctx)
}

func (s *RoleService) Create(ctx context.Context, actor *models.User, role *models.Role, ipAddress, userAgent string) (*models.Role, error) {
	if role.Name == "" {
		return nil, fmt.Errorf("%w: role name is required", models.ErrBadRequest)
	}

	role.Active = true
	created, err := s.roles.Create(ctx, role)
	if err != nil {
		return nil, err
	}

	s.audit.LogSuccess(ctx, actor.Username, models.ActionRoleCreated,
		fmt.Sprintf("created role %s", created.Name), ipAddress, userAgent)
	return created, nil
}

func (s *RoleService) Update(ctx context.Context, actor *models.User, role *models.Role, ipAddress, userAgent string) (*models.Role, error) {
	existing, err := s.roles.GetByID(ctx, role.ID)
	if err != nil {
		return nil, err
	}

	// Built-in role names stay fixed; only their metadata moves.
	role.Name = existing.Name

	updated, err := s.roles.Update(ctx, role)
	if err != nil {
		return nil, err
	}

	s.audit.LogSuccess(ctx, actor.Username, models.ActionRoleUpdated,
		fmt.Sprintf("updated role %s", updated.Name), ipAddress, userAgent)
	return updated, nil
}

func (s *RoleService) Delete(ctx context.Context, actor *models.User, id, ipAddress, userAgent string) error {
	role, err := s.roles.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if role.Name == models.RoleAdmin {
		return fmt.Errorf("%w: the %s role cannot be deleted", models.ErrBadRequest, models.RoleAdmin)
	}

	if err := s.roles.Delete(ctx, id); err != nil {
		return err
	}

	s.audit.LogSuccess(ctx, actor.Username, models.ActionRoleDeleted,
		fmt.Sprintf("deleted role %s", role.Name), ipAddress, userAgent)
	return nil
}
