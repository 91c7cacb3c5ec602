package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/jmercier/aegis/internal/database"
	"github.com/jmercier/aegis/internal/models"
)

const roleColumns = `id, name, description, permissions, active, created_at`

// RoleRepository is the pgx-backed role store.
type RoleRepository struct {
	pool *pgxpool.Pool
}

func NewRoleRepository(db *database.DB) *RoleRepository {
	return &RoleRepository{pool: db.Pool}
}

func scanRoleRow(scanner rowScanner) (*models.Role, error) {
	var role models.Role
	err := scanner.Scan(
		&role.ID, &role.Name, &role.Description,
		pq.Array(&role.Permissions), &role.Active, &role.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &role, nil
}

func (r *RoleRepository) GetByID(ctx context.Context, id string) (*models.Role, error) {
	query := fmt.Sprintf(`SELECT %s FROM roles WHERE id = $1`, roleColumns)
	return scanRoleRow(r.pool.QueryRow(ctx, query, id))
}

func (r *RoleRepository) GetByName(ctx context.Context, name string) (*models.Role, error) {
	query := fmt.Sprintf(`SELECT %s FROM roles WHERE name = $1`, roleColumns)
	return scanRoleRow(r.pool.QueryRow(ctx, query, name))
}

func (r *RoleRepository) List(ctx context.Context) ([]*models.Role, error) {
	query := fmt.Sprintf(`SELECT %s FROM roles ORDER BY name`, roleColumns)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	roles := make([]*models.Role, 0)
	for rows.Next() {
		role, err := scanRoleRow(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *RoleRepository) Create(ctx context.Context, role *models.Role) (*models.Role, error) {
	role.ID = uuid.New().String()
	if role.CreatedAt.IsZero() {
		role.CreatedAt = time.Now()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO roles (id, name, description, permissions, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, role.ID, role.Name, role.Description, pq.Array(role.Permissions), role.Active, role.CreatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return role, nil
}

func (r *RoleRepository) Update(ctx context.Context, role *models.Role) (*models.Role, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE roles SET description = $1, permissions = $2, active = $3 WHERE id = $4
	`, role.Description, pq.Array(role.Permissions), role.Active, role.ID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return nil, models.ErrNotFound
	}

	return r.GetByID(ctx, role.ID)
}

func (r *RoleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
