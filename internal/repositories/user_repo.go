package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/jmercier/aegis/internal/database"
	"github.com/jmercier/aegis/internal/models"
)

const userColumns = `id, username, email, password_hash, first_name, last_name, enabled, locked,
	failed_login_attempts, lock_time, must_change_password, two_factor_enabled, two_factor_secret,
	password_history, password_changed_at, last_login_at, created_at, updated_at`

// UserRepository is the pgx-backed user store.
type UserRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db, pool: db.Pool}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var twoFactorSecret *string

	err := scanner.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.FirstName, &user.LastName, &user.Enabled, &user.Locked,
		&user.FailedLoginAttempts, &user.LockTime, &user.MustChangePassword,
		&user.TwoFactorEnabled, &twoFactorSecret,
		pq.Array(&user.PasswordHistory),
		&user.PasswordChangedAt, &user.LastLoginAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if twoFactorSecret != nil {
		user.TwoFactorSecret = *twoFactorSecret
	}

	return &user, nil
}

func (r *UserRepository) loadRoles(ctx context.Context, userID string) ([]*models.Role, error) {
	query := `
		SELECT r.id, r.name, r.description, r.permissions, r.active, r.created_at
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.name
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user roles: %w", err)
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

func (r *UserRepository) getBy(ctx context.Context, field, value string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s = $1`, userColumns, field)

	user, err := scanUserRow(r.pool.QueryRow(ctx, query, value))
	if err != nil {
		return nil, err
	}

	roles, err := r.loadRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Roles = roles

	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getBy(ctx, "username", username)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return exists, nil
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return exists, nil
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`, userColumns)

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	for _, user := range users {
		roles, err := r.loadRoles(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		user.Roles = roles
	}

	return users, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO users (id, username, email, password_hash, first_name, last_name,
				enabled, locked, failed_login_attempts, must_change_password,
				two_factor_enabled, password_history, password_changed_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`
		_, err := tx.Exec(ctx, query,
			user.ID, user.Username, user.Email, user.PasswordHash,
			user.FirstName, user.LastName, user.Enabled, user.Locked,
			user.FailedLoginAttempts, user.MustChangePassword,
			user.TwoFactorEnabled, pq.Array(user.PasswordHistory),
			user.PasswordChangedAt, user.CreatedAt, user.UpdatedAt,
		)
		if err != nil {
			return database.MapPostgresError(err)
		}

		return insertUserRoles(ctx, tx, user.ID, user.Roles)
	})
	if err != nil {
		return nil, err
	}

	return r.GetByID(ctx, user.ID)
}

func insertUserRoles(ctx context.Context, tx pgx.Tx, userID string, roles []*models.Role) error {
	for _, role := range roles {
		_, err := tx.Exec(ctx,
			`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, userID, role.ID)
		if err != nil {
			return database.MapPostgresError(err)
		}
	}
	return nil
}

func (r *UserRepository) Update(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		UPDATE users SET email = $1, first_name = $2, last_name = $3, updated_at = $4
		WHERE id = $5
	`

	result, err := r.pool.Exec(ctx, query,
		user.Email, user.FirstName, user.LastName, time.Now(), user.ID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return nil, models.ErrNotFound
	}

	return r.GetByID(ctx, user.ID)
}

// Delete removes the user with referential cleanup of sessions, refresh
// tokens, API keys and role links, all in one transaction.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM user_sessions WHERE user_id = $1`,
			`DELETE FROM refresh_tokens WHERE user_id = $1`,
			`DELETE FROM api_keys WHERE user_id = $1`,
			`DELETE FROM user_roles WHERE user_id = $1`,
		} {
			if _, err := tx.Exec(ctx, stmt, id); err != nil {
				return database.MapPostgresError(err)
			}
		}

		result, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return database.MapPostgresError(err)
		}
		if result.RowsAffected() == 0 {
			return models.ErrNotFound
		}
		return nil
	})
}

// RecordFailedAttempt increments the failure counter in a single statement so
// concurrent wrong-password attempts cannot undercount toward the lockout
// threshold.
func (r *UserRepository) RecordFailedAttempt(ctx context.Context, id string) (int, error) {
	var attempts int
	err := r.pool.QueryRow(ctx, `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1, updated_at = now()
		WHERE id = $1
		RETURNING failed_login_attempts
	`, id).Scan(&attempts)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return attempts, nil
}

func (r *UserRepository) Lock(ctx context.Context, id string, at time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET locked = true, lock_time = $1, updated_at = now() WHERE id = $2
	`, at, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *UserRepository) Unlock(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users
		SET locked = false, lock_time = NULL, failed_login_attempts = 0, updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *UserRepository) ResetFailedAttempts(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET failed_login_attempts = 0, updated_at = now() WHERE id = $1
	`, id)
	return database.MapPostgresError(err)
}

func (r *UserRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET enabled = $1, updated_at = now() WHERE id = $2
	`, enabled, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET last_login_at = $1, updated_at = now() WHERE id = $2
	`, at, id)
	return database.MapPostgresError(err)
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, history []string, changedAt time.Time, mustChange bool) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users
		SET password_hash = $1, password_history = $2, password_changed_at = $3,
			must_change_password = $4, failed_login_attempts = 0, updated_at = now()
		WHERE id = $5
	`, passwordHash, pq.Array(history), changedAt, mustChange, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *UserRepository) SetTwoFactorSecret(ctx context.Context, id, secret string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET two_factor_secret = $1, updated_at = now() WHERE id = $2
	`, secret, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *UserRepository) SetTwoFactorEnabled(ctx context.Context, id string, enabled bool, secret string) error {
	var secretVal *string
	if secret != "" {
		secretVal = &secret
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE users SET two_factor_enabled = $1, two_factor_secret = $2, updated_at = now() WHERE id = $3
	`, enabled, secretVal, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *UserRepository) ReplaceRoles(ctx context.Context, userID string, roleIDs []string) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
			return database.MapPostgresError(err)
		}
		for _, roleID := range roleIDs {
			_, err := tx.Exec(ctx,
				`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, userID, roleID)
			if err != nil {
				return database.MapPostgresError(err)
			}
		}
		return nil
	})
}
