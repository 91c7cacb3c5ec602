package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmercier/aegis/internal/database"
	"github.com/jmercier/aegis/internal/models"
)

const registrationColumns = `id, email, first_name, last_name, company_name, request_reason,
	status, requested_at, processed_at, processed_by, admin_comment`

// RegistrationRepository is the pgx-backed registration request store.
type RegistrationRepository struct {
	pool *pgxpool.Pool
}

func NewRegistrationRepository(db *database.DB) *RegistrationRepository {
	return &RegistrationRepository{pool: db.Pool}
}

func scanRegistrationRow(scanner rowScanner) (*models.RegistrationRequest, error) {
	var req models.RegistrationRequest
	err := scanner.Scan(
		&req.ID, &req.Email, &req.FirstName, &req.LastName,
		&req.CompanyName, &req.RequestReason, &req.Status,
		&req.RequestedAt, &req.ProcessedAt, &req.ProcessedBy, &req.AdminComment,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &req, nil
}

func (r *RegistrationRepository) Create(ctx context.Context, req *models.RegistrationRequest) (*models.RegistrationRequest, error) {
	req.ID = uuid.New().String()
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO registration_requests (id, email, first_name, last_name, company_name,
			request_reason, status, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		req.ID, req.Email, req.FirstName, req.LastName, req.CompanyName,
		req.RequestReason, req.Status, req.RequestedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return req, nil
}

func (r *RegistrationRepository) GetByID(ctx context.Context, id string) (*models.RegistrationRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM registration_requests WHERE id = $1`, registrationColumns)
	return scanRegistrationRow(r.pool.QueryRow(ctx, query, id))
}

func (r *RegistrationRepository) List(ctx context.Context) ([]*models.RegistrationRequest, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM registration_requests ORDER BY requested_at DESC
	`, registrationColumns)
	return r.queryRequests(ctx, query)
}

func (r *RegistrationRepository) ListByStatus(ctx context.Context, status string) ([]*models.RegistrationRequest, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM registration_requests WHERE status = $1
		ORDER BY requested_at DESC
	`, registrationColumns)
	return r.queryRequests(ctx, query, status)
}

func (r *RegistrationRepository) queryRequests(ctx context.Context, query string, args ...interface{}) ([]*models.RegistrationRequest, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query registration requests: %w", err)
	}
	defer rows.Close()

	requests := make([]*models.RegistrationRequest, 0)
	for rows.Next() {
		req, err := scanRegistrationRow(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func (r *RegistrationRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM registration_requests WHERE email = $1 AND status = $2)
	`, email, models.RegistrationPending).Scan(&exists)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return exists, nil
}

func (r *RegistrationRepository) Update(ctx context.Context, req *models.RegistrationRequest) (*models.RegistrationRequest, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE registration_requests
		SET status = $1, processed_at = $2, processed_by = $3, admin_comment = $4
		WHERE id = $5
	`, req.Status, req.ProcessedAt, req.ProcessedBy, req.AdminComment, req.ID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return nil, models.ErrNotFound
	}
	return req, nil
}
