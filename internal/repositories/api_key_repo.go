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

const apiKeyColumns = `id, user_id, name, description, key_hash, key_prefix, created_at, expires_at, last_used_at, active`

// APIKeyRepository is the pgx-backed API key store. Only hashes are
// persisted; plaintext keys never reach this layer.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

func NewAPIKeyRepository(db *database.DB) *APIKeyRepository {
	return &APIKeyRepository{pool: db.Pool}
}

func scanAPIKeyRow(scanner rowScanner) (*models.APIKey, error) {
	var k models.APIKey
	err := scanner.Scan(
		&k.ID, &k.UserID, &k.Name, &k.Description, &k.KeyHash, &k.KeyPrefix,
		&k.CreatedAt, &k.ExpiresAt, &k.LastUsedAt, &k.Active,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &k, nil
}

func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	key.ID = uuid.New().String()
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO api_keys (id, user_id, name, description, key_hash, key_prefix,
			created_at, expires_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		key.ID, key.UserID, key.Name, key.Description, key.KeyHash, key.KeyPrefix,
		key.CreatedAt, key.ExpiresAt, key.Active,
	)
	return database.MapPostgresError(err)
}

func (r *APIKeyRepository) GetByID(ctx context.Context, id string) (*models.APIKey, error) {
	query := fmt.Sprintf(`SELECT %s FROM api_keys WHERE id = $1`, apiKeyColumns)
	return scanAPIKeyRow(r.pool.QueryRow(ctx, query, id))
}

func (r *APIKeyRepository) GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	query := fmt.Sprintf(`SELECT %s FROM api_keys WHERE key_hash = $1`, apiKeyColumns)
	return scanAPIKeyRow(r.pool.QueryRow(ctx, query, keyHash))
}

func (r *APIKeyRepository) ListByUser(ctx context.Context, userID string) ([]*models.APIKey, error) {
	query := fmt.Sprintf(`SELECT %s FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`, apiKeyColumns)

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query api keys: %w", err)
	}
	defer rows.Close()

	keys := make([]*models.APIKey, 0)
	for rows.Next() {
		key, err := scanAPIKeyRow(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, at, id)
	return database.MapPostgresError(err)
}

func (r *APIKeyRepository) Deactivate(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `UPDATE api_keys SET active = false WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *APIKeyRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE api_keys SET active = false
		WHERE active = true AND expires_at IS NOT NULL AND expires_at < $1
	`, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
