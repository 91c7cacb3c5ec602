package repositories

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmercier/aegis/internal/database"
	"github.com/jmercier/aegis/internal/models"
)

const sessionColumns = `id, user_id, session_token, ip_address, user_agent, login_time, last_activity, expires_at, active`

// SessionRepository is the pgx-backed session store.
type SessionRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db, pool: db.Pool}
}

func scanSessionRow(scanner rowScanner) (*models.Session, error) {
	var s models.Session
	err := scanner.Scan(
		&s.ID, &s.UserID, &s.SessionToken, &s.IPAddress, &s.UserAgent,
		&s.LoginTime, &s.LastActivity, &s.ExpiresAt, &s.Active,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}

func sessionLockKey(userID string) int64 {
	h := fnv.New64a()
	h.Write([]byte("sessions:" + userID))
	return int64(h.Sum64())
}

// CreateWithCap inserts the session and, inside the same transaction,
// deactivates the user's oldest active sessions so no more than maxActive
// remain. A per-user advisory lock serializes concurrent logins, which is
// what keeps the cap exact rather than approximate.
func (r *SessionRepository) CreateWithCap(ctx context.Context, session *models.Session, maxActive int) error {
	session.ID = uuid.New().String()

	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, sessionLockKey(session.UserID)); err != nil {
			return database.MapPostgresError(err)
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO user_sessions (id, user_id, session_token, ip_address, user_agent,
				login_time, last_activity, expires_at, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			session.ID, session.UserID, session.SessionToken, session.IPAddress,
			session.UserAgent, session.LoginTime, session.LastActivity,
			session.ExpiresAt, session.Active,
		)
		if err != nil {
			return database.MapPostgresError(err)
		}

		// Evict earliest logins first, session id as tiebreak.
		_, err = tx.Exec(ctx, `
			UPDATE user_sessions SET active = false
			WHERE id IN (
				SELECT id FROM user_sessions
				WHERE user_id = $1 AND active = true
				ORDER BY login_time DESC, id DESC
				OFFSET $2
			)
		`, session.UserID, maxActive)
		return database.MapPostgresError(err)
	})
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM user_sessions WHERE id = $1`, sessionColumns)
	return scanSessionRow(r.pool.QueryRow(ctx, query, id))
}

func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM user_sessions WHERE session_token = $1`, sessionColumns)
	return scanSessionRow(r.pool.QueryRow(ctx, query, token))
}

func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM user_sessions
		WHERE user_id = $1 AND active = true
		ORDER BY login_time DESC
	`, sessionColumns)

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		session, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (r *SessionRepository) CountActiveByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM user_sessions WHERE user_id = $1 AND active = true
	`, userID).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

func (r *SessionRepository) Touch(ctx context.Context, token string, at time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE user_sessions SET last_activity = $1 WHERE session_token = $2 AND active = true
	`, at, token)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *SessionRepository) Deactivate(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE user_sessions SET active = false WHERE id = $1
	`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *SessionRepository) DeactivateAllForUser(ctx context.Context, userID string) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE user_sessions SET active = false WHERE user_id = $1 AND active = true
	`, userID)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

func (r *SessionRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE user_sessions SET active = false WHERE active = true AND expires_at < $1
	`, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
