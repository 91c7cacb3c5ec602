package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmercier/aegis/internal/database"
	"github.com/jmercier/aegis/internal/models"
)

const auditColumns = `id, username, action, details, ip_address, user_agent, success, error_message, timestamp`

// AuditLogRepository is the pgx-backed audit trail. Records are append-only;
// there is deliberately no update or delete here.
type AuditLogRepository struct {
	pool *pgxpool.Pool
}

func NewAuditLogRepository(db *database.DB) *AuditLogRepository {
	return &AuditLogRepository{pool: db.Pool}
}

func scanAuditRow(scanner rowScanner) (*models.AuditLog, error) {
	var entry models.AuditLog
	err := scanner.Scan(
		&entry.ID, &entry.Username, &entry.Action, &entry.Details,
		&entry.IPAddress, &entry.UserAgent, &entry.Success,
		&entry.ErrorMessage, &entry.Timestamp,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &entry, nil
}

func (r *AuditLogRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	entry.ID = uuid.New().String()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, username, action, details, ip_address, user_agent,
			success, error_message, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		entry.ID, entry.Username, entry.Action, entry.Details,
		entry.IPAddress, entry.UserAgent, entry.Success,
		entry.ErrorMessage, entry.Timestamp,
	)
	return database.MapPostgresError(err)
}

func auditFilterClause(filter models.AuditFilter) (string, []interface{}) {
	conditions := make([]string, 0, 5)
	args := make([]interface{}, 0, 5)

	add := func(cond string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.Username != "" {
		add("username = $%d", filter.Username)
	}
	if filter.Action != "" {
		add("action = $%d", filter.Action)
	}
	if filter.Success != nil {
		add("success = $%d", *filter.Success)
	}
	if filter.From != nil {
		add("timestamp >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("timestamp <= $%d", *filter.To)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func (r *AuditLogRepository) List(ctx context.Context, filter models.AuditFilter, limit, offset int) ([]*models.AuditLog, error) {
	where, args := auditFilterClause(filter)
	query := fmt.Sprintf(`SELECT %s FROM audit_logs%s ORDER BY timestamp DESC LIMIT $%d OFFSET $%d`,
		auditColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.AuditLog, 0)
	for rows.Next() {
		entry, err := scanAuditRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *AuditLogRepository) Count(ctx context.Context, filter models.AuditFilter) (int64, error) {
	where, args := auditFilterClause(filter)

	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

func (r *AuditLogRepository) RecentByUsername(ctx context.Context, username string, limit int) ([]*models.AuditLog, error) {
	return r.List(ctx, models.AuditFilter{Username: username}, limit, 0)
}
