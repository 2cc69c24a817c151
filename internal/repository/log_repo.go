package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LogRepository is the fulfillment audit trail: one row per workflow
// step, keyed by the external payment id so operators can reconstruct
// what happened to any given payment.
type LogRepository struct {
	pool *pgxpool.Pool
}

func NewLogRepository(pool *pgxpool.Pool) *LogRepository {
	return &LogRepository{pool: pool}
}

// LogAction appends an audit entry. Failures are the caller's to
// tolerate; the audit trail never blocks fulfillment.
func (r *LogRepository) LogAction(ctx context.Context, externalID, action, status, message string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO fulfillment_logs (id, external_id, action, status, message)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New().String(), externalID, action, status, message)
	if err != nil {
		return fmt.Errorf("insert fulfillment log: %w", err)
	}
	return nil
}

// GetByExternalID retrieves the audit trail for one payment.
func (r *LogRepository) GetByExternalID(ctx context.Context, externalID string, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, external_id, action, status, message, created_at
		FROM fulfillment_logs
		WHERE external_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, externalID, limit)
	if err != nil {
		return nil, fmt.Errorf("query fulfillment logs: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.ExternalID, &e.Action, &e.Status, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fulfillment log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type LogEntry struct {
	ID         string
	ExternalID string
	Action     string
	Status     string
	Message    string
	CreatedAt  time.Time
}
