package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/quiet-harbor/guardrail/internal/models"
)

type sqliteDeliveryRepo struct {
	db *sql.DB
}

func (r *sqliteDeliveryRepo) Create(ctx context.Context, attempt *models.DeliveryAttempt) error {
	query := `
		INSERT INTO delivery_attempts (id, alert_id, channel, succeeded, reason, attempted_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		attempt.ID, attempt.AlertID, attempt.Channel,
		boolToInt(attempt.Succeeded), nullString(attempt.Reason), attempt.AttemptedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery attempt: %w", err)
	}
	return nil
}

func (r *sqliteDeliveryRepo) ListByAlert(ctx context.Context, alertID string) ([]*models.DeliveryAttempt, error) {
	query := `
		SELECT id, alert_id, channel, succeeded, reason, attempted_at
		FROM delivery_attempts WHERE alert_id = ? ORDER BY attempted_at
	`
	rows, err := r.db.QueryContext(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("query delivery attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*models.DeliveryAttempt
	for rows.Next() {
		attempt := &models.DeliveryAttempt{}
		var succeeded int
		var reason sql.NullString
		err := rows.Scan(&attempt.ID, &attempt.AlertID, &attempt.Channel,
			&succeeded, &reason, &attempt.AttemptedAt)
		if err != nil {
			return nil, fmt.Errorf("scan delivery attempt: %w", err)
		}
		attempt.Succeeded = succeeded != 0
		attempt.Reason = reason.String
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

func (r *sqliteDeliveryRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM delivery_attempts WHERE attempted_at < ?", before)
	if err != nil {
		return 0, fmt.Errorf("delete delivery attempts: %w", err)
	}
	return result.RowsAffected()
}
