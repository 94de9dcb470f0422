package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/quiet-harbor/guardrail/internal/models"
)

type sqliteEventRepo struct {
	db *sql.DB
}

func (r *sqliteEventRepo) Create(ctx context.Context, event *models.AlertEvent) error {
	query := `
		INSERT INTO alert_events (id, alert_id, action, from_status, to_status, actor, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.AlertID, event.Action,
		nullString(string(event.FromStatus)), nullString(string(event.ToStatus)),
		event.Actor, nullString(event.Note), event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert event: %w", err)
	}
	return nil
}

func (r *sqliteEventRepo) ListByAlert(ctx context.Context, alertID string) ([]*models.AlertEvent, error) {
	query := `
		SELECT id, alert_id, action, from_status, to_status, actor, note, created_at
		FROM alert_events WHERE alert_id = ? ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("query alert events: %w", err)
	}
	defer rows.Close()

	var events []*models.AlertEvent
	for rows.Next() {
		event := &models.AlertEvent{}
		var from, to, note sql.NullString
		err := rows.Scan(&event.ID, &event.AlertID, &event.Action,
			&from, &to, &event.Actor, &note, &event.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan alert event: %w", err)
		}
		event.FromStatus = models.AlertStatus(from.String)
		event.ToStatus = models.AlertStatus(to.String)
		event.Note = note.String
		events = append(events, event)
	}
	return events, rows.Err()
}
