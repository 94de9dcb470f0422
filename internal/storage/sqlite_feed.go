package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/quiet-harbor/guardrail/internal/models"
)

type sqliteFeedRepo struct {
	db *sql.DB
}

func (r *sqliteFeedRepo) Create(ctx context.Context, item *models.FeedItem) error {
	query := `
		INSERT INTO feed_items (id, alert_id, alert_number, title, severity, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		item.ID, item.AlertID, item.AlertNumber, item.Title,
		item.Severity, nullString(item.Message), item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert feed item: %w", err)
	}
	return nil
}

func (r *sqliteFeedRepo) List(ctx context.Context, limit, offset int) ([]*models.FeedItem, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feed_items").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count feed items: %w", err)
	}

	query := `
		SELECT id, alert_id, alert_number, title, severity, message, created_at
		FROM feed_items ORDER BY created_at DESC LIMIT ? OFFSET ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query feed items: %w", err)
	}
	defer rows.Close()

	var items []*models.FeedItem
	for rows.Next() {
		item := &models.FeedItem{}
		var message sql.NullString
		err := rows.Scan(&item.ID, &item.AlertID, &item.AlertNumber,
			&item.Title, &item.Severity, &message, &item.CreatedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("scan feed item: %w", err)
		}
		item.Message = message.String
		items = append(items, item)
	}
	return items, total, rows.Err()
}

func (r *sqliteFeedRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM feed_items WHERE created_at < ?", before)
	if err != nil {
		return 0, fmt.Errorf("delete feed items: %w", err)
	}
	return result.RowsAffected()
}
