package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quiet-harbor/guardrail/internal/models"
)

type sqliteAlertRepo struct {
	db *sql.DB
}

const alertColumns = `id, alert_number, title, description, severity, status,
	rule_id, rule_name, test_id, control_id, result_json,
	assigned_to, assigned_by, assigned_at,
	resolution_notes, resolved_by, resolved_at,
	suppression_reason, suppressed_until, sla_deadline,
	channels_json, delivered_json, created_at, updated_at`

// Create inserts the alert and assigns its alert_number inside one
// transaction. Numbers are strictly increasing and never reused; the
// single-connection pool serializes concurrent creators.
func (r *sqliteAlertRepo) Create(ctx context.Context, alert *models.Alert) error {
	resultJSON, chJSON, deliveredJSON, err := marshalAlert(alert)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin alert insert: %w", err)
	}
	defer tx.Rollback()

	var next int64
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(alert_number), 0) + 1 FROM alerts").Scan(&next)
	if err != nil {
		return fmt.Errorf("next alert number: %w", err)
	}
	alert.AlertNumber = next

	query := `
		INSERT INTO alerts (` + alertColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		alert.ID, alert.AlertNumber, alert.Title, nullString(alert.Description),
		alert.Severity, alert.Status,
		alert.RuleID, alert.RuleName, alert.TestID, nullString(alert.ControlID), resultJSON,
		nullString(alert.AssignedTo), nullString(alert.AssignedBy), nullTime(alert.AssignedAt),
		nullString(alert.ResolutionNotes), nullString(alert.ResolvedBy), nullTime(alert.ResolvedAt),
		nullString(alert.SuppressionReason), nullTime(alert.SuppressedUntil), nullTime(alert.SLADeadline),
		chJSON, deliveredJSON, alert.CreatedAt, alert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit alert insert: %w", err)
	}
	return nil
}

func (r *sqliteAlertRepo) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = ?`
	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return alert, err
}

func (r *sqliteAlertRepo) GetByNumber(ctx context.Context, number int64) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE alert_number = ?`
	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, number))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return alert, err
}

// Update persists a lifecycle change. delivered_json is deliberately not in
// the SET list: the dispatcher stamps it through MarkDelivered while the
// alert may already be loaded elsewhere, and writing the in-memory map back
// would erase a stamp that landed in between. Only Create and MarkDelivered
// write that column.
func (r *sqliteAlertRepo) Update(ctx context.Context, alert *models.Alert) error {
	resultJSON, chJSON, _, err := marshalAlert(alert)
	if err != nil {
		return err
	}

	query := `
		UPDATE alerts SET title = ?, description = ?, severity = ?, status = ?,
			result_json = ?,
			assigned_to = ?, assigned_by = ?, assigned_at = ?,
			resolution_notes = ?, resolved_by = ?, resolved_at = ?,
			suppression_reason = ?, suppressed_until = ?, sla_deadline = ?,
			channels_json = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		alert.Title, nullString(alert.Description), alert.Severity, alert.Status,
		resultJSON,
		nullString(alert.AssignedTo), nullString(alert.AssignedBy), nullTime(alert.AssignedAt),
		nullString(alert.ResolutionNotes), nullString(alert.ResolvedBy), nullTime(alert.ResolvedAt),
		nullString(alert.SuppressionReason), nullTime(alert.SuppressedUntil), nullTime(alert.SLADeadline),
		chJSON, alert.UpdatedAt,
		alert.ID,
	)
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("alert not found: %s", alert.ID)
	}
	return nil
}

func (r *sqliteAlertRepo) List(ctx context.Context, filter AlertFilter, limit, offset int) ([]*models.Alert, int64, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Severity != "" {
		where += " AND severity = ?"
		args = append(args, filter.Severity)
	}
	if filter.AssignedTo != "" {
		where += " AND assigned_to = ?"
		args = append(args, filter.AssignedTo)
	}
	if filter.RuleID != "" {
		where += " AND rule_id = ?"
		args = append(args, filter.RuleID)
	}
	if filter.TestID != "" {
		where += " AND test_id = ?"
		args = append(args, filter.TestID)
	}

	var total int64
	countQuery := "SELECT COUNT(*) FROM alerts " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	query := `SELECT ` + alertColumns + ` FROM alerts ` + where + `
		ORDER BY alert_number DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	alerts, err := scanAlerts(rows)
	return alerts, total, err
}

func (r *sqliteAlertRepo) ListSuppressedDue(ctx context.Context, now time.Time) ([]*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts
		WHERE status = ? AND suppressed_until IS NOT NULL AND suppressed_until <= ?
		ORDER BY alert_number`
	rows, err := r.db.QueryContext(ctx, query, models.StatusSuppressed, now)
	if err != nil {
		return nil, fmt.Errorf("query suppressed alerts: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// MarkDelivered stamps one channel's delivered_at entry. Read-modify-write
// of the JSON map is safe under the single-connection pool.
func (r *sqliteAlertRepo) MarkDelivered(ctx context.Context, id string, channel models.DeliveryChannel, at time.Time) error {
	var deliveredJSON string
	err := r.db.QueryRowContext(ctx,
		"SELECT delivered_json FROM alerts WHERE id = ?", id).Scan(&deliveredJSON)
	if err == sql.ErrNoRows {
		return fmt.Errorf("alert not found: %s", id)
	}
	if err != nil {
		return fmt.Errorf("load delivered map: %w", err)
	}

	delivered := map[models.DeliveryChannel]time.Time{}
	if err := json.Unmarshal([]byte(deliveredJSON), &delivered); err != nil {
		return fmt.Errorf("unmarshal delivered map: %w", err)
	}
	delivered[channel] = at

	updated, err := json.Marshal(delivered)
	if err != nil {
		return fmt.Errorf("marshal delivered map: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		"UPDATE alerts SET delivered_json = ? WHERE id = ?", string(updated), id)
	if err != nil {
		return fmt.Errorf("update delivered map: %w", err)
	}
	return nil
}

func (r *sqliteAlertRepo) CountByStatus(ctx context.Context) (map[models.AlertStatus]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM alerts GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count alerts by status: %w", err)
	}
	defer rows.Close()

	counts := map[models.AlertStatus]int64{}
	for rows.Next() {
		var status models.AlertStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func marshalAlert(alert *models.Alert) (result, channels, delivered string, err error) {
	resultJSON, err := json.Marshal(alert.Result)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal result snapshot: %w", err)
	}
	chJSON, err := json.Marshal(alert.DeliveryChannels)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal channels: %w", err)
	}
	deliveredMap := alert.DeliveredAt
	if deliveredMap == nil {
		deliveredMap = map[models.DeliveryChannel]time.Time{}
	}
	deliveredJSON, err := json.Marshal(deliveredMap)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal delivered map: %w", err)
	}
	return string(resultJSON), string(chJSON), string(deliveredJSON), nil
}

func scanAlert(row scanner) (*models.Alert, error) {
	alert := &models.Alert{}
	var description, controlID sql.NullString
	var assignedTo, assignedBy, resolutionNotes, resolvedBy, suppressionReason sql.NullString
	var assignedAt, resolvedAt, suppressedUntil, slaDeadline sql.NullTime
	var resultJSON, chJSON, deliveredJSON string

	err := row.Scan(
		&alert.ID, &alert.AlertNumber, &alert.Title, &description,
		&alert.Severity, &alert.Status,
		&alert.RuleID, &alert.RuleName, &alert.TestID, &controlID, &resultJSON,
		&assignedTo, &assignedBy, &assignedAt,
		&resolutionNotes, &resolvedBy, &resolvedAt,
		&suppressionReason, &suppressedUntil, &slaDeadline,
		&chJSON, &deliveredJSON, &alert.CreatedAt, &alert.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	alert.Description = description.String
	alert.ControlID = controlID.String
	alert.AssignedTo = assignedTo.String
	alert.AssignedBy = assignedBy.String
	alert.AssignedAt = timePtr(assignedAt)
	alert.ResolutionNotes = resolutionNotes.String
	alert.ResolvedBy = resolvedBy.String
	alert.ResolvedAt = timePtr(resolvedAt)
	alert.SuppressionReason = suppressionReason.String
	alert.SuppressedUntil = timePtr(suppressedUntil)
	alert.SLADeadline = timePtr(slaDeadline)

	if err := json.Unmarshal([]byte(resultJSON), &alert.Result); err != nil {
		return nil, fmt.Errorf("unmarshal result snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(chJSON), &alert.DeliveryChannels); err != nil {
		return nil, fmt.Errorf("unmarshal channels: %w", err)
	}
	if err := json.Unmarshal([]byte(deliveredJSON), &alert.DeliveredAt); err != nil {
		return nil, fmt.Errorf("unmarshal delivered map: %w", err)
	}
	if alert.DeliveredAt == nil {
		alert.DeliveredAt = map[models.DeliveryChannel]time.Time{}
	}

	return alert, nil
}

func scanAlerts(rows *sql.Rows) ([]*models.Alert, error) {
	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}
