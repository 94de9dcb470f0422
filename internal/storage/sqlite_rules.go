package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quiet-harbor/guardrail/internal/models"
)

type sqliteRuleRepo struct {
	db *sql.DB
}

const ruleColumns = `id, name, description, enabled, priority,
	match_severities_json, match_statuses_json, consecutive_failures,
	cooldown_minutes, alert_severity, sla_hours, channels_json,
	channel_settings_json, alerts_generated, deprecated, created_at, updated_at`

func (r *sqliteRuleRepo) Create(ctx context.Context, rule *models.AlertRule) error {
	sevJSON, statusJSON, chJSON, settingsJSON, err := marshalRule(rule)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO alert_rules (` + ruleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		rule.ID, rule.Name, nullString(rule.Description), boolToInt(rule.Enabled), rule.Priority,
		sevJSON, statusJSON, rule.ConsecutiveFailures,
		rule.CooldownMinutes, rule.AlertSeverity, rule.SLAHours, chJSON,
		settingsJSON, rule.AlertsGenerated, boolToInt(rule.Deprecated),
		rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

func (r *sqliteRuleRepo) GetByID(ctx context.Context, id string) (*models.AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE id = ?`
	rule, err := scanRule(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rule, err
}

func (r *sqliteRuleRepo) Update(ctx context.Context, rule *models.AlertRule) error {
	sevJSON, statusJSON, chJSON, settingsJSON, err := marshalRule(rule)
	if err != nil {
		return err
	}

	query := `
		UPDATE alert_rules SET name = ?, description = ?, enabled = ?, priority = ?,
			match_severities_json = ?, match_statuses_json = ?, consecutive_failures = ?,
			cooldown_minutes = ?, alert_severity = ?, sla_hours = ?, channels_json = ?,
			channel_settings_json = ?, deprecated = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		rule.Name, nullString(rule.Description), boolToInt(rule.Enabled), rule.Priority,
		sevJSON, statusJSON, rule.ConsecutiveFailures,
		rule.CooldownMinutes, rule.AlertSeverity, rule.SLAHours, chJSON,
		settingsJSON, boolToInt(rule.Deprecated), rule.UpdatedAt,
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("rule not found: %s", rule.ID)
	}
	return nil
}

func (r *sqliteRuleRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM alert_rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("rule not found: %s", id)
	}
	return nil
}

func (r *sqliteRuleRepo) List(ctx context.Context, filter RuleFilter, limit, offset int) ([]*models.AlertRule, int64, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	if filter.Enabled != nil {
		where += " AND enabled = ?"
		args = append(args, boolToInt(*filter.Enabled))
	}
	if !filter.IncludeDeprecated {
		where += " AND deprecated = 0"
	}

	var total int64
	countQuery := "SELECT COUNT(*) FROM alert_rules " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count rules: %w", err)
	}

	query := `SELECT ` + ruleColumns + ` FROM alert_rules ` + where + `
		ORDER BY priority, id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	rules, err := scanRules(rows)
	return rules, total, err
}

func (r *sqliteRuleRepo) ListEnabled(ctx context.Context) ([]*models.AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules
		WHERE enabled = 1 AND deprecated = 0 ORDER BY priority, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query enabled rules: %w", err)
	}
	defer rows.Close()
	return scanRules(rows)
}

func (r *sqliteRuleRepo) SetEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE alert_rules SET enabled = ?, updated_at = ? WHERE id = ?",
		boolToInt(enabled), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("set rule enabled: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("rule not found: %s", id)
	}
	return nil
}

func (r *sqliteRuleRepo) SetDeprecated(ctx context.Context, id string, deprecated bool) error {
	// Deprecating a rule also disables it; provenance from existing alerts
	// keeps resolving while the rule stops matching new results.
	query := "UPDATE alert_rules SET deprecated = ?, updated_at = ? WHERE id = ?"
	args := []interface{}{boolToInt(deprecated), time.Now(), id}
	if deprecated {
		query = "UPDATE alert_rules SET deprecated = ?, enabled = 0, updated_at = ? WHERE id = ?"
	}
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set rule deprecated: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("rule not found: %s", id)
	}
	return nil
}

func (r *sqliteRuleRepo) IncrementAlertsGenerated(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE alert_rules SET alerts_generated = alerts_generated + 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("increment alerts_generated: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("rule not found: %s", id)
	}
	return nil
}

func marshalRule(rule *models.AlertRule) (sev, status, channels, settings string, err error) {
	sevJSON, err := json.Marshal(rule.MatchSeverities)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshal match severities: %w", err)
	}
	statusJSON, err := json.Marshal(rule.MatchResultStatuses)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshal match statuses: %w", err)
	}
	chJSON, err := json.Marshal(rule.DeliveryChannels)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshal channels: %w", err)
	}
	settingsJSON, err := json.Marshal(rule.ChannelSettings)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshal channel settings: %w", err)
	}
	return string(sevJSON), string(statusJSON), string(chJSON), string(settingsJSON), nil
}

func scanRule(row scanner) (*models.AlertRule, error) {
	rule := &models.AlertRule{}
	var description sql.NullString
	var sevJSON, statusJSON, chJSON, settingsJSON string
	var enabled, deprecated int

	err := row.Scan(
		&rule.ID, &rule.Name, &description, &enabled, &rule.Priority,
		&sevJSON, &statusJSON, &rule.ConsecutiveFailures,
		&rule.CooldownMinutes, &rule.AlertSeverity, &rule.SLAHours, &chJSON,
		&settingsJSON, &rule.AlertsGenerated, &deprecated,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Description = description.String
	rule.Enabled = enabled != 0
	rule.Deprecated = deprecated != 0

	if err := json.Unmarshal([]byte(sevJSON), &rule.MatchSeverities); err != nil {
		return nil, fmt.Errorf("unmarshal match severities: %w", err)
	}
	if err := json.Unmarshal([]byte(statusJSON), &rule.MatchResultStatuses); err != nil {
		return nil, fmt.Errorf("unmarshal match statuses: %w", err)
	}
	if err := json.Unmarshal([]byte(chJSON), &rule.DeliveryChannels); err != nil {
		return nil, fmt.Errorf("unmarshal channels: %w", err)
	}
	if err := json.Unmarshal([]byte(settingsJSON), &rule.ChannelSettings); err != nil {
		return nil, fmt.Errorf("unmarshal channel settings: %w", err)
	}

	return rule, nil
}

func scanRules(rows *sql.Rows) ([]*models.AlertRule, error) {
	var rules []*models.AlertRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Helper functions

type scanner interface {
	Scan(dest ...interface{}) error
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
