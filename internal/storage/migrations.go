package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			-- Alert rules table
			CREATE TABLE IF NOT EXISTS alert_rules (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				description TEXT,
				enabled INTEGER NOT NULL DEFAULT 1,
				priority INTEGER NOT NULL DEFAULT 0,
				match_severities_json TEXT NOT NULL,
				match_statuses_json TEXT NOT NULL,
				consecutive_failures INTEGER NOT NULL DEFAULT 1,
				cooldown_minutes INTEGER NOT NULL DEFAULT 0,
				alert_severity TEXT NOT NULL,
				sla_hours REAL NOT NULL DEFAULT 0,
				channels_json TEXT NOT NULL,
				channel_settings_json TEXT NOT NULL,
				alerts_generated INTEGER NOT NULL DEFAULT 0,
				deprecated INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			-- Alerts table
			CREATE TABLE IF NOT EXISTS alerts (
				id TEXT PRIMARY KEY,
				alert_number INTEGER NOT NULL UNIQUE,
				title TEXT NOT NULL,
				description TEXT,
				severity TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'open',
				rule_id TEXT NOT NULL,
				rule_name TEXT NOT NULL,
				test_id TEXT NOT NULL,
				control_id TEXT,
				result_json TEXT NOT NULL,
				assigned_to TEXT,
				assigned_by TEXT,
				assigned_at DATETIME,
				resolution_notes TEXT,
				resolved_by TEXT,
				resolved_at DATETIME,
				suppression_reason TEXT,
				suppressed_until DATETIME,
				sla_deadline DATETIME,
				channels_json TEXT NOT NULL,
				delivered_json TEXT NOT NULL DEFAULT '{}',
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			-- Delivery attempt log
			CREATE TABLE IF NOT EXISTS delivery_attempts (
				id TEXT PRIMARY KEY,
				alert_id TEXT NOT NULL,
				channel TEXT NOT NULL,
				succeeded INTEGER NOT NULL,
				reason TEXT,
				attempted_at DATETIME NOT NULL,
				FOREIGN KEY (alert_id) REFERENCES alerts(id) ON DELETE CASCADE
			);

			-- Alert audit trail
			CREATE TABLE IF NOT EXISTS alert_events (
				id TEXT PRIMARY KEY,
				alert_id TEXT NOT NULL,
				action TEXT NOT NULL,
				from_status TEXT,
				to_status TEXT,
				actor TEXT NOT NULL,
				note TEXT,
				created_at DATETIME NOT NULL,
				FOREIGN KEY (alert_id) REFERENCES alerts(id) ON DELETE CASCADE
			);

			-- In-app notification feed
			CREATE TABLE IF NOT EXISTS feed_items (
				id TEXT PRIMARY KEY,
				alert_id TEXT NOT NULL,
				alert_number INTEGER NOT NULL,
				title TEXT NOT NULL,
				severity TEXT NOT NULL,
				message TEXT,
				created_at DATETIME NOT NULL
			);

			-- Indexes
			CREATE INDEX IF NOT EXISTS idx_rules_enabled ON alert_rules(enabled);
			CREATE INDEX IF NOT EXISTS idx_rules_priority ON alert_rules(priority);
			CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
			CREATE INDEX IF NOT EXISTS idx_alerts_severity ON alerts(severity);
			CREATE INDEX IF NOT EXISTS idx_alerts_rule ON alerts(rule_id);
			CREATE INDEX IF NOT EXISTS idx_alerts_test ON alerts(test_id);
			CREATE INDEX IF NOT EXISTS idx_alerts_suppressed ON alerts(status, suppressed_until);
			CREATE INDEX IF NOT EXISTS idx_attempts_alert ON delivery_attempts(alert_id);
			CREATE INDEX IF NOT EXISTS idx_events_alert ON alert_events(alert_id);
			CREATE INDEX IF NOT EXISTS idx_feed_created ON feed_items(created_at);
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		_, err = tx.Exec(m.Up)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
