package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/quiet-harbor/guardrail/internal/alerting"
)

// ClickHouseConfig holds ClickHouse connection settings for the optional
// evaluation archive.
type ClickHouseConfig struct {
	// Addresses are the ClickHouse server addresses (host:port).
	Addresses []string

	// Database is the ClickHouse database name.
	Database string

	// Username for authentication.
	Username string

	// Password for authentication.
	Password string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// DialTimeout is the connection timeout.
	DialTimeout time.Duration

	// Compression enables LZ4 compression.
	Compression bool

	// RetentionDays is the TTL in days for evaluation record retention.
	RetentionDays int
}

// ClickHouseArchive stores per-rule evaluation records for dashboard
// aggregation. The matching path never reads from it and never depends
// on it being reachable.
type ClickHouseArchive struct {
	config *ClickHouseConfig
	db     *sql.DB
}

// NewClickHouseArchive creates a new evaluation archive.
func NewClickHouseArchive(config *ClickHouseConfig) *ClickHouseArchive {
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 5
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}
	if config.RetentionDays == 0 {
		config.RetentionDays = 90
	}

	return &ClickHouseArchive{config: config}
}

// Open initializes the ClickHouse connection.
func (a *ClickHouseArchive) Open() error {
	opts := &clickhouse.Options{
		Addr: a.config.Addresses,
		Auth: clickhouse.Auth{
			Database: a.config.Database,
			Username: a.config.Username,
			Password: a.config.Password,
		},
		DialTimeout:  a.config.DialTimeout,
		MaxOpenConns: a.config.MaxOpenConns,
		MaxIdleConns: a.config.MaxIdleConns,
	}

	if a.config.Compression {
		opts.Compression = &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		}
	}

	db := clickhouse.OpenDB(opts)

	ctx, cancel := context.WithTimeout(context.Background(), a.config.DialTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping clickhouse: %w", err)
	}

	a.db = db
	return nil
}

// Close closes the database connection.
func (a *ClickHouseArchive) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Migrate creates the evaluations table if it doesn't exist.
func (a *ClickHouseArchive) Migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS rule_evaluations (
			id UUID DEFAULT generateUUIDv4(),
			evaluated_at DateTime64(3, 'UTC'),
			test_id String,
			control_id String,
			rule_id String,
			result_status LowCardinality(String),
			severity LowCardinality(String),
			matched UInt8,
			fired UInt8,
			suppressed UInt8,
			streak Int32,
			_date Date DEFAULT toDate(evaluated_at)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(_date)
		ORDER BY (rule_id, test_id, evaluated_at, id)
		TTL _date + INTERVAL %d DAY DELETE
		SETTINGS index_granularity = 8192
	`, a.config.RetentionDays)

	if _, err := a.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create rule_evaluations table: %w", err)
	}
	return nil
}

// Ping checks the connection health.
func (a *ClickHouseArchive) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Archive inserts a batch of evaluation records.
func (a *ClickHouseArchive) Archive(ctx context.Context, records []*alerting.EvaluationRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO rule_evaluations (
			id, evaluated_at, test_id, control_id, rule_id,
			result_status, severity, matched, fired, suppressed, streak
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err := stmt.ExecContext(ctx,
			rec.ID, rec.EvaluatedAt, rec.TestID, rec.ControlID, rec.RuleID,
			string(rec.ResultStatus), string(rec.Severity),
			boolToInt(rec.Matched), boolToInt(rec.Fired), boolToInt(rec.Suppressed),
			rec.Streak,
		)
		if err != nil {
			return fmt.Errorf("insert evaluation record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// FiringCounts returns fired-alert counts per rule in a time window, for
// dashboard aggregation.
func (a *ClickHouseArchive) FiringCounts(ctx context.Context, from, to time.Time) (map[string]int64, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT rule_id, COUNT(*) FROM rule_evaluations
		WHERE fired = 1 AND evaluated_at >= ? AND evaluated_at < ?
		GROUP BY rule_id
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query firing counts: %w", err)
	}
	defer rows.Close()

	counts := map[string]int64{}
	for rows.Next() {
		var ruleID string
		var n int64
		if err := rows.Scan(&ruleID, &n); err != nil {
			return nil, fmt.Errorf("scan firing count: %w", err)
		}
		counts[ruleID] = n
	}
	return counts, rows.Err()
}
