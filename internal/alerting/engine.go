// Package alerting implements the rule matching engine that turns
// compliance-test results into alerts, plus the alert lifecycle state
// machine and the derived SLA clock.
package alerting

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/quiet-harbor/guardrail/internal/metrics"
	"github.com/quiet-harbor/guardrail/internal/models"
)

// RuleSource supplies the enabled rules to evaluate. Implemented by the
// rule repository; a short-TTL cache can sit in front without the engine
// noticing.
type RuleSource interface {
	ListEnabled(ctx context.Context) ([]*models.AlertRule, error)
}

// AlertSink persists fired alerts and rule counters.
type AlertSink interface {
	CreateAlert(ctx context.Context, alert *models.Alert) error
	IncrementAlertsGenerated(ctx context.Context, ruleID string) error
}

// Deliverer fans a fired alert out to its channels. The engine invokes it
// asynchronously and never waits for the outcome.
type Deliverer interface {
	Deliver(ctx context.Context, alert *models.Alert, settings models.ChannelSettings)
}

// EvaluationRecord is one (result, rule) evaluation outcome, archived
// best-effort for dashboard aggregation.
type EvaluationRecord struct {
	ID           string
	TestID       string
	ControlID    string
	RuleID       string
	ResultStatus models.ResultStatus
	Severity     models.Severity
	Matched      bool
	Fired        bool
	Suppressed   bool
	Streak       int
	EvaluatedAt  time.Time
}

// Archiver receives evaluation records. Archive failures are logged, never
// propagated; the matching path does not depend on the archive.
type Archiver interface {
	Archive(ctx context.Context, records []*EvaluationRecord) error
}

// EngineStats tracks engine counters using atomics for lock-free reads.
type EngineStats struct {
	ResultsProcessed  atomic.Int64
	RulesEvaluated    atomic.Int64
	PredicateMatches  atomic.Int64
	AlertsFired       atomic.Int64
	FiringsSuppressed atomic.Int64
}

// EngineStatsSnapshot is a point-in-time copy of engine counters.
type EngineStatsSnapshot struct {
	ResultsProcessed  int64
	RulesEvaluated    int64
	PredicateMatches  int64
	AlertsFired       int64
	FiringsSuppressed int64
}

// Engine evaluates completed test results against all enabled rules.
type Engine struct {
	rules      RuleSource
	alerts     AlertSink
	dispatcher Deliverer
	tracker    *Tracker
	archive    Archiver

	stats *EngineStats
}

// NewEngine creates a matching engine. archive may be nil.
func NewEngine(rules RuleSource, alerts AlertSink, dispatcher Deliverer, tracker *Tracker, archive Archiver) *Engine {
	return &Engine{
		rules:      rules,
		alerts:     alerts,
		dispatcher: dispatcher,
		tracker:    tracker,
		archive:    archive,
		stats:      &EngineStats{},
	}
}

// Process evaluates one completed test result and returns the alerts it
// fired. Rules are independent: evaluation order is priority-ascending
// (ties broken by rule id) but there is no first-match short-circuit, so
// one result may fire zero, one, or several rules.
func (e *Engine) Process(ctx context.Context, result *models.TestResult) ([]*models.Alert, error) {
	return e.ProcessAt(ctx, result, time.Now())
}

// ProcessAt evaluates a result at a specific time (useful for testing).
func (e *Engine) ProcessAt(ctx context.Context, result *models.TestResult, now time.Time) ([]*models.Alert, error) {
	if err := validateResult(result); err != nil {
		return nil, err
	}

	rules, err := e.rules.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("load enabled rules: %w", err)
	}
	sortRules(rules)

	e.stats.ResultsProcessed.Add(1)
	metrics.ResultsProcessed.Inc()

	var fired []*models.Alert
	records := make([]*EvaluationRecord, 0, len(rules))

	for _, rule := range rules {
		e.stats.RulesEvaluated.Add(1)

		matched := rule.Matches(result)
		if matched {
			e.stats.PredicateMatches.Add(1)
		}

		decision := e.tracker.Observe(rule.ID, result.TestID, matched,
			rule.ConsecutiveFailures, rule.Cooldown(), now)

		rec := &EvaluationRecord{
			ID:           uuid.New().String(),
			TestID:       result.TestID,
			ControlID:    result.ControlID,
			RuleID:       rule.ID,
			ResultStatus: result.Status,
			Severity:     result.Severity,
			Matched:      matched,
			Fired:        decision.Fire,
			Suppressed:   decision.Suppressed,
			Streak:       decision.Streak,
			EvaluatedAt:  now,
		}
		records = append(records, rec)

		if decision.Suppressed {
			e.stats.FiringsSuppressed.Add(1)
			metrics.FiringsSuppressed.WithLabelValues(rule.ID).Inc()
			continue
		}
		if !decision.Fire {
			continue
		}

		alert, err := e.fire(ctx, rule, result, now)
		if err != nil {
			return fired, err
		}
		fired = append(fired, alert)
	}

	e.archiveRecords(ctx, records)
	return fired, nil
}

// fire creates the alert, bumps the rule counter, and hands the alert to
// the dispatcher. Alert creation is complete once persisted; delivery
// outcome never affects it.
func (e *Engine) fire(ctx context.Context, rule *models.AlertRule, result *models.TestResult, now time.Time) (*models.Alert, error) {
	description := result.Message
	if description == "" {
		description = rule.Description
	}

	alert := &models.Alert{
		ID:          uuid.New().String(),
		Title:       fmt.Sprintf("%s: test %s %s", rule.Name, result.TestID, result.Status),
		Description: description,
		Severity:    rule.AlertSeverity,
		Status:      models.StatusOpen,
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		TestID:      result.TestID,
		ControlID:   result.ControlID,
		Result: models.ResultSnapshot{
			Status:   result.Status,
			Message:  result.Message,
			Details:  result.Details,
			TestedAt: result.TestedAt,
		},
		SLADeadline:      Deadline(rule, now),
		DeliveryChannels: append([]models.DeliveryChannel(nil), rule.DeliveryChannels...),
		DeliveredAt:      map[models.DeliveryChannel]time.Time{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := e.alerts.CreateAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	if err := e.alerts.IncrementAlertsGenerated(ctx, rule.ID); err != nil {
		log.Printf("warning: increment alerts_generated for rule %s: %v", rule.ID, err)
	}

	e.stats.AlertsFired.Add(1)
	metrics.AlertsFired.WithLabelValues(string(alert.Severity)).Inc()
	log.Printf("alert fired: #%d %s (rule %s, test %s)",
		alert.AlertNumber, alert.ID, rule.ID, result.TestID)

	if e.dispatcher != nil {
		// Detach from the request context so a finished ingest call does
		// not cancel in-flight sends; the dispatcher bounds each send
		// with its own timeout.
		e.dispatcher.Deliver(context.WithoutCancel(ctx), alert, rule.ChannelSettings)
	}

	return alert, nil
}

func (e *Engine) archiveRecords(ctx context.Context, records []*EvaluationRecord) {
	if e.archive == nil || len(records) == 0 {
		return
	}
	if err := e.archive.Archive(context.WithoutCancel(ctx), records); err != nil {
		log.Printf("warning: archive %d evaluation records: %v", len(records), err)
	}
}

// Stats returns a snapshot of engine counters.
func (e *Engine) Stats() EngineStatsSnapshot {
	return EngineStatsSnapshot{
		ResultsProcessed:  e.stats.ResultsProcessed.Load(),
		RulesEvaluated:    e.stats.RulesEvaluated.Load(),
		PredicateMatches:  e.stats.PredicateMatches.Load(),
		AlertsFired:       e.stats.AlertsFired.Load(),
		FiringsSuppressed: e.stats.FiringsSuppressed.Load(),
	}
}

// sortRules orders rules priority-ascending with rule id as tie breaker so
// evaluation order is deterministic.
func sortRules(rules []*models.AlertRule) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}

func validateResult(result *models.TestResult) error {
	if result == nil {
		return NewValidationError("test result is required")
	}
	if result.TestID == "" {
		return NewValidationError("test_id is required")
	}
	if !models.ValidResultStatus(string(result.Status)) {
		return NewValidationError("invalid result status %q", result.Status)
	}
	if !models.ValidSeverity(string(result.Severity)) {
		return NewValidationError("invalid severity %q", result.Severity)
	}
	return nil
}
