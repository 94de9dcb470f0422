package alerting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/quiet-harbor/guardrail/internal/models"
)

type fakeRuleSource struct {
	rules []*models.AlertRule
	err   error
}

func (f *fakeRuleSource) ListEnabled(ctx context.Context) ([]*models.AlertRule, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rules, nil
}

type fakeAlertSink struct {
	mu         sync.Mutex
	alerts     []*models.Alert
	increments map[string]int
	createErr  error
}

func (f *fakeAlertSink) CreateAlert(ctx context.Context, alert *models.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	alert.AlertNumber = int64(len(f.alerts) + 1)
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeAlertSink) IncrementAlertsGenerated(ctx context.Context, ruleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.increments == nil {
		f.increments = make(map[string]int)
	}
	f.increments[ruleID]++
	return nil
}

type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []*models.Alert
}

func (f *fakeDeliverer) Deliver(ctx context.Context, alert *models.Alert, settings models.ChannelSettings) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, alert)
}

type fakeArchiver struct {
	mu      sync.Mutex
	records []*EvaluationRecord
}

func (f *fakeArchiver) Archive(ctx context.Context, records []*EvaluationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, records...)
	return nil
}

func failRule(id string, consecutive int, cooldownMinutes int) *models.AlertRule {
	return &models.AlertRule{
		ID:                  id,
		Name:                "rule " + id,
		Enabled:             true,
		MatchResultStatuses: []models.ResultStatus{models.ResultStatusFail},
		ConsecutiveFailures: consecutive,
		CooldownMinutes:     cooldownMinutes,
		AlertSeverity:       models.SeverityHigh,
		DeliveryChannels:    []models.DeliveryChannel{models.ChannelInApp},
	}
}

func failResult(testID string, status models.ResultStatus) *models.TestResult {
	return &models.TestResult{
		TestID:    testID,
		ControlID: "ctrl-1",
		Status:    status,
		Severity:  models.SeverityCritical,
		Message:   "disk encryption disabled",
		TestedAt:  time.Now(),
	}
}

func TestEngine_ValidatesResult(t *testing.T) {
	engine := NewEngine(&fakeRuleSource{}, &fakeAlertSink{}, nil, NewTracker(), nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		result *models.TestResult
	}{
		{"nil result", nil},
		{"missing test id", &models.TestResult{Status: models.ResultStatusFail, Severity: models.SeverityHigh}},
		{"bad status", &models.TestResult{TestID: "t", Status: "unknown", Severity: models.SeverityHigh}},
		{"bad severity", &models.TestResult{TestID: "t", Status: models.ResultStatusFail, Severity: "urgent"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Process(ctx, tt.result)
			if !IsValidation(err) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
}

func TestEngine_ConsecutiveThreshold(t *testing.T) {
	sink := &fakeAlertSink{}
	source := &fakeRuleSource{rules: []*models.AlertRule{failRule("rule-1", 3, 0)}}
	engine := NewEngine(source, sink, nil, NewTracker(), nil)
	ctx := context.Background()
	now := time.Now()

	// fail, fail, pass resets; then three fails fire exactly once.
	sequence := []models.ResultStatus{
		models.ResultStatusFail,
		models.ResultStatusFail,
		models.ResultStatusPass,
		models.ResultStatusFail,
		models.ResultStatusFail,
		models.ResultStatusFail,
	}

	total := 0
	for i, status := range sequence {
		fired, err := engine.ProcessAt(ctx, failResult("test-1", status), now.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
		total += len(fired)
	}

	if total != 1 {
		t.Errorf("alerts fired = %d, want 1", total)
	}
	if len(sink.alerts) != 1 {
		t.Fatalf("alerts persisted = %d, want 1", len(sink.alerts))
	}
	if sink.increments["rule-1"] != 1 {
		t.Errorf("alerts_generated increments = %d, want 1", sink.increments["rule-1"])
	}
}

func TestEngine_IndependentRulesBothFire(t *testing.T) {
	sink := &fakeAlertSink{}
	source := &fakeRuleSource{rules: []*models.AlertRule{
		failRule("rule-a", 1, 0),
		failRule("rule-b", 1, 0),
	}}
	engine := NewEngine(source, sink, nil, NewTracker(), nil)

	fired, err := engine.Process(context.Background(), failResult("test-1", models.ResultStatusFail))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(fired) != 2 {
		t.Errorf("alerts fired = %d, want 2 (no first-match short circuit)", len(fired))
	}
}

func TestEngine_PriorityOrdersEvaluation(t *testing.T) {
	low := failRule("rule-z", 1, 0)
	low.Priority = 1
	high := failRule("rule-a", 1, 0)
	high.Priority = 10

	sink := &fakeAlertSink{}
	source := &fakeRuleSource{rules: []*models.AlertRule{high, low}}
	engine := NewEngine(source, sink, nil, NewTracker(), nil)

	fired, err := engine.Process(context.Background(), failResult("test-1", models.ResultStatusFail))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(fired) != 2 {
		t.Fatalf("alerts fired = %d, want 2", len(fired))
	}
	if fired[0].RuleID != "rule-z" || fired[1].RuleID != "rule-a" {
		t.Errorf("firing order = %s, %s; want rule-z first", fired[0].RuleID, fired[1].RuleID)
	}
}

func TestEngine_CooldownSuppressesRefire(t *testing.T) {
	sink := &fakeAlertSink{}
	source := &fakeRuleSource{rules: []*models.AlertRule{failRule("rule-1", 1, 60)}}
	engine := NewEngine(source, sink, nil, NewTracker(), nil)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	fired, _ := engine.ProcessAt(ctx, failResult("test-1", models.ResultStatusFail), t0)
	if len(fired) != 1 {
		t.Fatalf("first result: fired = %d, want 1", len(fired))
	}

	fired, _ = engine.ProcessAt(ctx, failResult("test-1", models.ResultStatusFail), t0.Add(30*time.Minute))
	if len(fired) != 0 {
		t.Errorf("within cooldown: fired = %d, want 0", len(fired))
	}

	fired, _ = engine.ProcessAt(ctx, failResult("test-1", models.ResultStatusFail), t0.Add(61*time.Minute))
	if len(fired) != 1 {
		t.Errorf("after cooldown: fired = %d, want 1", len(fired))
	}

	stats := engine.Stats()
	if stats.FiringsSuppressed != 1 {
		t.Errorf("suppressed = %d, want 1", stats.FiringsSuppressed)
	}
}

func TestEngine_AlertFields(t *testing.T) {
	rule := failRule("rule-1", 1, 0)
	rule.Name = "encryption check"
	rule.SLAHours = 4

	sink := &fakeAlertSink{}
	deliverer := &fakeDeliverer{}
	source := &fakeRuleSource{rules: []*models.AlertRule{rule}}
	engine := NewEngine(source, sink, deliverer, NewTracker(), nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	result := failResult("test-7", models.ResultStatusFail)
	fired, err := engine.ProcessAt(context.Background(), result, now)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(fired) != 1 {
		t.Fatalf("fired = %d, want 1", len(fired))
	}

	alert := fired[0]
	if alert.Title != "encryption check: test test-7 fail" {
		t.Errorf("title = %q", alert.Title)
	}
	if alert.Status != models.StatusOpen {
		t.Errorf("status = %q, want open", alert.Status)
	}
	if alert.Severity != models.SeverityHigh {
		t.Errorf("severity = %q, want rule's alert severity", alert.Severity)
	}
	if alert.RuleID != "rule-1" || alert.TestID != "test-7" || alert.ControlID != "ctrl-1" {
		t.Errorf("provenance = %s/%s/%s", alert.RuleID, alert.TestID, alert.ControlID)
	}
	if alert.Result.Status != models.ResultStatusFail || alert.Result.Message != result.Message {
		t.Errorf("result snapshot = %+v", alert.Result)
	}
	if alert.SLADeadline == nil || !alert.SLADeadline.Equal(now.Add(4*time.Hour)) {
		t.Errorf("sla deadline = %v, want %v", alert.SLADeadline, now.Add(4*time.Hour))
	}
	if alert.AlertNumber != 1 {
		t.Errorf("alert number = %d, want 1", alert.AlertNumber)
	}
	if len(deliverer.delivered) != 1 {
		t.Errorf("deliveries = %d, want 1", len(deliverer.delivered))
	}
}

func TestEngine_SeverityFilter(t *testing.T) {
	rule := failRule("rule-1", 1, 0)
	rule.MatchSeverities = []models.Severity{models.SeverityLow}

	engine := NewEngine(&fakeRuleSource{rules: []*models.AlertRule{rule}}, &fakeAlertSink{}, nil, NewTracker(), nil)

	// Result severity is critical; the rule only matches low.
	fired, err := engine.Process(context.Background(), failResult("test-1", models.ResultStatusFail))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(fired) != 0 {
		t.Errorf("fired = %d, want 0", len(fired))
	}
}

func TestEngine_ArchivesEveryEvaluation(t *testing.T) {
	archive := &fakeArchiver{}
	source := &fakeRuleSource{rules: []*models.AlertRule{
		failRule("rule-a", 1, 0),
		failRule("rule-b", 2, 0),
	}}
	engine := NewEngine(source, &fakeAlertSink{}, nil, NewTracker(), archive)

	if _, err := engine.Process(context.Background(), failResult("test-1", models.ResultStatusFail)); err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(archive.records) != 2 {
		t.Fatalf("archived records = %d, want 2", len(archive.records))
	}
	for _, rec := range archive.records {
		if !rec.Matched {
			t.Errorf("record for %s: matched = false, want true", rec.RuleID)
		}
	}
	byRule := map[string]*EvaluationRecord{}
	for _, rec := range archive.records {
		byRule[rec.RuleID] = rec
	}
	if !byRule["rule-a"].Fired {
		t.Error("rule-a should have fired")
	}
	if byRule["rule-b"].Fired {
		t.Error("rule-b below threshold should not have fired")
	}
}
