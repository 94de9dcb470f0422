package results

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quiet-harbor/guardrail/internal/alerting"
	"github.com/quiet-harbor/guardrail/internal/models"
)

type stubRuleSource struct {
	rules []*models.AlertRule
}

func (s *stubRuleSource) ListEnabled(ctx context.Context) ([]*models.AlertRule, error) {
	return s.rules, nil
}

type stubAlertSink struct {
	alerts []*models.Alert
}

func (s *stubAlertSink) CreateAlert(ctx context.Context, alert *models.Alert) error {
	alert.AlertNumber = int64(len(s.alerts) + 1)
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *stubAlertSink) IncrementAlertsGenerated(ctx context.Context, ruleID string) error {
	return nil
}

func newTestHandler(rules ...*models.AlertRule) (*Handler, *stubAlertSink) {
	sink := &stubAlertSink{}
	engine := alerting.NewEngine(&stubRuleSource{rules: rules}, sink, nil, alerting.NewTracker(), nil)
	return NewHandler(engine), sink
}

func TestIngest_FiresMatchingRule(t *testing.T) {
	rule := &models.AlertRule{
		ID:                  "rule-1",
		Name:                "critical failures",
		Enabled:             true,
		MatchResultStatuses: []models.ResultStatus{models.ResultStatusFail},
		ConsecutiveFailures: 1,
		AlertSeverity:       models.SeverityCritical,
	}
	h, sink := newTestHandler(rule)

	body := `{"test_id": "test-7", "control_id": "ctrl-3", "status": "fail", "severity": "critical"}`
	req := httptest.NewRequest("POST", "/results", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Ingest(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}

	var resp struct {
		Data IngestResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data.AlertsFired) != 1 {
		t.Fatalf("alerts fired = %d, want 1", len(resp.Data.AlertsFired))
	}
	fired := resp.Data.AlertsFired[0]
	if fired.RuleID != "rule-1" || fired.AlertNumber != 1 || fired.Severity != models.SeverityCritical {
		t.Errorf("fired = %+v", fired)
	}
	if len(sink.alerts) != 1 {
		t.Errorf("persisted alerts = %d, want 1", len(sink.alerts))
	}
}

func TestIngest_PassResultFiresNothing(t *testing.T) {
	rule := &models.AlertRule{
		ID:                  "rule-1",
		Name:                "failures",
		Enabled:             true,
		MatchResultStatuses: []models.ResultStatus{models.ResultStatusFail},
		ConsecutiveFailures: 1,
		AlertSeverity:       models.SeverityHigh,
	}
	h, sink := newTestHandler(rule)

	body := `{"test_id": "test-7", "status": "pass", "severity": "low"}`
	req := httptest.NewRequest("POST", "/results", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Ingest(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d; body: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data IngestResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data.AlertsFired) != 0 {
		t.Errorf("alerts fired = %d, want 0", len(resp.Data.AlertsFired))
	}
	if len(sink.alerts) != 0 {
		t.Errorf("persisted alerts = %d, want 0", len(sink.alerts))
	}
}

func TestIngest_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{{`},
		{"missing test id", `{"status": "fail", "severity": "high"}`},
		{"bad status", `{"test_id": "t", "status": "broken", "severity": "high"}`},
		{"bad severity", `{"test_id": "t", "status": "fail", "severity": "urgent"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler()
			req := httptest.NewRequest("POST", "/results", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.Ingest(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d; body: %s", rec.Code, http.StatusBadRequest, rec.Body.String())
			}
		})
	}
}
