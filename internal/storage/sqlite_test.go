package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/quiet-harbor/guardrail/internal/models"
)

func setupTestDB(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "guardrail-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}

	store := NewSQLiteStorage(filepath.Join(tmpDir, "test.db"))
	if err := store.Open(); err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("open database: %v", err)
	}

	if err := store.Migrate(); err != nil {
		store.Close()
		os.RemoveAll(tmpDir)
		t.Fatalf("migrate database: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return store, cleanup
}

func testRule() *models.AlertRule {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.AlertRule{
		ID:                  uuid.New().String(),
		Name:                "encryption check",
		Description:         "fires when disk encryption tests fail",
		Enabled:             true,
		Priority:            5,
		MatchSeverities:     []models.Severity{models.SeverityHigh, models.SeverityCritical},
		MatchResultStatuses: []models.ResultStatus{models.ResultStatusFail, models.ResultStatusError},
		ConsecutiveFailures: 2,
		CooldownMinutes:     60,
		AlertSeverity:       models.SeverityCritical,
		SLAHours:            4,
		DeliveryChannels:    []models.DeliveryChannel{models.ChannelSlack, models.ChannelInApp},
		ChannelSettings: models.ChannelSettings{
			SlackWebhookURL: "https://hooks.slack.com/services/T0/B0/x",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func storedAlert(ruleID string) *models.Alert {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.Alert{
		ID:        uuid.New().String(),
		Title:     "encryption check: test test-7 fail",
		Severity:  models.SeverityCritical,
		Status:    models.StatusOpen,
		RuleID:    ruleID,
		RuleName:  "encryption check",
		TestID:    "test-7",
		ControlID: "ctrl-3",
		Result: models.ResultSnapshot{
			Status:   models.ResultStatusFail,
			Message:  "2 of 14 hosts unencrypted",
			TestedAt: now,
		},
		DeliveryChannels: []models.DeliveryChannel{models.ChannelSlack},
		DeliveredAt:      map[models.DeliveryChannel]time.Time{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestSQLiteStorage_Migrate(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	tables := []string{"alert_rules", "alerts", "delivery_attempts", "alert_events", "feed_items", "schema_migrations"}
	for _, table := range tables {
		var count int
		err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		if err != nil {
			t.Errorf("table %s should exist: %v", table, err)
		}
	}
}

func TestRuleRepository_CRUD(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	rule := testRule()
	if err := store.Rules().Create(ctx, rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	got, err := store.Rules().GetByID(ctx, rule.ID)
	if err != nil {
		t.Fatalf("get rule: %v", err)
	}
	if got == nil {
		t.Fatal("rule should exist")
	}
	if got.Name != rule.Name || got.Priority != rule.Priority {
		t.Errorf("got %q/%d, want %q/%d", got.Name, got.Priority, rule.Name, rule.Priority)
	}
	if len(got.MatchSeverities) != 2 || len(got.MatchResultStatuses) != 2 {
		t.Errorf("match sets = %v / %v", got.MatchSeverities, got.MatchResultStatuses)
	}
	if got.SlackWebhookURL != rule.SlackWebhookURL {
		t.Errorf("slack webhook url = %q", got.SlackWebhookURL)
	}
	if got.SLAHours != 4 {
		t.Errorf("sla hours = %v, want 4", got.SLAHours)
	}

	got.Name = "renamed check"
	got.CooldownMinutes = 30
	if err := store.Rules().Update(ctx, got); err != nil {
		t.Fatalf("update rule: %v", err)
	}
	got, _ = store.Rules().GetByID(ctx, rule.ID)
	if got.Name != "renamed check" || got.CooldownMinutes != 30 {
		t.Errorf("after update: %q/%d", got.Name, got.CooldownMinutes)
	}

	if err := store.Rules().Delete(ctx, rule.ID); err != nil {
		t.Fatalf("delete rule: %v", err)
	}
	got, err = store.Rules().GetByID(ctx, rule.ID)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got != nil {
		t.Error("rule should be gone")
	}
}

func TestRuleRepository_ListEnabled(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	enabled := testRule()
	disabled := testRule()
	disabled.Enabled = false
	deprecated := testRule()

	for _, r := range []*models.AlertRule{enabled, disabled, deprecated} {
		if err := store.Rules().Create(ctx, r); err != nil {
			t.Fatalf("create rule: %v", err)
		}
	}
	if err := store.Rules().SetDeprecated(ctx, deprecated.ID, true); err != nil {
		t.Fatalf("deprecate rule: %v", err)
	}

	rules, err := store.Rules().ListEnabled(ctx)
	if err != nil {
		t.Fatalf("list enabled: %v", err)
	}
	if len(rules) != 1 || rules[0].ID != enabled.ID {
		t.Errorf("enabled rules = %d, want only the enabled one", len(rules))
	}

	// Deprecated rules are hidden from the default listing.
	all, total, err := store.Rules().List(ctx, RuleFilter{}, 50, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(all) != 2 {
		t.Errorf("default list = %d/%d, want 2", len(all), total)
	}

	all, total, err = store.Rules().List(ctx, RuleFilter{IncludeDeprecated: true}, 50, 0)
	if err != nil {
		t.Fatalf("list with deprecated: %v", err)
	}
	if total != 3 {
		t.Errorf("full list total = %d, want 3", total)
	}
	_ = all
}

func TestRuleRepository_IncrementAlertsGenerated(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	rule := testRule()
	if err := store.Rules().Create(ctx, rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := store.Rules().IncrementAlertsGenerated(ctx, rule.ID); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}

	got, _ := store.Rules().GetByID(ctx, rule.ID)
	if got.AlertsGenerated != 3 {
		t.Errorf("alerts_generated = %d, want 3", got.AlertsGenerated)
	}
}

func TestAlertRepository_CreateAssignsSequentialNumbers(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		alert := storedAlert("rule-1")
		if err := store.Alerts().Create(ctx, alert); err != nil {
			t.Fatalf("create alert %d: %v", i, err)
		}
		if alert.AlertNumber != int64(i) {
			t.Errorf("alert number = %d, want %d", alert.AlertNumber, i)
		}
	}

	got, err := store.Alerts().GetByNumber(ctx, 2)
	if err != nil {
		t.Fatalf("get by number: %v", err)
	}
	if got == nil || got.AlertNumber != 2 {
		t.Errorf("get by number = %+v", got)
	}
}

func TestAlertRepository_Roundtrip(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	alert := storedAlert("rule-1")
	deadline := time.Now().UTC().Add(4 * time.Hour).Truncate(time.Second)
	alert.SLADeadline = &deadline
	if err := store.Alerts().Create(ctx, alert); err != nil {
		t.Fatalf("create alert: %v", err)
	}

	got, err := store.Alerts().GetByID(ctx, alert.ID)
	if err != nil {
		t.Fatalf("get alert: %v", err)
	}
	if got == nil {
		t.Fatal("alert should exist")
	}
	if got.Status != models.StatusOpen || got.RuleID != "rule-1" {
		t.Errorf("got %q/%q", got.Status, got.RuleID)
	}
	if got.Result.Message != alert.Result.Message {
		t.Errorf("result snapshot message = %q", got.Result.Message)
	}
	if got.SLADeadline == nil || !got.SLADeadline.Equal(deadline) {
		t.Errorf("sla deadline = %v, want %v", got.SLADeadline, deadline)
	}
	if got.DeliveredAt == nil {
		t.Error("delivered map should never be nil")
	}

	now := time.Now().UTC().Truncate(time.Second)
	got.Status = models.StatusResolved
	got.ResolutionNotes = "patched the parser"
	got.ResolvedBy = "alice"
	got.ResolvedAt = &now
	if err := store.Alerts().Update(ctx, got); err != nil {
		t.Fatalf("update alert: %v", err)
	}

	got, _ = store.Alerts().GetByID(ctx, alert.ID)
	if got.Status != models.StatusResolved || got.ResolvedBy != "alice" || got.ResolvedAt == nil {
		t.Errorf("after update: %q/%q/%v", got.Status, got.ResolvedBy, got.ResolvedAt)
	}
}

func TestAlertRepository_MarkDelivered(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	alert := storedAlert("rule-1")
	if err := store.Alerts().Create(ctx, alert); err != nil {
		t.Fatalf("create alert: %v", err)
	}

	at := time.Now().UTC().Truncate(time.Second)
	if err := store.Alerts().MarkDelivered(ctx, alert.ID, models.ChannelSlack, at); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}

	got, _ := store.Alerts().GetByID(ctx, alert.ID)
	stamped, ok := got.DeliveredAt[models.ChannelSlack]
	if !ok || !stamped.Equal(at) {
		t.Errorf("delivered_at[slack] = %v/%v, want %v", stamped, ok, at)
	}
	if _, ok := got.DeliveredAt[models.ChannelEmail]; ok {
		t.Error("only the delivered channel should be stamped")
	}
}

func TestAlertRepository_UpdateKeepsDeliveryStamps(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	alert := storedAlert("rule-1")
	if err := store.Alerts().Create(ctx, alert); err != nil {
		t.Fatalf("create alert: %v", err)
	}

	// Load a copy before the dispatcher stamps the channel, as a
	// lifecycle action racing an async delivery would.
	stale, _ := store.Alerts().GetByID(ctx, alert.ID)

	at := time.Now().UTC().Truncate(time.Second)
	if err := store.Alerts().MarkDelivered(ctx, alert.ID, models.ChannelSlack, at); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}

	stale.Status = models.StatusAcknowledged
	stale.UpdatedAt = time.Now().UTC()
	if err := store.Alerts().Update(ctx, stale); err != nil {
		t.Fatalf("update alert: %v", err)
	}

	got, _ := store.Alerts().GetByID(ctx, alert.ID)
	if got.Status != models.StatusAcknowledged {
		t.Errorf("status = %q, want %q", got.Status, models.StatusAcknowledged)
	}
	stamped, ok := got.DeliveredAt[models.ChannelSlack]
	if !ok || !stamped.Equal(at) {
		t.Errorf("delivered_at[slack] = %v/%v, want %v; stale update must not erase stamps", stamped, ok, at)
	}
}

func TestAlertRepository_ListFilters(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	open := storedAlert("rule-1")
	resolved := storedAlert("rule-2")
	resolved.Status = models.StatusResolved
	resolved.Severity = models.SeverityLow
	assigned := storedAlert("rule-1")
	assigned.AssignedTo = "bob"

	for _, a := range []*models.Alert{open, resolved, assigned} {
		if err := store.Alerts().Create(ctx, a); err != nil {
			t.Fatalf("create alert: %v", err)
		}
	}

	alerts, total, err := store.Alerts().List(ctx, AlertFilter{Status: models.StatusOpen}, 50, 0)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if total != 2 {
		t.Errorf("open total = %d, want 2", total)
	}
	// Newest first.
	if len(alerts) == 2 && alerts[0].AlertNumber < alerts[1].AlertNumber {
		t.Error("listing should be ordered by alert_number descending")
	}

	_, total, err = store.Alerts().List(ctx, AlertFilter{AssignedTo: "bob"}, 50, 0)
	if err != nil {
		t.Fatalf("list assigned: %v", err)
	}
	if total != 1 {
		t.Errorf("assigned total = %d, want 1", total)
	}

	_, total, err = store.Alerts().List(ctx, AlertFilter{RuleID: "rule-2", Severity: models.SeverityLow}, 50, 0)
	if err != nil {
		t.Fatalf("list by rule: %v", err)
	}
	if total != 1 {
		t.Errorf("rule-2 low total = %d, want 1", total)
	}

	counts, err := store.Alerts().CountByStatus(ctx)
	if err != nil {
		t.Fatalf("count by status: %v", err)
	}
	if counts[models.StatusOpen] != 2 || counts[models.StatusResolved] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestAlertRepository_ListSuppressedDue(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now().UTC()

	due := storedAlert("rule-1")
	due.Status = models.StatusSuppressed
	past := now.Add(-time.Minute)
	due.SuppressedUntil = &past

	notDue := storedAlert("rule-1")
	notDue.Status = models.StatusSuppressed
	future := now.Add(time.Hour)
	notDue.SuppressedUntil = &future

	for _, a := range []*models.Alert{due, notDue} {
		if err := store.Alerts().Create(ctx, a); err != nil {
			t.Fatalf("create alert: %v", err)
		}
	}

	got, err := store.Alerts().ListSuppressedDue(ctx, now)
	if err != nil {
		t.Fatalf("list suppressed due: %v", err)
	}
	if len(got) != 1 || got[0].ID != due.ID {
		t.Errorf("due = %d, want only the expired one", len(got))
	}
}

func TestDeliveryRepository(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	alert := storedAlert("rule-1")
	if err := store.Alerts().Create(ctx, alert); err != nil {
		t.Fatalf("create alert: %v", err)
	}

	old := &models.DeliveryAttempt{
		ID:          uuid.New().String(),
		AlertID:     alert.ID,
		Channel:     models.ChannelSlack,
		Succeeded:   false,
		Reason:      "slack API error: status 500",
		AttemptedAt: time.Now().UTC().Add(-48 * time.Hour),
	}
	recent := &models.DeliveryAttempt{
		ID:          uuid.New().String(),
		AlertID:     alert.ID,
		Channel:     models.ChannelSlack,
		Succeeded:   true,
		AttemptedAt: time.Now().UTC(),
	}
	for _, a := range []*models.DeliveryAttempt{old, recent} {
		if err := store.Deliveries().Create(ctx, a); err != nil {
			t.Fatalf("create attempt: %v", err)
		}
	}

	attempts, err := store.Deliveries().ListByAlert(ctx, alert.ID)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(attempts))
	}
	if attempts[0].ID != old.ID {
		t.Error("attempts should be ordered oldest first")
	}
	if attempts[0].Reason != old.Reason {
		t.Errorf("reason = %q", attempts[0].Reason)
	}

	deleted, err := store.Deliveries().DeleteBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("delete before: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
}

func TestEventRepository(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	alert := storedAlert("rule-1")
	if err := store.Alerts().Create(ctx, alert); err != nil {
		t.Fatalf("create alert: %v", err)
	}

	event := &models.AlertEvent{
		ID:         uuid.New().String(),
		AlertID:    alert.ID,
		Action:     "acknowledge",
		FromStatus: models.StatusOpen,
		ToStatus:   models.StatusAcknowledged,
		Actor:      "alice",
		CreatedAt:  time.Now().UTC(),
	}
	if err := store.Events().Create(ctx, event); err != nil {
		t.Fatalf("create event: %v", err)
	}

	events, err := store.Events().ListByAlert(ctx, alert.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].Action != "acknowledge" || events[0].Actor != "alice" {
		t.Errorf("event = %+v", events[0])
	}
}

func TestFeedRepository(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		item := &models.FeedItem{
			ID:          uuid.New().String(),
			AlertID:     uuid.New().String(),
			AlertNumber: int64(i + 1),
			Title:       "alert",
			Severity:    models.SeverityHigh,
			CreatedAt:   time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		if err := store.Feed().Create(ctx, item); err != nil {
			t.Fatalf("create feed item: %v", err)
		}
	}

	items, total, err := store.Feed().List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("list feed: %v", err)
	}
	if total != 3 || len(items) != 2 {
		t.Errorf("feed = %d/%d, want 2 of 3", len(items), total)
	}
	if len(items) == 2 && items[0].CreatedAt.Before(items[1].CreatedAt) {
		t.Error("feed should be newest first")
	}
}

func TestAlertEvents_CascadeDelete(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	alert := storedAlert("rule-1")
	if err := store.Alerts().Create(ctx, alert); err != nil {
		t.Fatalf("create alert: %v", err)
	}
	event := &models.AlertEvent{
		ID:        uuid.New().String(),
		AlertID:   alert.ID,
		Action:    "acknowledge",
		Actor:     "alice",
		CreatedAt: time.Now().UTC(),
	}
	if err := store.Events().Create(ctx, event); err != nil {
		t.Fatalf("create event: %v", err)
	}

	if _, err := store.db.ExecContext(ctx, "DELETE FROM alerts WHERE id = ?", alert.ID); err != nil {
		t.Fatalf("delete alert: %v", err)
	}

	events, err := store.Events().ListByAlert(ctx, alert.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events = %d, want cascade delete", len(events))
	}
}
