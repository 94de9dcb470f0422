package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quiet-harbor/guardrail/internal/models"
)

func TestWebhookNotifier_Send(t *testing.T) {
	var got webhookPayload
	var gotUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.Client())
	alert := testAlert()
	err := n.Send(context.Background(), alert, models.ChannelSettings{WebhookURL: server.URL})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if got.Event != "alert.fired" {
		t.Errorf("event = %q, want alert.fired", got.Event)
	}
	if got.AlertID != alert.ID || got.AlertNumber != alert.AlertNumber {
		t.Errorf("identity = %s/#%d", got.AlertID, got.AlertNumber)
	}
	if got.RuleID != alert.RuleID || got.TestID != alert.TestID || got.ControlID != alert.ControlID {
		t.Errorf("provenance = %s/%s/%s", got.RuleID, got.TestID, got.ControlID)
	}
	if got.Result.Status != models.ResultStatusFail {
		t.Errorf("result status = %q", got.Result.Status)
	}
	if gotUserAgent != "guardrail-webhook/1.0" {
		t.Errorf("user agent = %q", gotUserAgent)
	}
}

func TestWebhookNotifier_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.Client())
	err := n.Send(context.Background(), testAlert(), models.ChannelSettings{WebhookURL: server.URL})
	if err == nil {
		t.Fatal("expected error on 502 response")
	}
	if !strings.Contains(err.Error(), "status 502") {
		t.Errorf("err = %v", err)
	}
}

func TestWebhookNotifier_MissingURL(t *testing.T) {
	n := NewWebhookNotifier(nil)
	if err := n.Send(context.Background(), testAlert(), models.ChannelSettings{}); err == nil {
		t.Error("expected error for missing URL")
	}
}
