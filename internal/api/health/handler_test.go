package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubChecker struct {
	name string
	err  error
}

func (c *stubChecker) Name() string                  { return c.name }
func (c *stubChecker) Check(_ context.Context) error { return c.err }

func doReady(t *testing.T, h *Handler) (int, HealthResponse) {
	t.Helper()
	req := httptest.NewRequest("GET", "/health/ready", nil)
	rec := httptest.NewRecorder()
	h.Ready(rec, req)

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rec.Code, resp
}

func TestReady_AllHealthy(t *testing.T) {
	h := NewHandler()
	h.RegisterChecker(&stubChecker{name: "sqlite"})

	code, resp := doReady(t, h)
	if code != http.StatusOK || resp.Status != "ready" {
		t.Errorf("got %d/%q, want 200/ready", code, resp.Status)
	}
	if resp.Checks["sqlite"] != "ok" {
		t.Errorf("sqlite check = %q", resp.Checks["sqlite"])
	}
}

func TestReady_RequiredFailureFailsProbe(t *testing.T) {
	h := NewHandler()
	h.RegisterChecker(&stubChecker{name: "sqlite", err: errors.New("database is locked")})

	code, resp := doReady(t, h)
	if code != http.StatusServiceUnavailable || resp.Status != "not_ready" {
		t.Errorf("got %d/%q, want 503/not_ready", code, resp.Status)
	}
	if resp.Checks["sqlite"] != "database is locked" {
		t.Errorf("sqlite check = %q", resp.Checks["sqlite"])
	}
}

func TestReady_OptionalFailureDegrades(t *testing.T) {
	h := NewHandler()
	h.RegisterChecker(&stubChecker{name: "sqlite"})
	h.RegisterOptionalChecker(&stubChecker{name: "clickhouse", err: errors.New("dial timeout")})

	code, resp := doReady(t, h)
	if code != http.StatusOK {
		t.Errorf("optional failure should not fail the probe, got %d", code)
	}
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
	if resp.Checks["clickhouse"] != "dial timeout" {
		t.Errorf("clickhouse check = %q", resp.Checks["clickhouse"])
	}
}

func TestHealth_ReportsVersion(t *testing.T) {
	h := NewHandler()
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" || resp.Version == "" {
		t.Errorf("got %q/%q, want ok with a version", resp.Status, resp.Version)
	}
}
