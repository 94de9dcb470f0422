package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/quiet-harbor/guardrail/internal/api/auth"
)

func actorEchoHandler(got *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = GetActor(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestIdentity_HeaderMode(t *testing.T) {
	var actor string
	handler := Identity(nil)(actorEchoHandler(&actor))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Actor", "alice")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if actor != "alice" {
		t.Errorf("actor = %q, want alice", actor)
	}
}

func TestIdentity_HeaderModeAnonymousFallback(t *testing.T) {
	var actor string
	handler := Identity(nil)(actorEchoHandler(&actor))

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if actor != AnonymousActor {
		t.Errorf("actor = %q, want %q", actor, AnonymousActor)
	}
}

func TestIdentity_TokenMode(t *testing.T) {
	svc := auth.NewJWTService([]byte("test-secret-at-least-32-bytes!!!"), time.Hour)
	token, err := svc.GenerateToken("ci-pipeline")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	var actor string
	handler := Identity(svc)(actorEchoHandler(&actor))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", rec.Code, rec.Body.String())
	}
	if actor != "ci-pipeline" {
		t.Errorf("actor = %q, want ci-pipeline", actor)
	}
}

func TestIdentity_TokenModeRejections(t *testing.T) {
	svc := auth.NewJWTService([]byte("test-secret-at-least-32-bytes!!!"), time.Hour)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not.a.token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var actor string
			handler := Identity(svc)(actorEchoHandler(&actor))

			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
			if actor != "" {
				t.Error("handler should not run for rejected requests")
			}
		})
	}

	// X-Actor is ignored when token validation is enabled.
	var actor string
	handler := Identity(svc)(actorEchoHandler(&actor))
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Actor", "spoofed")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}
