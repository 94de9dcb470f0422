// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/quiet-harbor/guardrail/internal/api/auth"
)

// Context keys for storing request identity.
type contextKey string

const actorKey contextKey = "actor"

// AnonymousActor is recorded when no identity is attached to a request
// and token validation is disabled.
const AnonymousActor = "anonymous"

// jsonUnauthorized writes an unauthorized error response.
func jsonUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    "UNAUTHORIZED",
			"message": "invalid or expired token",
		},
	})
}

// Identity returns middleware that resolves the acting identity for
// audited operations. With a JWT service configured, requests must carry
// a valid bearer token and the actor comes from its claims. Without one,
// the deployment trusts its perimeter: the actor is taken from the
// X-Actor header, falling back to "anonymous".
func Identity(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var actor string

			if jwtService != nil {
				authHeader := r.Header.Get("Authorization")
				if authHeader == "" {
					jsonUnauthorized(w)
					return
				}

				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
					jsonUnauthorized(w)
					return
				}

				claims, err := jwtService.ValidateToken(parts[1])
				if err != nil {
					log.Printf("token validation failed for %s: %v", r.RemoteAddr, err)
					jsonUnauthorized(w)
					return
				}
				actor = claims.Actor
			} else {
				actor = strings.TrimSpace(r.Header.Get("X-Actor"))
				if actor == "" {
					actor = AnonymousActor
				}
			}

			ctx := context.WithValue(r.Context(), actorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetActor returns the acting identity from context.
func GetActor(ctx context.Context) string {
	if v := ctx.Value(actorKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return AnonymousActor
}
