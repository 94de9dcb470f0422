package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quiet-harbor/guardrail/internal/api/alerts"
	"github.com/quiet-harbor/guardrail/internal/api/auth"
	"github.com/quiet-harbor/guardrail/internal/api/middleware"
	"github.com/quiet-harbor/guardrail/internal/api/notifications"
	"github.com/quiet-harbor/guardrail/internal/api/results"
	"github.com/quiet-harbor/guardrail/internal/api/rules"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	var jwtService *auth.JWTService
	if len(s.config.JWTSecret) > 0 {
		jwtService = auth.NewJWTService(s.config.JWTSecret, s.config.TokenTTL)
	}

	ipLimiter := middleware.NewRateLimiter(s.config.RateLimitPerIP)

	// Global middleware
	r.Use(middleware.RequestLogger(s.config.Verbose))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.PrometheusMiddleware)
	r.Use(middleware.Recoverer)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity(jwtService))

		// Result ingest, rate limited per source IP
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(ipLimiter))
			resultsHandler := results.NewHandler(s.engine)
			r.Post("/results", resultsHandler.Ingest)
		})

		// Rule management
		r.Route("/rules", func(r chi.Router) {
			rulesHandler := rules.NewHandler(s.storage)

			r.Get("/", rulesHandler.List)
			r.Post("/", rulesHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", rulesHandler.Get)
				r.Put("/", rulesHandler.Update)
				r.Delete("/", rulesHandler.Delete)
				r.Post("/enable", rulesHandler.Enable)
				r.Post("/disable", rulesHandler.Disable)
			})
		})

		// Alert workflow
		r.Route("/alerts", func(r chi.Router) {
			alertsHandler := alerts.NewHandler(s.storage, s.lifecycle, s.dispatcher)

			r.Get("/", alertsHandler.List)
			r.Get("/counts", alertsHandler.Counts)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", alertsHandler.Get)
				r.Post("/acknowledge", alertsHandler.Acknowledge)
				r.Post("/start", alertsHandler.Start)
				r.Post("/resolve", alertsHandler.Resolve)
				r.Post("/suppress", alertsHandler.Suppress)
				r.Post("/unsuppress", alertsHandler.Unsuppress)
				r.Post("/close", alertsHandler.Close)
				r.Post("/assign", alertsHandler.Assign)
				r.Post("/redeliver", alertsHandler.Redeliver)
				r.Get("/deliveries", alertsHandler.Deliveries)
				r.Get("/events", alertsHandler.Events)
			})
		})

		// Notifications
		notificationsHandler := notifications.NewHandler(s.storage, s.dispatcher)
		r.Post("/notifications/test", notificationsHandler.Test)
		r.Get("/feed", notificationsHandler.Feed)

		// Engine counters
		r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
			OK(w, s.engine.Stats())
		})
	})

	// Health checks (public, no rate limit)
	r.Get("/health", s.healthHandler.Health)
	r.Get("/health/live", s.healthHandler.Live)
	r.Get("/health/ready", s.healthHandler.Ready)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		JSONError(w, ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		JSONError(w, NewBadRequest("method not allowed"))
	})

	return r
}
