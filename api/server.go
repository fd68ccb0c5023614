/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the configured frontends
  5. Auth:       Bearer token -> Principal (everything under /api)

ROUTE GROUPS:
  /healthz              Liveness + store ping (public)
  /metrics              Prometheus exposition (public, when configured)
  /api/availability     Availability query
  /api/counsellors/*    Counsellor management
  /api/submissions/*    Staffing lifecycle
  /api/notifications/*  Notification feed
  /api/settings         Notification settings (admin)
  /api/jobs/*           Manual detection job trigger (admin)

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go:     Token verification and role guard
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the cross-cutting pieces of the router.
type RouterConfig struct {
	Auth           *Authenticator
	AllowedOrigins []string

	// Optional.
	Metrics http.Handler
	Health  func(ctx context.Context) error
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: !slices.Contains(cfg.AllowedOrigins, "*"),
		MaxAge:           300,
	}))

	r.Get("/healthz", healthHandler(cfg.Health))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(cfg.Auth.Middleware)

		r.Get("/availability", h.GetAvailability)

		// Counsellor routes
		r.Route("/counsellors", func(r chi.Router) {
			r.Get("/", h.ListCounsellors)
			r.With(RequireAdmin).Post("/", h.CreateCounsellor)
			r.With(RequireAdmin).Post("/{id}/deactivate", h.DeactivateCounsellor)
		})

		// Submission routes
		r.Route("/submissions", func(r chi.Router) {
			r.Get("/", h.ListSubmissions)
			r.Post("/", h.CreateSubmission)
			r.Get("/{id}", h.GetSubmission)
			r.Put("/{id}", h.EditSubmission)
			r.Delete("/{id}", h.DeleteSubmission)

			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Post("/{id}/finalize", h.FinalizeSubmission)
				r.Put("/{id}/metadata", h.UpdateMetadata)
				r.Post("/{id}/reschedule", h.RescheduleSubmission)
				r.Post("/{id}/dismiss-duplicate", h.DismissDuplicate)
			})
		})

		// Notification routes
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.ListNotifications)
			r.Get("/unread-count", h.UnreadCount)
			r.Post("/read-all", h.MarkAllNotificationsRead)
			r.Post("/clear-read", h.ClearReadNotifications)
			r.Post("/{id}/read", h.MarkNotificationRead)
			r.Post("/{id}/dismiss", h.DismissNotification)
			r.Post("/{id}/action", h.ActionNotification)
			r.Delete("/{id}", h.DeleteNotification)
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/settings", h.GetSettings)
			r.Get("/settings/{key}", h.GetSetting)
			r.Put("/settings", h.UpdateSettings)
			r.Get("/jobs", h.ListJobs)
			r.Post("/jobs/{name}/run", h.RunJob)
		})
	})

	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
