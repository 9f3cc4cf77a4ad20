/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the dashboard

ROUTE GROUPS:
  /api/grants/*         Grant summary feed and detail
  /api/alerts           Compliance alert feed
  /api/budget-alerts    Overspent categories
  /api/outcomes         Outcome performance feed
  /api/compliance       Compliance scores
  /api/data-quality     Validation issues
  /api/refresh/*        Manual refresh and history

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DefaultAllowedOrigins are the dashboard origins allowed when none are configured.
var DefaultAllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = DefaultAllowedOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/grants", func(r chi.Router) {
			r.Get("/", h.ListGrants)
			r.Get("/{id}", h.GetGrant)
		})

		r.Get("/alerts", h.ListAlerts)
		r.Get("/deliverables", h.ListDeliverables)
		r.Get("/budget-alerts", h.ListBudgetAlerts)
		r.Get("/outcomes", h.ListOutcomes)
		r.Get("/compliance", h.GetCompliance)
		r.Get("/data-quality", h.ListDataQuality)

		r.Route("/refresh", func(r chi.Router) {
			r.Post("/", h.TriggerRefresh)
			r.Get("/runs", h.ListRefreshRuns)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
