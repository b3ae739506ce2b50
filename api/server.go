/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. Logger:        Request logging
  3. Recoverer:     Panic recovery (500 instead of crash)
  4. CORS:          Cross-origin requests for the frontend
  5. RequireTenant: X-Tenant-ID scoping on every /api route

ROUTE GROUPS:
  /api/work-orders/*   Consumption recording and history
  /api/consumptions/*  Reversals
  /api/units/*         Inventory units
  /api/requirements    Material requirements
  /api/kinds/*         Status engine: transitions, tables, admin
  /api/audit/*         Audit trails
  /healthz             Liveness probe (no tenant required)
  /metrics             Prometheus scrape endpoint

SECURITY NOTE:
  Identity is trusted from the gateway headers; this service performs
  capability checks only. Do not expose it without an authenticating
  proxy in front.

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
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", headerTenant, headerActor, headerRole},
		AllowCredentials: true,
	}))

	// Operational endpoints outside the tenant gate
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(RequireTenant)

		// Consumption routes
		r.Route("/work-orders/{woID}", func(r chi.Router) {
			r.Post("/consume", h.Consume)
			r.Get("/consumptions", h.ListConsumptions)
		})
		r.Post("/consumptions/{id}/reverse", h.Reverse)

		// Inventory unit routes
		r.Route("/units", func(r chi.Router) {
			r.Post("/", h.CreateUnit)
			r.Get("/{id}", h.GetUnit)
		})

		// Requirement routes
		r.Post("/requirements", h.CreateRequirement)

		// Status engine routes
		r.Route("/kinds/{kind}", func(r chi.Router) {
			r.Put("/entities/{id}/status", h.Transition)
			r.Get("/statuses", h.GetKindTable)
			r.Post("/statuses", h.CreateStatus)
			r.Put("/statuses/{code}", h.UpdateStatus)
			r.Delete("/statuses/{code}", h.DeleteStatus)
			r.Post("/rules", h.CreateRule)
			r.Delete("/rules", h.DeleteRule)
		})

		// Audit routes
		r.Get("/audit/{subjectType}/{subjectID}", h.GetAuditTrail)
	})

	return r
}
