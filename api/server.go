/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. Recoverer:     Panic recovery (500 instead of crash)
  3. RequestLogger: One zap line per request
  4. CORS:          Cross-origin requests for a local dashboard

ROUTE GROUPS:
  /api/transactions  Submit business events
  /api/accounts/*    Deferral account views + per-account audit
  /api/reconcile     Global audit
  /api/scenarios/*   Demo scenario loading
  /api/policies      Active recognition policies
  /metrics           Prometheus scrape endpoint

SECURITY NOTE:
  No authentication middleware. The engine is an in-process core with a
  local HTTP surface; anything internet-facing fronts it with a gateway.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler, log *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/transactions", h.SubmitTransaction)

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Get("/{kind}/{id}", h.GetAccount)
			r.Get("/{kind}/{id}/transactions", h.GetAccountTransactions)
			r.Post("/{kind}/{id}/reconcile", h.ReconcileAccount)
		})

		r.Post("/reconcile", h.ReconcileAll)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})

		r.Get("/policies", h.ListPolicies)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
