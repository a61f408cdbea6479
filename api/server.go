/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from X-Forwarded-For / X-Real-IP
  3. Logger:     zap request logging (requestLogger)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for frontends

ROUTE GROUPS:
  /api/counties, wards, localities, farmers, farms   Registry
  /api/produces/*                                    Produce and assignment
  /api/cigs/*, /api/cycles                           Groups and cycles
  /api/scenarios/*                                   Demo datasets
  /api/admin/*                                       Rollover, seed, scheduler
  /healthz                                           Liveness and database check
  /metrics                                           Prometheus exposition

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/cigd/serve.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// CORSOrigins lists allowed origins. Empty allows the local dev frontends.
	CORSOrigins []string

	// Gatherer backs /metrics. Nil omits the endpoint.
	Gatherer prometheus.Gatherer
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		// Geography
		r.Route("/counties", func(r chi.Router) {
			r.Get("/", h.ListCounties)
			r.Post("/", h.CreateCounty)
			r.Get("/{id}", h.GetCounty)
			r.Put("/{id}", h.UpdateCounty)
			r.Delete("/{id}", h.DeleteCounty)
		})
		r.Route("/wards", func(r chi.Router) {
			r.Get("/", h.ListWards)
			r.Post("/", h.CreateWard)
			r.Get("/{id}", h.GetWard)
			r.Put("/{id}", h.UpdateWard)
			r.Delete("/{id}", h.DeleteWard)
		})
		r.Route("/localities", func(r chi.Router) {
			r.Get("/", h.ListLocalities)
			r.Post("/", h.CreateLocality)
			r.Get("/{id}", h.GetLocality)
			r.Put("/{id}", h.UpdateLocality)
			r.Delete("/{id}", h.DeleteLocality)
		})

		// Farmers and farms
		r.Route("/farmers", func(r chi.Router) {
			r.Get("/", h.ListFarmers)
			r.Post("/", h.CreateFarmer)
			r.Get("/{id}", h.GetFarmer)
			r.Put("/{id}", h.UpdateFarmer)
			r.Delete("/{id}", h.DeleteFarmer)
		})
		r.Route("/farms", func(r chi.Router) {
			r.Get("/", h.ListFarms)
			r.Post("/", h.CreateFarm)
			r.Get("/{id}", h.GetFarm)
			r.Put("/{id}", h.UpdateFarm)
			r.Delete("/{id}", h.DeleteFarm)
		})

		// Produce and assignment
		r.Route("/produces", func(r chi.Router) {
			r.Get("/", h.ListProduce)
			r.Post("/", h.CreateProduce)
			r.Post("/bulk", h.BulkCreateProduce)
			r.Get("/{id}", h.GetProduce)
			r.Put("/{id}", h.UpdateProduce)
			r.Delete("/{id}", h.DeleteProduce)
			r.Post("/{id}/assign", h.AssignProduce)
		})

		// Groups and cycles
		r.Route("/cigs", func(r chi.Router) {
			r.Get("/", h.ListGroups)
			r.Get("/{id}", h.GetGroup)
			r.Get("/{id}/members", h.GroupMembers)
			r.Get("/{id}/cycles", h.GroupCycles)
			r.Post("/{id}/cycles/recompute", h.RecomputeCycle)
		})
		r.Get("/cycles", h.ListCycles)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/rollover", h.TriggerRollover)
			r.Post("/seed", h.Seed)
			r.Get("/scheduler", h.GetSchedulerStatus)
		})
	})

	return r
}
