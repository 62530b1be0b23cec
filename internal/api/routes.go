package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the router: health unauthenticated at the root,
// everything else under /api.
func SetupRoutes(h *Handlers, health *HealthChecker) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", health.Handle)

	r.Route("/api", func(r chi.Router) {
		// Campaigns and snapshot ingestion
		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", h.CreateCampaign)
			r.Get("/", h.ListCampaigns)

			r.Route("/{campaignID}", func(r chi.Router) {
				r.Get("/", h.GetCampaign)
				r.Patch("/", h.UpdateCampaign)
				r.Delete("/", h.DeleteCampaign)

				r.Post("/snapshots", h.AddSnapshots)
				r.Get("/snapshots", h.ListSnapshots)
				r.Post("/snapshots/backfill", h.BackfillSnapshots)

				r.Get("/measurement", h.GetMeasurementReport)
			})
		})

		// Optimization pipeline
		r.Route("/optimization", func(r chi.Router) {
			r.Route("/campaigns/{campaignID}", func(r chi.Router) {
				r.Post("/run", h.RunOptimization)
				r.Post("/monitor", h.RunMonitorCycle)
				r.Get("/monitor-runs", h.ListMonitorRuns)

				r.Get("/metrics", h.GetMetricsSnapshot)
				r.Post("/collect", h.CollectMetrics)
				r.Get("/kpis", h.ListKPIs)
				r.Get("/trends", h.ListTrends)

				r.Get("/proposals", h.ListProposals)
				r.Get("/learnings", h.ListLearnings)
			})

			// Proposal lifecycle
			r.Route("/proposals/{proposalID}", func(r chi.Router) {
				r.Get("/", h.GetProposal)
				r.Post("/approve", h.ReviewProposal)
				r.Post("/execute", h.ExecuteProposal)
				r.Post("/verify", h.VerifyProposal)
			})

			// Method registry
			r.Get("/methods", h.ListMethods)
			r.Patch("/methods/{methodID}", h.UpdateMethod)
		})
	})

	return r
}
