package app

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tradielink/backend/internal/domain"
	"github.com/tradielink/backend/internal/handlers"
	"github.com/tradielink/backend/internal/utils/jwt"
	"go.uber.org/zap"
)

// setupRouter builds the router with middleware and routes.
func setupRouter(deps *dependencies, jwtManager *jwt.Manager, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	setupMiddleware(r, logger)
	setupRoutes(r, deps, jwtManager)

	return r
}

func setupMiddleware(r *chi.Mux, logger *zap.Logger) {
	r.Use(handlers.RequestIDMiddleware())
	r.Use(handlers.LoggingMiddleware(logger))
	r.Use(handlers.RecoveryMiddleware(logger))
	r.Use(middleware.Compress(5))
}

func setupRoutes(r *chi.Mux, deps *dependencies, jwtManager *jwt.Manager) {
	r.Get("/health", deps.handlers.health.Health)
	r.Get("/ready", deps.handlers.health.Ready)

	// Public endpoints
	r.Post("/api/auth/register", deps.handlers.auth.Register)
	r.Post("/api/auth/login", deps.handlers.auth.Login)

	// Authenticated endpoints
	r.Group(func(r chi.Router) {
		r.Use(handlers.AuthMiddleware(jwtManager))

		r.Route("/api/credits", func(r chi.Router) {
			r.Get("/balance", deps.handlers.credits.GetBalance)
			r.Get("/dashboard", deps.handlers.credits.GetDashboard)
			r.Get("/transactions", deps.handlers.credits.GetTransactions)
			r.Get("/sufficiency", deps.handlers.credits.CheckSufficiency)
			r.Get("/packages", deps.handlers.credits.ListPackages)
			r.Get("/policies", deps.handlers.credits.ListPolicies)
			r.Post("/purchase", deps.handlers.credits.Purchase)
			r.Get("/auto-topup", deps.handlers.credits.GetAutoTopup)
			r.Put("/auto-topup", deps.handlers.credits.ConfigureAutoTopup)
			r.Put("/auto-topup/payment-method", deps.handlers.credits.UpdatePaymentMethod)
		})

		r.Route("/api/jobs", func(r chi.Router) {
			r.Get("/{jobID}", deps.handlers.jobs.GetJob)

			// Posting and lifecycle management are client-side actions.
			r.Group(func(r chi.Router) {
				r.Use(handlers.RequireRole(domain.RoleClient))
				r.Post("/", deps.handlers.jobs.CreateJob)
				r.Get("/", deps.handlers.jobs.ListJobs)
				r.Patch("/{jobID}/status", deps.handlers.jobs.UpdateStatus)
				r.Get("/{jobID}/applications", deps.handlers.applications.ListByJob)
			})
		})

		r.Route("/api/applications", func(r chi.Router) {
			r.Get("/{applicationID}", deps.handlers.applications.GetApplication)

			r.Group(func(r chi.Router) {
				r.Use(handlers.RequireRole(domain.RoleTradie))
				r.Post("/", deps.handlers.applications.CreateApplication)
				r.Get("/", deps.handlers.applications.ListMine)
				r.Post("/{applicationID}/withdraw", deps.handlers.applications.Withdraw)
			})

			r.Group(func(r chi.Router) {
				r.Use(handlers.RequireRole(domain.RoleClient))
				r.Patch("/{applicationID}/status", deps.handlers.applications.UpdateStatus)
			})
		})
	})
}
