/**
 * @description
 * This file sets up the HTTP router for the compte-service. It defines the
 * API endpoints under /v1, associates them with their handlers, and applies
 * the middleware stack: logging, panic recovery, timeouts, CORS, bearer
 * authentication and the daily rate limiter.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/banqueapi/compte-service/internal/app"
	"github.com/banqueapi/compte-service/internal/domain"
)

// Routes creates and returns the router for the compte service. limiter may
// be nil, in which case no rate limiting is applied.
func Routes(h *Handlers, service *app.Service, limiter app.RateLimiter) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", h.HealthHandler)

		r.Post("/auth/login", h.LoginHandler)

		// Group routes that require authentication.
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(service))

			r.Post("/auth/refresh", h.RefreshHandler)
			r.Post("/auth/logout", h.LogoutHandler)

			// Compte endpoints are restricted to the known roles and share
			// the daily per-user quota.
			r.Group(func(r chi.Router) {
				r.Use(RequireRoles(domain.RoleAdmin, domain.RoleClient))
				r.Use(RateLimitMiddleware(limiter))

				r.Get("/comptes", h.ListComptesHandler)
				r.Post("/comptes", h.CreateCompteHandler)
				r.Get("/comptes/{compteId}", h.GetCompteHandler)
				r.Patch("/comptes/{compteId}", h.UpdateCompteHandler)
				r.Delete("/comptes/{compteId}", h.DeleteCompteHandler)
				r.Post("/comptes/{compteId}/bloquer", h.BloquerCompteHandler)
				r.Post("/comptes/{compteId}/debloquer", h.DebloquerCompteHandler)
			})
		})
	})

	return r
}
