package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/havenwell/aegis/internal/auth"
	"github.com/havenwell/aegis/internal/handlers"
	"github.com/havenwell/aegis/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	adminHandler *handlers.AdminHandler,
	sessions auth.SessionValidator,
	users auth.UserLoader,
) {
	// IP-level rate limiting backstops the per-email guard on public endpoints
	rateLimitConfig := middleware.DefaultAuthRateLimit()

	// Public routes - no authentication required
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimitConfig))

		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/register/verify", authHandler.VerifyRegistration)
		r.Post("/auth/register/resend", authHandler.ResendRegistrationCode)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/login/verify", authHandler.VerifyLogin)
		r.Post("/auth/login/resend", authHandler.ResendLoginCode)
	})

	// Protected routes - session token required
	router.Group(func(r chi.Router) {
		r.Use(auth.SessionMiddleware(sessions))

		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/session", authHandler.GetSession)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin(users))
			r.Post("/admin/rate-limits/reset", adminHandler.ResetRateLimits)
		})
	})
}
