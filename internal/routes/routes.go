package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmercier/aegis/internal/auth"
	"github.com/jmercier/aegis/internal/handlers"
	"github.com/jmercier/aegis/internal/middleware"
	"github.com/jmercier/aegis/internal/models"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth          *handlers.AuthHandler
	Users         *handlers.UserHandler
	Sessions      *handlers.SessionHandler
	APIKeys       *handlers.APIKeyHandler
	TwoFactor     *handlers.TwoFactorHandler
	Roles         *handlers.RoleHandler
	Registrations *handlers.RegistrationHandler
	Audit         *handlers.AuditHandler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	h Handlers,
	tokenManager *auth.TokenManager,
	users auth.UserFetcher,
	apiKeys auth.APIKeyAuthenticator,
	sessions auth.SessionToucher,
	healthCheck http.HandlerFunc,
) {
	authRate := middleware.DefaultAuthRateLimit()

	router.Get("/health", healthCheck)

	// Public routes - no authentication required
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(authRate))

		r.Post("/auth/login", h.Auth.Login)
		r.Post("/auth/verify-2fa", h.Auth.Verify2FA)
		r.Post("/auth/refresh", h.Auth.Refresh)
		r.Post("/registrations", h.Registrations.Submit)
	})

	// Protected routes - bearer token or API key
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokenManager, users, apiKeys, sessions))
		r.Use(middleware.RateLimitByIP(middleware.DefaultAPIRateLimit()))

		r.Post("/auth/logout", h.Auth.Logout)
		r.Post("/auth/change-password", h.Auth.ChangePassword)

		r.Get("/users/me", h.Users.Me)

		r.Post("/2fa/setup", h.TwoFactor.Begin)
		r.Post("/2fa/confirm", h.TwoFactor.Confirm)
		r.Post("/2fa/disable", h.TwoFactor.Disable)

		r.Get("/sessions", h.Sessions.ListMine)
		r.Delete("/sessions/{id}", h.Sessions.Invalidate)

		r.Get("/api-keys", h.APIKeys.List)
		r.Post("/api-keys", h.APIKeys.Create)
		r.Delete("/api-keys/{id}", h.APIKeys.Revoke)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleAdmin))

			r.Get("/users", h.Users.List)
			r.Post("/users", h.Users.Create)
			r.Get("/users/{id}", h.Users.Get)
			r.Put("/users/{id}", h.Users.Update)
			r.Delete("/users/{id}", h.Users.Delete)
			r.Post("/users/{id}/unlock", h.Users.Unlock)
			r.Post("/users/{id}/enable", h.Users.Enable)
			r.Post("/users/{id}/disable", h.Users.Disable)
			r.Post("/users/{id}/reset-password", h.Users.ResetPassword)
			r.Put("/users/{id}/roles", h.Users.AssignRoles)
			r.Get("/users/{id}/sessions", h.Sessions.ListForUser)
			r.Delete("/users/{id}/sessions", h.Sessions.InvalidateAllForUser)

			r.Get("/roles", h.Roles.List)
			r.Post("/roles", h.Roles.Create)
			r.Get("/roles/{id}", h.Roles.Get)
			r.Put("/roles/{id}", h.Roles.Update)
			r.Delete("/roles/{id}", h.Roles.Delete)

			r.Get("/registrations", h.Registrations.List)
			r.Get("/registrations/{id}", h.Registrations.Get)
			r.Post("/registrations/{id}/approve", h.Registrations.Approve)
			r.Post("/registrations/{id}/reject", h.Registrations.Reject)
		})

		// The audit trail is readable by admins and the security team.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAnyRole(models.RoleAdmin, models.RoleSecurity))
			r.Get("/audit", h.Audit.List)
		})
	})
}
