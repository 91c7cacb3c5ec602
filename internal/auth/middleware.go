package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jmercier/aegis/internal/models"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey holds the authenticated *models.User
	UserContextKey contextKey = "user"
	// ClaimsContextKey holds the *models.TokenClaims for bearer auth
	ClaimsContextKey contextKey = "claims"
)

// UserFetcher resolves the authenticated subject to a full user record.
type UserFetcher interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// APIKeyAuthenticator resolves an API key header to its owning user.
type APIKeyAuthenticator interface {
	Authenticate(ctx context.Context, plainKey string) (*models.User, error)
}

// SessionToucher stamps activity on a session, best-effort.
type SessionToucher interface {
	Touch(ctx context.Context, sessionToken string) error
}

// Middleware authenticates requests with either a bearer access token or an
// X-API-Key header and injects the resolved user into the request context.
// When the client also presents its X-Session-Token, the session's activity
// timestamp is refreshed.
func Middleware(tm *TokenManager, users UserFetcher, apiKeys APIKeyAuthenticator, sessions SessionToucher) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey := r.Header.Get("X-API-Key"); apiKey != "" && apiKeys != nil {
				user, err := apiKeys.Authenticate(r.Context(), apiKey)
				if err != nil {
					http.Error(w, "invalid api key", http.StatusUnauthorized)
					return
				}
				ctx := context.WithValue(r.Context(), UserContextKey, user)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "invalid authorization header format", http.StatusUnauthorized)
				return
			}

			claims, err := tm.ValidateToken(parts[1])
			if err != nil {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			// Only access tokens authenticate API requests. Refresh tokens
			// belong to /auth/refresh and temp tokens to /auth/verify-2fa.
			if claims.Type != models.TokenTypeAccess {
				http.Error(w, "token not valid for API access", http.StatusUnauthorized)
				return
			}

			user, err := users.GetByUsername(r.Context(), claims.Subject)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			if !user.Enabled {
				http.Error(w, "account disabled", http.StatusForbidden)
				return
			}

			if sessionToken := r.Header.Get("X-Session-Token"); sessionToken != "" && sessions != nil {
				// Best-effort; a stale or unknown session never blocks
				// the request.
				_ = sessions.Touch(r.Context(), sessionToken)
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			ctx = context.WithValue(ctx, ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a route on a role name.
func RequireRole(role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUserFromContext(r)
			if user == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !user.HasRole(role) {
				http.Error(w, "forbidden: insufficient permissions", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyRole gates a route on holding at least one of the given roles.
func RequireAnyRole(roles ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUserFromContext(r)
			if user == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if user.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "forbidden: insufficient permissions", http.StatusForbidden)
		})
	}
}

// RequirePermission gates a route on a capability resolved through the
// caller's role set.
func RequirePermission(capability string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUserFromContext(r)
			if user == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !Authorize(user, capability) {
				http.Error(w, "forbidden: insufficient permissions", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext extracts the authenticated user from the request context.
func GetUserFromContext(r *http.Request) *models.User {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}
