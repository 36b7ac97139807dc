package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/havenwell/aegis/internal/models"
	pkghttp "github.com/havenwell/aegis/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserIDContextKey is the key for the authenticated user ID in context
	UserIDContextKey contextKey = "user_id"
	// CredentialContextKey is the key for the extracted credential in context
	CredentialContextKey contextKey = "credential"
)

// SessionValidator resolves a session token to the owning user ID
type SessionValidator interface {
	Validate(ctx context.Context, token string) (string, error)
}

// UserLoader fetches an account by ID for role checks
type UserLoader interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// SessionMiddleware validates session tokens and injects the user ID into
// context. Validation refreshes the session's idle timeout as a side effect.
func SessionMiddleware(sessions SessionValidator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred := ExtractCredential(r)
			if cred.Source == SourceNone {
				pkghttp.WriteUnauthorized(w, "missing credentials")
				return
			}

			userID, err := sessions.Validate(r.Context(), cred.Token)
			if err != nil {
				if errors.Is(err, models.ErrUnauthorized) {
					pkghttp.WriteUnauthorized(w, "invalid or expired session")
					return
				}
				pkghttp.WriteInternalError(w, "failed to validate session")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDContextKey, userID)
			ctx = context.WithValue(ctx, CredentialContextKey, cred)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin restricts the route to accounts with the admin role. Must run
// after SessionMiddleware.
func RequireAdmin(users UserLoader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				pkghttp.WriteUnauthorized(w, "authentication required")
				return
			}

			user, err := users.GetByID(r.Context(), userID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					pkghttp.WriteUnauthorized(w, "invalid or expired session")
					return
				}
				pkghttp.WriteInternalError(w, "failed to load account")
				return
			}

			if user.Role != "admin" {
				pkghttp.WriteForbidden(w, "admin access required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext extracts the authenticated user ID from context
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDContextKey).(string)
	return userID, ok
}

// CredentialFromContext extracts the request credential from context
func CredentialFromContext(ctx context.Context) (Credential, bool) {
	cred, ok := ctx.Value(CredentialContextKey).(Credential)
	return cred, ok
}
