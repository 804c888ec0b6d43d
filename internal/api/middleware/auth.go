package middleware

import (
	"errors"
	"net/http"

	"github.com/phrazzld/classifier-api/internal/api/shared"
	"github.com/phrazzld/classifier-api/internal/service/auth"
)

// APIKeyHeader is the request header carrying the API key.
const APIKeyHeader = "X-API-Key"

// KeyVerifier verifies a raw API key and reports its role and owner hash.
type KeyVerifier interface {
	Verify(rawKey string) (auth.Role, string, error)
}

// AuthMiddleware provides API key authentication for routes.
type AuthMiddleware struct {
	keys KeyVerifier
}

// NewAuthMiddleware creates a new AuthMiddleware with the given dependencies.
func NewAuthMiddleware(keys KeyVerifier) *AuthMiddleware {
	return &AuthMiddleware{
		keys: keys,
	}
}

// Authenticate validates the X-API-Key header and adds the caller's
// owner hash and role to the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := r.Header.Get(APIKeyHeader)
		if rawKey == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "API key required")
			return
		}

		role, ownerHash, err := m.keys.Verify(rawKey)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidAPIKey) {
				shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key", err,
					shared.WithElevatedLogLevel())
				return
			}
			shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Authentication error", err)
			return
		}

		ctx := shared.SetIdentity(r.Context(), ownerHash, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin restricts a route to callers whose key carries the admin
// role. It must run after Authenticate.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, ok := shared.GetRole(r.Context())
		if !ok || role != auth.RoleAdmin {
			shared.RespondWithError(w, r, http.StatusForbidden, "FORBIDDEN", "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetOwnerHash extracts the authenticated owner hash from the request.
// Returns the hash and a boolean indicating if it was found.
func GetOwnerHash(r *http.Request) (string, bool) {
	return shared.GetOwnerHash(r.Context())
}
