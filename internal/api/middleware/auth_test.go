package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/classifier-api/internal/api/shared"
	"github.com/phrazzld/classifier-api/internal/service/auth"
)

// stubVerifier scripts key verification outcomes per raw key.
type stubVerifier struct {
	keys map[string]auth.Role
	err  error
}

func (v *stubVerifier) Verify(rawKey string) (auth.Role, string, error) {
	if v.err != nil {
		return "", "", v.err
	}
	role, ok := v.keys[rawKey]
	if !ok {
		return "", "", auth.ErrInvalidAPIKey
	}
	return role, auth.OwnerHash(rawKey), nil
}

func identityEcho(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerHash, ok := shared.GetOwnerHash(r.Context())
		require.True(t, ok)
		w.Header().Set("X-Test-Owner", ownerHash)
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	verifier := &stubVerifier{keys: map[string]auth.Role{
		"client-key": auth.RoleClient,
		"admin-key":  auth.RoleAdmin,
	}}

	t.Run("valid key passes identity through", func(t *testing.T) {
		t.Parallel()

		m := NewAuthMiddleware(verifier)
		handler := m.Authenticate(identityEcho(t))

		req := httptest.NewRequest("GET", "/api/classify/status/x", nil)
		req.Header.Set(APIKeyHeader, "client-key")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, auth.OwnerHash("client-key"), rec.Header().Get("X-Test-Owner"))
	})

	t.Run("missing key is rejected", func(t *testing.T) {
		t.Parallel()

		m := NewAuthMiddleware(verifier)
		handler := m.Authenticate(identityEcho(t))

		req := httptest.NewRequest("GET", "/api/classify/status/x", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown key is rejected", func(t *testing.T) {
		t.Parallel()

		m := NewAuthMiddleware(verifier)
		handler := m.Authenticate(identityEcho(t))

		req := httptest.NewRequest("GET", "/api/classify/status/x", nil)
		req.Header.Set(APIKeyHeader, "wrong-key")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("verifier failure maps to 500", func(t *testing.T) {
		t.Parallel()

		m := NewAuthMiddleware(&stubVerifier{err: assert.AnError})
		handler := m.Authenticate(identityEcho(t))

		req := httptest.NewRequest("GET", "/api/classify/status/x", nil)
		req.Header.Set(APIKeyHeader, "client-key")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestRequireAdmin(t *testing.T) {
	t.Parallel()

	verifier := &stubVerifier{keys: map[string]auth.Role{
		"client-key": auth.RoleClient,
		"admin-key":  auth.RoleAdmin,
	}}

	newHandler := func(t *testing.T) http.Handler {
		m := NewAuthMiddleware(verifier)
		return m.Authenticate(m.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})))
	}

	t.Run("admin key allowed", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest("POST", "/api/admin/sync-tags", nil)
		req.Header.Set(APIKeyHeader, "admin-key")
		rec := httptest.NewRecorder()
		newHandler(t).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("client key forbidden", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest("POST", "/api/admin/sync-tags", nil)
		req.Header.Set(APIKeyHeader, "client-key")
		rec := httptest.NewRecorder()
		newHandler(t).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
