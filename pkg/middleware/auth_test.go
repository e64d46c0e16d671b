package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/platinummonkey/crmgate/pkg/fixtures"
	"github.com/platinummonkey/crmgate/pkg/identity"
	"github.com/platinummonkey/crmgate/pkg/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestResolver(t *testing.T) (*identity.Resolver, *identity.TokenService, *fixtures.Dataset) {
	t.Helper()
	tokens, err := identity.NewTokenService(identity.TokenConfig{Secret: []byte(testSecret)})
	require.NoError(t, err)
	ds := fixtures.Speccon()
	return identity.NewResolver(tokens, ds, nil), tokens, ds
}

func bearerFor(t *testing.T, tokens *identity.TokenService, ds *fixtures.Dataset, email string) string {
	t.Helper()
	u, ok := ds.UserByEmail(email)
	require.True(t, ok, email)
	token, _, err := tokens.IssueAccessToken(u.ID, u.Email)
	require.NoError(t, err)
	return "Bearer " + token
}

type erroringResolver struct{ err error }

func (r erroringResolver) Resolve(ctx context.Context, bearer string) (identity.Identity, error) {
	return identity.Identity{}, r.err
}

func TestAuthMiddleware_Handler(t *testing.T) {
	resolver, tokens, ds := newTestResolver(t)

	var seen identity.Identity
	var called bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		seen, _ = identity.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	t.Run("valid token resolves identity", func(t *testing.T) {
		called = false
		req := httptest.NewRequest(http.MethodGet, "/api/User/GetCurrentUser", nil)
		req.Header.Set("Authorization", bearerFor(t, tokens, ds, "mike@speccon.co.za"))
		w := httptest.NewRecorder()

		NewAuthMiddleware(resolver, false).Handler(next).ServeHTTP(w, req)

		require.True(t, called)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "mike@speccon.co.za", seen.Email)
		assert.Equal(t, rbac.RoleManager, seen.Role)
		require.NotNil(t, seen.TenantID)
		assert.Equal(t, int64(1), *seen.TenantID)
	})

	t.Run("missing header rejected when required", func(t *testing.T) {
		called = false
		w := httptest.NewRecorder()

		NewAuthMiddleware(resolver, false).Handler(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), `"isError":true`)
	})

	t.Run("missing header allowed when optional", func(t *testing.T) {
		called = false
		seen = identity.Identity{}
		w := httptest.NewRecorder()

		NewAuthMiddleware(resolver, true).Handler(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.True(t, called)
		assert.Zero(t, seen.UserID)
	})

	t.Run("malformed header rejected even when optional", func(t *testing.T) {
		called = false
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic abc")
		w := httptest.NewRecorder()

		NewAuthMiddleware(resolver, true).Handler(next).ServeHTTP(w, req)

		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("tampered token rejected", func(t *testing.T) {
		called = false
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", bearerFor(t, tokens, ds, "hein@speccon.co.za")+"x")
		w := httptest.NewRecorder()

		NewAuthMiddleware(resolver, false).Handler(next).ServeHTTP(w, req)

		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.True(t, strings.Contains(w.Body.String(), "invalid or expired token"))
	})

	t.Run("store failure is internal", func(t *testing.T) {
		called = false
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer anything")
		w := httptest.NewRecorder()

		NewAuthMiddleware(erroringResolver{err: errors.New("db down")}, false).Handler(next).ServeHTTP(w, req)

		assert.False(t, called)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "db down")
	})
}

func TestRequireRole(t *testing.T) {
	ds := fixtures.Speccon()
	handler := RequireRole(rbac.RoleAdmin, rbac.RoleSystemAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		email  string
		status int
	}{
		{"hein@speccon.co.za", http.StatusOK},
		{"root@crmgate.local", http.StatusOK},
		{"mike@speccon.co.za", http.StatusForbidden},
		{"anna@speccon.co.za", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/User/Create", nil)
			req = req.WithContext(identity.WithIdentity(req.Context(), ds.Identity(tt.email)))
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
		})
	}

	t.Run("anonymous", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/User/Create", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
