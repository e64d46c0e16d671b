package middleware

import (
	"context"
	"net/http"

	"github.com/platinummonkey/crmgate/pkg/apperror"
	"github.com/platinummonkey/crmgate/pkg/httputil"
	"github.com/platinummonkey/crmgate/pkg/identity"
	"github.com/platinummonkey/crmgate/pkg/observability"
	"github.com/platinummonkey/crmgate/pkg/rbac"
)

// IdentityResolver turns a bearer token into the caller's identity
type IdentityResolver interface {
	Resolve(ctx context.Context, bearer string) (identity.Identity, error)
}

// AuthMiddleware provides authentication middleware
type AuthMiddleware struct {
	resolver IdentityResolver
	optional bool // If true, allow requests without auth
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(resolver IdentityResolver, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		resolver: resolver,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with authentication. The resolved identity
// is stored in the request context.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := httputil.BearerToken(r)
		if token == "" {
			if m.optional && r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteAppError(w, r, apperror.Authentication("missing or malformed authorization header"))
			return
		}

		id, err := m.resolver.Resolve(r.Context(), token)
		if err != nil {
			if apperror.IsAuthentication(err) {
				observability.FromContext(r.Context()).WithError(err).Debug("authentication failed")
				err = apperror.Authentication("invalid or expired token")
			}
			httputil.WriteAppError(w, r, err)
			return
		}

		ctx := identity.WithIdentity(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireIdentity returns the caller's identity or an Authentication error
func RequireIdentity(r *http.Request) (identity.Identity, error) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		return identity.Identity{}, apperror.Authentication("authentication required")
	}
	return id, nil
}

// RequireRole creates middleware that admits only the given roles
func RequireRole(roles ...rbac.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := RequireIdentity(r)
			if err != nil {
				httputil.WriteAppError(w, r, err)
				return
			}

			for _, role := range roles {
				if id.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			httputil.WriteAppError(w, r, apperror.PermissionDenied("role %s may not perform this operation", id.Role))
		})
	}
}
