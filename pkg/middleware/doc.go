// Package middleware provides HTTP middleware for authentication and rate limiting.
//
// # Middleware Components
//
// AuthMiddleware: Bearer token authentication
//
//	auth := middleware.NewAuthMiddleware(resolver, false)
//	router.Use(auth.Handler)
//	// Resolves the token through identity.Resolver and stores the
//	// identity.Identity in the request context
//
// RequireRole: coarse role gate for administrative routes
//
//	admin := middleware.RequireRole(rbac.RoleAdmin, rbac.RoleSystemAdmin)
//
// RateLimitMiddleware: token bucket (in memory) or fixed window (Redis)
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, cfg, "")
//	router.Use(middleware.NewRateLimitMiddleware(limiter, "api", metrics).Handler)
//
// Authenticated callers are limited per user, anonymous callers per client
// IP. Limiter errors fail open.
//
// # Related Packages
//
//   - pkg/identity: Token validation and identity resolution
//   - pkg/authz: Per-operation authorization
package middleware
