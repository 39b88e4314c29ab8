// Package middleware provides HTTP middleware for authentication, authorization, and rate limiting.
//
// # Overview
//
// This package implements request processing middleware including API key
// authentication, permission gating, and rate limiting (per-identity and
// distributed).
//
// # Middleware Components
//
// AuthMiddleware: API key authentication
//
//	auth := middleware.NewAuthMiddleware(apikeys, false, logger)
//	router.Use(auth.Handler)
//	// Extracts the Bearer API key, verifies it, installs the caller identity
//
// RequireAppPermission: application permission gate
//
//	router.Use(middleware.RequireAppPermission(engine, permission.AppPermissionManageUsers))
//
// RateLimitMiddleware: In-memory rate limiting
//
//	limiter := middleware.NewRateLimitMiddleware()
//	router.Use(limiter.Handler)
//
// DistributedRateLimitMiddleware: Redis-backed rate limiting
//
//	limiter := middleware.NewDistributedRateLimitMiddleware(redisClient)
//	router.Use(limiter.Handler)
//
// # Rate Limiting
//
// Default (Anonymous): 100 req/min, 10 burst
// Per-User: 1000 req/min, 50 burst
// Per-Service: 5000 req/min, 100 burst
//
// Authenticated callers are keyed by user UUID; the internal processing
// identity uses the service limiter; anonymous callers are keyed by client IP.
//
// # Related Packages
//
//   - pkg/apikey: API key verification
//   - pkg/authz: Permission checking
//   - pkg/identity: Caller identity on the request context
package middleware
