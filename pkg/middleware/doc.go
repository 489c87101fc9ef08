// Package middleware provides HTTP middleware for authentication and rate limiting.
//
// # Authentication
//
// Authenticator extracts the bearer token, verifies it with an
// auth.TokenVerifier and resolves the caller's identity through claims
// resolution. The principal and identity are stored in the request context:
//
//	authn := middleware.NewAuthenticator(verifier, transformer, cfg.Auth.AnonymousMode)
//	api.Use(authn.Handler)
//
// An unknown caller (no active user after a directory resync) gets 401.
//
// # Rate Limiting
//
// RateLimit keys authenticated callers by user id and everyone else by
// client address. LocalLimiter is an in-process token bucket; RedisLimiter
// shares a fixed window across instances and fails open.
//
//	api.Use(middleware.RateLimit(middleware.NewRedisLimiter(client, cfg, "")))
package middleware
