// docs.go

// Package gourdianguard issues and verifies JWT access/refresh token pairs for
// several independent authentication domains ("guards") and optionally tracks
// every login as a session, so tokens can be revoked before they expire.
//
// # Overview
//
// The package provides:
//   - Signing and verification of access and refresh tokens (HS, RS and ES families)
//   - Per-guard identity field, session capacity and token lifetimes
//   - Session tracking with capacity policies, logout and logout-everywhere
//   - Access token refresh that rebinds the session to the new token
//   - Interchangeable session stores: Redis, in-memory and any GORM database
//   - A stable error taxonomy with HTTP status codes
//   - YAML configuration with in-place secret rotation
//   - Optional Prometheus counters and zerolog logging
//
// HTTP wiring (token lookup, middleware, cookie session slots) lives in the
// httpauth subpackage.
//
// # Guards
//
// A guard is a named authentication domain. Tokens carry the name of the guard
// they were issued for and never verify for another guard. Each guard names the
// field inside the caller's extension data that identifies the principal:
//
//	config.Guards["admin"] = gourdianguard.GuardConfig{
//	    IdentityField: "admin_id",
//	    MaxSessions:   gourdianguard.SingleSession,
//	}
//
// ## Session Capacity
//   - Unlimited (-1): every login adds a session
//   - SingleSession (0): a login replaces every other session of the identity
//   - N > 0: at most N sessions per client type; the oldest are evicted
//
// # Usage Example
//
//	config := gourdianguard.DefaultConfig(accessSecret, refreshSecret)
//
//	store, err := gourdianguard.NewRedisSessionStoreFromConfig(config.Redis)
//	if err != nil {
//	    log.Fatal("Failed to connect to Redis:", err)
//	}
//	defer store.Close()
//
//	service, err := gourdianguard.NewService(config, store,
//	    gourdianguard.WithLogger(logger))
//	if err != nil {
//	    log.Fatal("Failed to create service:", err)
//	}
//
//	pair, err := service.Issue(ctx, "user", map[string]any{"id": 42}, gourdianguard.IssueOptions{
//	    ClientType: "mobile",
//	})
//
//	claims, err := service.Verify(ctx, "user", pair.AccessToken, gourdianguard.AccessToken)
//
//	result, err := service.Refresh(ctx, "user", pair.RefreshToken, 0)
//
//	err = service.Revoke(ctx, "user", result.AccessToken, false)
//
// # Errors
//
// Every error returned by a Service is an *Error whose code matches one of the
// exported sentinels (ErrExpired, ErrInvalidSignature, ...). Use errors.Is to
// classify and HTTPStatus to pick a response status. A revoked, evicted or swept
// token fails exactly like a lapsed one, with ErrExpired.
//
// # Token Structure
//
// All tokens carry:
//   - jti: unique token identifier (UUID)
//   - iss: configured issuer
//   - iat, exp: issue and expiry time, whole seconds
//   - extend: the caller's extension data, including the identity field
//   - guard: the guard the token belongs to
//   - typ: "access" or "refresh"
//
// Verification allows 60 seconds of clock skew on exp, nbf and iat.
//
// # Key Management
//   - Symmetric algorithms use one secret per token kind, at least 32 bytes
//   - Asymmetric algorithms load PEM key pairs per token kind
//   - Private key files must not be readable by group or others (0600)
//   - RotateSecrets and the gourdianguard-rotate command replace both secrets
//
// # Session Stores
//
// RedisSessionStore keeps one binary-encoded session set per identity under
// "<prefix>token_<guard>:<identity>" with a TTL following the longest-lived
// session and updates it with WATCH/MULTI. GormSessionStore keeps a row per
// identity with an optimistic version column. MemorySessionStore serves tests
// and single-process deployments and sweeps itself in the background.
package gourdianguard
