// Package middleware adapts the authcore Engine to net/http.
//
// # Guards
//
//   - [Guard] verifies the bearer access token and stores its claims in the
//     request context.
//   - [RequirePermission] rejects requests whose role lacks a capability.
//   - [ClientIP] records the caller's address for audit events and device
//     fingerprints.
//   - [RateLimit] throttles each client IP with an in-process token bucket.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; every decision is delegated to
// Engine.VerifyAccess or Engine.HasPermission.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Access any store.
//   - Put error causes into response bodies.
package middleware
