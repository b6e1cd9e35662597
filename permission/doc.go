// Package permission maps roles to capability triples and answers authorization
// queries.
//
// # Capabilities
//
// A [Capability] is (resource, action, scope). Resource and action accept the `*`
// wildcard. Scopes are ordered own < tenant < all, and a wider scope subsumes the
// narrower ones.
//
// # Resolution
//
// [Resolver] prefers the backing [store.RolePermissionStore]. When the store fails the
// resolver answers from a frozen static [Table] instead, counts the fallback and logs
// it at warn level, so degraded storage stays visible while logins keep working.
//
// # What this package must NOT do
//
//   - Decide tenant membership or token validity.
//   - Import authcore or jwt.
package permission
