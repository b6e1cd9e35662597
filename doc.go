// Package authcore is the authentication core of a multi-tenant platform: it
// issues and verifies Ed25519-signed access tokens, rotates opaque refresh
// tokens with reuse detection, tracks devices, resolves the active tenant and
// the role's permissions, and gates elevated logins behind TOTP.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the error taxonomy ([Code], [Error]) and value types such as [AuthResult].
// Orchestration of the login, refresh, logout and MFA verification flows lives
// in internal/flows and talks to the component packages (jwt, device,
// permission, tenant, refresh, mfa) through function-typed dependencies.
// Durable state lives behind the interfaces in package store.
//
// # What this package must NOT do
//
//   - Return a cause chain or store error text to callers through [Respond].
//   - Issue tokens for an identity that is inactive, has no active tenant, or
//     owes an MFA verification.
//   - Reveal whether an email exists; both unknown email and wrong password
//     produce [ErrInvalidCredentials] after a password hash computation.
//   - Import any sub-package that re-imports authcore (no import cycles).
//
// # Performance contract
//
// VerifyAccess is the hot path and performs no store round-trips. Login and
// Refresh perform a bounded number of store calls; permission lookups are
// cached per role for Config.Permission.CacheTTL.
package authcore
