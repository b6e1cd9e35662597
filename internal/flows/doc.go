// Package flows contains the orchestration behind every Engine operation.
//
// Each flow function (RunLogin, RunRefresh, RunLogout, RunRevokeAll,
// RunVerifyMFA) accepts a typed dependency struct and returns a result that
// carries a FailureKind instead of a public error code. The root package maps
// failure kinds to error codes, metrics and audit events.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the stores, the token manager, the refresh
// rotation engine, the MFA gate and the tenant resolver. They do NOT own any of
// these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authcore (to avoid import cycles).
//   - Emit audit events or metrics; that is the caller's job.
package flows
