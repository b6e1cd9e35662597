// Package mfa decides whether a login for an elevated identity may receive
// tokens, and verifies the TOTP second factor that unlocks it.
//
// # Flow
//
// A Gate is consulted after credentials are accepted. Identities without the
// elevated global role pass through untouched. An elevated identity without
// MFA enrolled is issued tokens with a setup nudge. An enrolled identity gets
// a Challenge and no tokens until a verified marker exists; the marker is
// consumed by the login that uses it.
//
// # Architecture boundaries
//
// This package owns the gate decision, the verified-marker store and TOTP
// code checking. It does NOT issue tokens, load identities or emit audit
// events; the root engine composes those around Gate.Evaluate.
//
// # What this package must NOT do
//
//   - Fail open when the marker backend is unavailable.
//   - Log TOTP secrets or submitted codes.
//   - Compare codes with non-constant-time equality.
package mfa
