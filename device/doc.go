// Package device derives stable device identifiers from client signals and maintains
// per-user device rows.
//
// A fingerprint is built from client-supplied headers and, as a last resort, the
// client IP. Both are spoofable, so a device id is a UX and analytics signal (device
// naming, "new device" notices, revocation scope). It is never an authentication factor.
//
// # What this package must NOT do
//
//   - Reject a login or refresh because a fingerprint changed.
//   - Deactivate a device that still holds a usable refresh token.
package device
