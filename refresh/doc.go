// Package refresh implements the single-use refresh token state machine.
//
// # States
//
// Each (user, device) lineage moves Issued -> Used on rotation. Expired and
// Reused-flagged are terminal. Presenting a token that is already Used is the reuse
// signal: every unused token for that (user, device) pair is revoked, a high-severity
// event is reported through [Options.OnReuse], and nothing is issued.
//
// # Atomicity
//
// Rotation signs the successor first and then asks the store to mark the predecessor
// used and insert the successor in one conditional step. A lost race surfaces as
// [store.ErrTokenAlreadyUsed] and is handled as reuse. A failed insert leaves the
// predecessor usable.
//
// # What this package must NOT do
//
//   - Persist raw token values. Only [jwt.HashToken] output is stored.
//   - Revoke tokens of devices other than the one that triggered reuse detection.
//   - Decide account or tenant status. Rotation callers supply that through [RebuildFunc].
package refresh
