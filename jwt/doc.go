// Package jwt issues and verifies the access and refresh tokens of the authentication
// core.
//
// Both token kinds share one claim core ([Claims]) and differ only in the `typ`
// discriminator, TTL and refresh family id. Verification pins the configured algorithm,
// issuer and audience, and requires an exact type match, so a refresh token can never
// stand in for an access token or the reverse.
//
// The identity context carried under `ctx` is a tagged union ([StaffContext] or
// [ClientContext]) encoded with a `kind` field.
//
// # What this package must NOT do
//
//   - Persist tokens. Callers store [HashToken] output only.
//   - Use [DecodeUnverified] output for authorization.
//   - Import authcore or store (no upward imports).
package jwt
