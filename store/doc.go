// Package store defines the persistent records and repository interfaces consumed by
// the authentication core.
//
// Backends live in sub-packages:
//
//   - memstore: in-process reference implementation used by tests and demo tooling.
//   - redisstore: go-redis backend for refresh tokens, devices and role permissions.
//   - pgstore: PostgreSQL backend over database/sql and pgx.
//
// # Architecture boundaries
//
// This package owns the record shapes and the contracts backends must honour. It does
// NOT sign tokens, resolve tenants or decide whether a login succeeds.
//
// # What this package must NOT do
//
//   - Import authcore or any component package (no upward imports).
//   - Persist raw refresh token values. Only [RefreshToken.Hash] is stored.
package store
