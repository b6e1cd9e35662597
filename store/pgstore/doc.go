// Package pgstore implements every store interface on PostgreSQL through
// database/sql and the pgx stdlib driver.
//
// Refresh rotation runs in one transaction: a conditional
// "update ... where used = false" whose row count decides the winner, followed
// by the successor insert. A failed insert rolls the update back, so the
// predecessor is never left used without a replacement.
//
// Migrate applies the embedded schema idempotently.
package pgstore
