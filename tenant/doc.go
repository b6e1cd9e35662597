// Package tenant resolves the active tenant and role for an identity from its
// memberships.
//
// Resolution is an ordered rule list ([Rules]) evaluated by [Resolve]; the first rule
// that matches wins. The function is a pure projection of its input. Anything it
// needs from storage (the admin tenant row, tenant slugs) is fetched by the caller
// beforehand.
//
// # What this package must NOT do
//
//   - Perform I/O or mutate the input memberships.
//   - Grant permissions. It only selects a (tenant, role) pair.
package tenant
