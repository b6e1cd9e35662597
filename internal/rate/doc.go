// Package rate provides Redis-backed fixed-window attempt counters.
//
// # Window semantics
//
// INCR on every recorded failure, EXPIRE on the first hit of a window. A key
// is limited once its counter reaches MaxAttempts and stays limited until the
// window expires or Reset is called. Keys are "<prefix>:<subject>".
//
// # What this package must NOT do
//
//   - Decide what counts as a failure (callers record failures explicitly).
//   - Be imported outside the authcore module.
package rate
