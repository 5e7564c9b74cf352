// Package userstore provides a Redis-backed credential store for
// authentication hot paths.
//
// # Key layout
//
// Each user occupies a hash (profile and password hash), a set of live
// refresh tokens, and a string key per identifier for login lookup. A
// reverse index keyed by token digest maps a presented refresh token back
// to its owner without scanning.
//
// # Rotation protocol
//
// Refresh rotation is a single Lua compare-and-swap: the presented token is
// removed and the replacement inserted in one script, so N concurrent
// rotations of the same token admit exactly one winner.
//
// # What this package must NOT do
//
//   - Interpret token contents. Tokens are opaque strings here; the engine
//     owns parsing and expiry decisions.
//   - Perform application-level authorization decisions.
package userstore
