// Package middleware exposes HTTP middleware adapters for access-token
// enforcement built on top of authcore.Engine validation.
//
// # Guards
//
//   - [Guard] — authenticates via the access cookie or bearer header.
//   - [RequireRoles] — role-bit authorization layered inside Guard.
//
// Each guard reads the token, calls Engine.Validate, and injects the
// verified identity into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself. All decisions are delegated to
// Engine.Validate.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access the user store (Engine handles I/O).
//   - Make authorization decisions beyond role-bit membership.
package middleware
