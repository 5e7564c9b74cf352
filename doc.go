// Package authcore implements the authentication and session lifecycle for a
// course marketplace: credential verification, JWT access tokens, rotating
// single-use refresh tokens with reuse detection, and identity lookup.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the [UserStore] backend contract, and value types (LoginResult, AuthResult,
// MetricsSnapshot). Backends live in their own packages (userstore for Redis,
// pgstore for PostgreSQL); the HTTP shell lives in httpapi and middleware.
//
// # What this package must NOT do
//
//   - Expose backend clients or key layouts in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//   - Import any sub-package that re-imports authcore (no import cycles).
//
// # Performance contract
//
// Validate is the hot path. It verifies the access token without any store
// round-trip. Login, Refresh, and Logout are allowed one store round-trip
// per call plus rate-limiter traffic when limiting is enabled.
package authcore
