// Package pgstore is the PostgreSQL credential backend. Each user row
// carries its live refresh tokens as a text[] column, and rotation is a
// single conditional UPDATE: array membership is the compare, array_replace
// the swap.
//
// # Schema
//
// Migrations are embedded and applied with [Migrate]. The refresh_tokens
// column has a GIN index so token-to-owner lookup stays cheap.
//
// # What this package must NOT do
//
//   - Hash passwords or parse tokens (the engine owns both).
//   - Hold transactions open across calls.
package pgstore
