// Package httpapi exposes the authentication engine over HTTP: login,
// register, refresh, logout, and identity endpoints plus the cookie
// lifecycle the browser contract requires.
//
// # Cookie contract
//
// Login and refresh set two cookies: the access cookie (short-lived) and the
// refresh cookie (long-lived, rotated on every refresh). Both are httpOnly.
// Logout and any refresh failure clear them.
//
// # Architecture boundaries
//
// Handlers translate HTTP and JSON into engine calls and engine sentinels
// into status codes. They hold no authentication logic of their own.
//
// # What this package must NOT do
//
//   - Parse or mint tokens (the engine owns that).
//   - Touch the user store directly.
package httpapi
