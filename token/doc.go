// Package token manages access and refresh token issuance and verification
// with independent signing secrets and strict validation semantics suitable
// for low-latency authentication paths.
package token
