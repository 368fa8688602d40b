// Package jwt manages access-token issuance and verification with HS256
// signing and strict zero-skew validation semantics suitable for low-latency
// authentication paths. Signing material and parser options are computed once
// at construction, never per call.
package jwt
