// Package middleware exposes net/http adapters built on top of
// tokenforge.Engine validation.
//
// # Guards
//
//   - [Guard] — bearer-token validation, principal injected into context.
//   - [RequireRole] — Guard plus a role check on the validated principal.
//
// Each guard reads the Authorization header, calls Engine.Validate, and
// injects the authenticated principal into the request context, retrievable
// with [PrincipalFromContext].
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself — all decisions are delegated to
// Engine.Validate.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Touch the cache, blacklist, or refresh token store (Engine handles state).
//   - Make authorization decisions beyond pass/reject from the principal's
//     role claim.
package middleware
