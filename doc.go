// Package tokenforge provides a token lifecycle engine with signed JWT access
// tokens, rotating opaque refresh tokens, a size-bounded in-process cache, and
// a revocation blacklist layered on that cache.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// tokenforge is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (TokenPair, Principal, MetricsSnapshot, etc.). Token signing
// lives in the jwt sub-package, refresh persistence behind the refresh
// package's Repository interface, and entry storage in the cache sub-package.
//
// # What this package must NOT do
//
//   - Expose storage clients, cache internals, or encoding details in its
//     public API.
//   - Perform I/O during construction: Build wires components and starts the
//     cache sweeper; nothing touches the network until an Engine method runs.
//   - Import any sub-package that re-imports tokenforge (no import cycles).
//
// # Performance contract
//
// Validate is the hot path. A cached result costs one cache lookup and one
// decode; a miss adds a blacklist probe and a full signature verification.
// Issue, Refresh, and Logout are allowed one repository round-trip per call.
// No Engine method blocks on the audit pipeline.
package tokenforge
