// Package refresh implements opaque rotating refresh tokens: the token
// entity, the lifecycle state machine, and its storage backends.
//
// # Token format
//
// Opaque base64url values backed by 64 bytes of crypto randomness. Values
// carry no structure; possession is the whole credential. The redis backend
// never stores raw values, keys and records hold digests only.
//
// # Rotation and replay
//
// Rotate atomically revokes the presented token and persists its successor.
// Every backend implements the revoke-if-active step as an atomic conditional
// update, so exactly one of any number of concurrent rotations of the same
// value wins. A presented value that is already revoked is a replay and is
// reported as reuse.
//
// # What this package must NOT do
//
//   - Import the root package, jwt, or cache.
//   - Issue access tokens or touch validation caching.
//   - Swallow storage errors; infrastructure failures wrap ErrStoreUnavailable.
package refresh
