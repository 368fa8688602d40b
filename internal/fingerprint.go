package internal

import (
	"crypto/sha256"
	"encoding/base64"
)

// fingerprintRawSize truncates the digest to 16 bytes: plenty of collision
// resistance for cache keying while keeping keys short.
const fingerprintRawSize = 16

// Fingerprint derives a stable cache identifier for a raw token: the first
// fingerprintRawSize bytes of its SHA-256 digest, base64url-encoded. A
// fingerprint identifies a token without being usable as one.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:fingerprintRawSize])
}
