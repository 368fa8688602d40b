package tokenforge

import (
	"time"

	"github.com/markjoyeuxcom/tokenforge/cache"
)

const (
	blacklistKeyPrefix = "blacklist:"
	validatedKeyPrefix = "validated:"
)

func blacklistKey(fingerprint string) string {
	return blacklistKeyPrefix + fingerprint
}

func validatedKey(fingerprint string) string {
	return validatedKeyPrefix + fingerprint
}

// Blacklist is the revocation list for access tokens, a namespaced view over
// the shared cache. Entries are keyed by token fingerprint and lapse on
// their own once the revoked token would have expired anyway; nothing is
// ever explicitly un-blacklisted.
type Blacklist struct {
	store *cache.Cache
}

// NewBlacklist wraps the given cache.
func NewBlacklist(store *cache.Cache) *Blacklist {
	return &Blacklist{store: store}
}

// Revoke marks fingerprint as revoked for ttl. It also purges any cached
// validation result for the same fingerprint; purging after (not before)
// setting the marker means a validation racing this call cannot re-cache a
// positive result that outlives the revocation. A non-positive ttl is a
// no-op: the token is already past its expiry.
func (b *Blacklist) Revoke(fingerprint string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	if err := b.store.Set(blacklistKey(fingerprint), true, cache.KindDirect, ttl); err != nil {
		return err
	}
	b.store.Remove(validatedKey(fingerprint))

	return nil
}

// IsRevoked reports whether fingerprint is on the list. Errors are surfaced,
// never swallowed: a caller that cannot prove "not revoked" must treat the
// token as revoked.
func (b *Blacklist) IsRevoked(fingerprint string) (bool, error) {
	if b.store.Closed() {
		return false, cache.ErrClosed
	}
	return b.store.Exists(blacklistKey(fingerprint)), nil
}
