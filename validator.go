package tokenforge

import (
	"errors"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/markjoyeuxcom/tokenforge/cache"
	"github.com/markjoyeuxcom/tokenforge/internal"
	"github.com/markjoyeuxcom/tokenforge/jwt"
)

// DefaultValidationResultTTL caps how long a positive validation result may
// be served from cache before the token is re-verified.
const DefaultValidationResultTTL = 5 * time.Minute

// ValidatorConfig wires a Validator. Metrics may be nil.
type ValidatorConfig struct {
	Manager   *jwt.Manager
	Cache     *cache.Cache
	Blacklist *Blacklist
	ResultTTL time.Duration
	Metrics   *Metrics
}

// Validator verifies access tokens. Full cryptographic verification runs at
// most once per token per ResultTTL window: positive results are cached by
// token fingerprint, and the blacklist is consulted before any cached or
// fresh verdict is trusted.
type Validator struct {
	manager   *jwt.Manager
	store     *cache.Cache
	blacklist *Blacklist
	resultTTL time.Duration
	metrics   *Metrics
	now       func() time.Time
}

// NewValidator builds a Validator. ResultTTL of zero selects the default;
// the cache and blacklist are required, a nil Metrics disables counters.
func NewValidator(cfg ValidatorConfig) (*Validator, error) {
	if cfg.Manager == nil {
		return nil, ErrNilManager
	}
	if cfg.Cache == nil {
		return nil, ErrNilCache
	}
	if cfg.Blacklist == nil {
		return nil, ErrNilBlacklist
	}
	if cfg.ResultTTL < 0 {
		return nil, ErrInvalidResultTTL
	}
	if cfg.ResultTTL == 0 {
		cfg.ResultTTL = DefaultValidationResultTTL
	}

	return &Validator{
		manager:   cfg.Manager,
		store:     cfg.Cache,
		blacklist: cfg.Blacklist,
		resultTTL: cfg.ResultTTL,
		metrics:   cfg.Metrics,
		now:       cfg.Manager.Now,
	}, nil
}

// Validate checks token and returns the authenticated principal. Rejections
// are always a *ValidationError.
//
// The pipeline short-circuits in order: cached result, blacklist, full
// verification. Result-cache faults fall through to re-verification (a
// retry is always safe); blacklist faults deny the token, because a token
// we cannot prove not-revoked must be treated as revoked.
func (v *Validator) Validate(token string) (*Principal, error) {
	fingerprint := internal.Fingerprint(token)

	if principal, ok := v.cachedResult(fingerprint); ok {
		v.metrics.Inc(MetricValidateCacheHit)
		return principal, nil
	}
	v.metrics.Inc(MetricValidateCacheMiss)

	revoked, err := v.blacklist.IsRevoked(fingerprint)
	if err != nil {
		return nil, &ValidationError{Kind: KindBlacklisted, Err: err}
	}
	if revoked {
		return nil, &ValidationError{Kind: KindBlacklisted}
	}

	claims, err := v.manager.ParseAccess(token)
	if err != nil {
		return nil, classifyParseError(err)
	}

	principal := principalFromClaims(claims)
	v.cacheResult(fingerprint, principal)

	return principal, nil
}

// IsBlacklisted reports whether token is revoked. When the check itself
// fails the answer is true.
func (v *Validator) IsBlacklisted(token string) bool {
	revoked, err := v.blacklist.IsRevoked(internal.Fingerprint(token))
	if err != nil {
		return true
	}
	return revoked
}

// Blacklist revokes token for ttl, typically its remaining lifetime. A
// non-positive ttl is a no-op.
func (v *Validator) Blacklist(token string, ttl time.Duration) error {
	return v.blacklist.Revoke(internal.Fingerprint(token), ttl)
}

func (v *Validator) cachedResult(fingerprint string) (*Principal, bool) {
	raw, ok := v.store.Get(validatedKey(fingerprint))
	if !ok {
		return nil, false
	}
	payload, ok := raw.([]byte)
	if !ok {
		return nil, false
	}

	principal := new(Principal)
	if err := principal.UnmarshalBinary(payload); err != nil {
		v.store.Remove(validatedKey(fingerprint))
		return nil, false
	}

	// The cache expires entries on the wall clock; the validator may run on
	// an injected one. Re-check expiry on our clock and drop stale hits.
	if !v.now().Before(principal.ExpiresAt) {
		v.store.Remove(validatedKey(fingerprint))
		return nil, false
	}

	return principal, true
}

func (v *Validator) cacheResult(fingerprint string, principal *Principal) {
	ttl := v.resultTTL
	if remaining := principal.ExpiresAt.Sub(v.now()); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return
	}

	// Cache faults are swallowed: the worst case is re-verifying next time.
	_ = v.store.Set(validatedKey(fingerprint), principal, cache.KindSerialized, ttl)
}

func classifyParseError(err error) *ValidationError {
	switch {
	case errors.Is(err, gojwt.ErrTokenExpired):
		return &ValidationError{Kind: KindExpired, Err: err}
	case errors.Is(err, gojwt.ErrTokenSignatureInvalid):
		return &ValidationError{Kind: KindSignatureInvalid, Err: err}
	case errors.Is(err, gojwt.ErrTokenMalformed):
		return &ValidationError{Kind: KindMalformed, Err: err}
	default:
		return &ValidationError{Kind: KindUnexpected, Err: err}
	}
}
