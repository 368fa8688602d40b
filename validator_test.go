package tokenforge

import (
	"errors"
	"testing"
	"time"

	"github.com/markjoyeuxcom/tokenforge/cache"
	"github.com/markjoyeuxcom/tokenforge/internal"
	"github.com/markjoyeuxcom/tokenforge/jwt"
)

type validatorHarness struct {
	validator *Validator
	manager   *jwt.Manager
	store     *cache.Cache
	metrics   *Metrics
	clock     *testClock
}

func newValidatorHarness(t *testing.T) *validatorHarness {
	t.Helper()

	clock := newTestClock()
	manager, err := jwt.NewManager(jwt.Config{
		AccessTTL:  DefaultAccessTTL,
		SigningKey: testSigningKey,
		Issuer:     "tokenforge-test",
		Audience:   "api",
		TimeFunc:   clock.Now,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	store, err := cache.New(cache.Config{})
	if err != nil {
		t.Fatalf("cache.New failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	metrics := NewMetrics(MetricsConfig{Enabled: true})
	validator, err := NewValidator(ValidatorConfig{
		Manager:   manager,
		Cache:     store,
		Blacklist: NewBlacklist(store),
		Metrics:   metrics,
	})
	if err != nil {
		t.Fatalf("NewValidator failed: %v", err)
	}

	return &validatorHarness{
		validator: validator,
		manager:   manager,
		store:     store,
		metrics:   metrics,
		clock:     clock,
	}
}

func (h *validatorHarness) signToken(t *testing.T) string {
	t.Helper()
	token, _, err := h.manager.CreateAccess("u1", "alice", "alice@example.com", "member", "", "")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	return token
}

func TestNewValidatorGuards(t *testing.T) {
	h := newValidatorHarness(t)

	if _, err := NewValidator(ValidatorConfig{Cache: h.store, Blacklist: NewBlacklist(h.store)}); !errors.Is(err, ErrNilManager) {
		t.Fatalf("expected ErrNilManager, got %v", err)
	}
	if _, err := NewValidator(ValidatorConfig{Manager: h.manager, Blacklist: NewBlacklist(h.store)}); !errors.Is(err, ErrNilCache) {
		t.Fatalf("expected ErrNilCache, got %v", err)
	}
	if _, err := NewValidator(ValidatorConfig{Manager: h.manager, Cache: h.store}); !errors.Is(err, ErrNilBlacklist) {
		t.Fatalf("expected ErrNilBlacklist, got %v", err)
	}
	if _, err := NewValidator(ValidatorConfig{
		Manager:   h.manager,
		Cache:     h.store,
		Blacklist: NewBlacklist(h.store),
		ResultTTL: -time.Second,
	}); !errors.Is(err, ErrInvalidResultTTL) {
		t.Fatalf("expected ErrInvalidResultTTL, got %v", err)
	}

	v, err := NewValidator(ValidatorConfig{
		Manager:   h.manager,
		Cache:     h.store,
		Blacklist: NewBlacklist(h.store),
	})
	if err != nil {
		t.Fatalf("NewValidator failed: %v", err)
	}
	if v.resultTTL != DefaultValidationResultTTL {
		t.Fatalf("expected default result ttl, got %v", v.resultTTL)
	}
}

func TestValidateClassification(t *testing.T) {
	h := newValidatorHarness(t)

	otherKey, err := jwt.NewManager(jwt.Config{
		AccessTTL:  DefaultAccessTTL,
		SigningKey: []byte("fedcba9876543210fedcba9876543210"),
		Issuer:     "tokenforge-test",
		Audience:   "api",
		TimeFunc:   h.clock.Now,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	otherIssuer, err := jwt.NewManager(jwt.Config{
		AccessTTL:  DefaultAccessTTL,
		SigningKey: testSigningKey,
		Issuer:     "somebody-else",
		Audience:   "api",
		TimeFunc:   h.clock.Now,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	wrongKeyToken, _, err := otherKey.CreateAccess("u1", "alice", "a@example.com", "member", "", "")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	wrongIssuerToken, _, err := otherIssuer.CreateAccess("u1", "alice", "a@example.com", "member", "", "")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}

	tests := []struct {
		name  string
		token string
		want  ValidationKind
	}{
		{name: "malformed", token: "not-a-token", want: KindMalformed},
		{name: "empty", token: "", want: KindMalformed},
		{name: "wrong key", token: wrongKeyToken, want: KindSignatureInvalid},
		{name: "wrong issuer", token: wrongIssuerToken, want: KindUnexpected},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.validator.Validate(tc.token)
			kind, ok := ValidationKindOf(err)
			if !ok {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if kind != tc.want {
				t.Fatalf("expected kind %v, got %v (%v)", tc.want, kind, err)
			}
		})
	}
}

func TestValidateExpiredIsClassified(t *testing.T) {
	h := newValidatorHarness(t)
	token := h.signToken(t)

	h.clock.Advance(DefaultAccessTTL + time.Second)

	_, err := h.validator.Validate(token)
	if kind, ok := ValidationKindOf(err); !ok || kind != KindExpired {
		t.Fatalf("expected KindExpired, got %v", err)
	}
}

func TestValidateCachesResult(t *testing.T) {
	h := newValidatorHarness(t)
	token := h.signToken(t)
	fp := internal.Fingerprint(token)

	if _, err := h.validator.Validate(token); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !h.store.Exists(validatedKey(fp)) {
		t.Fatal("expected validation result to be cached")
	}

	if _, err := h.validator.Validate(token); err != nil {
		t.Fatalf("second Validate failed: %v", err)
	}
	if got := h.metrics.Value(MetricValidateCacheHit); got != 1 {
		t.Fatalf("expected one cache hit, got %d", got)
	}
	if got := h.metrics.Value(MetricValidateCacheMiss); got != 1 {
		t.Fatalf("expected one cache miss, got %d", got)
	}
}

func TestValidateCorruptCachedResultReverifies(t *testing.T) {
	h := newValidatorHarness(t)
	token := h.signToken(t)
	fp := internal.Fingerprint(token)

	if _, err := h.validator.Validate(token); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if err := h.store.Set(validatedKey(fp), []byte("junk"), cache.KindDirect, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	principal, err := h.validator.Validate(token)
	if err != nil {
		t.Fatalf("expected corrupt cache entry to fall back to verification, got %v", err)
	}
	if principal.UserID != "u1" {
		t.Fatalf("unexpected principal: %+v", principal)
	}
}

func TestBlacklistPurgesCachedResult(t *testing.T) {
	h := newValidatorHarness(t)
	token := h.signToken(t)
	fp := internal.Fingerprint(token)

	if _, err := h.validator.Validate(token); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if err := h.validator.Blacklist(token, time.Minute); err != nil {
		t.Fatalf("Blacklist failed: %v", err)
	}

	if h.store.Exists(validatedKey(fp)) {
		t.Fatal("expected cached result to be purged on revocation")
	}
	if !h.store.Exists(blacklistKey(fp)) {
		t.Fatal("expected blacklist marker to be set")
	}

	_, err := h.validator.Validate(token)
	if kind, ok := ValidationKindOf(err); !ok || kind != KindBlacklisted {
		t.Fatalf("expected KindBlacklisted, got %v", err)
	}
	if !h.validator.IsBlacklisted(token) {
		t.Fatal("expected IsBlacklisted true")
	}
}

func TestBlacklistMarkerLapsesWithTTL(t *testing.T) {
	h := newValidatorHarness(t)
	token := h.signToken(t)

	if err := h.validator.Blacklist(token, 30*time.Millisecond); err != nil {
		t.Fatalf("Blacklist failed: %v", err)
	}
	if !h.validator.IsBlacklisted(token) {
		t.Fatal("expected token to be blacklisted")
	}

	time.Sleep(60 * time.Millisecond)

	if h.validator.IsBlacklisted(token) {
		t.Fatal("expected blacklist marker to lapse")
	}
	if _, err := h.validator.Validate(token); err != nil {
		t.Fatalf("expected token to validate after marker lapsed, got %v", err)
	}
}

func TestBlacklistZeroTTLNoOp(t *testing.T) {
	h := newValidatorHarness(t)
	token := h.signToken(t)

	if err := h.validator.Blacklist(token, 0); err != nil {
		t.Fatalf("expected zero ttl to be a no-op, got %v", err)
	}
	if h.validator.IsBlacklisted(token) {
		t.Fatal("expected nothing to be blacklisted")
	}
}

func TestValidatorFailsClosedOnClosedCache(t *testing.T) {
	h := newValidatorHarness(t)
	token := h.signToken(t)

	if err := h.store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	_, err := h.validator.Validate(token)
	if kind, ok := ValidationKindOf(err); !ok || kind != KindBlacklisted {
		t.Fatalf("expected KindBlacklisted, got %v", err)
	}
	if !errors.Is(err, cache.ErrClosed) {
		t.Fatalf("expected wrapped cache.ErrClosed, got %v", err)
	}
	if !h.validator.IsBlacklisted(token) {
		t.Fatal("expected IsBlacklisted to fail closed")
	}
}

func TestCachedResultExpiresOnValidatorClock(t *testing.T) {
	h := newValidatorHarness(t)
	token := h.signToken(t)
	fp := internal.Fingerprint(token)

	if _, err := h.validator.Validate(token); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	// The cache entry's wall-clock TTL has not elapsed, but on the validator's
	// clock the token is now past its expiry.
	h.clock.Advance(DefaultAccessTTL + time.Minute)

	_, err := h.validator.Validate(token)
	if kind, ok := ValidationKindOf(err); !ok || kind != KindExpired {
		t.Fatalf("expected KindExpired, got %v", err)
	}
	if h.store.Exists(validatedKey(fp)) {
		t.Fatal("expected stale cached result to be dropped")
	}
}

func TestResultCacheTTLCappedByTokenLifetime(t *testing.T) {
	manager, err := jwt.NewManager(jwt.Config{
		AccessTTL:  50 * time.Millisecond,
		SigningKey: testSigningKey,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	store, err := cache.New(cache.Config{})
	if err != nil {
		t.Fatalf("cache.New failed: %v", err)
	}
	defer store.Close()

	validator, err := NewValidator(ValidatorConfig{
		Manager:   manager,
		Cache:     store,
		Blacklist: NewBlacklist(store),
	})
	if err != nil {
		t.Fatalf("NewValidator failed: %v", err)
	}

	token, _, err := manager.CreateAccess("u1", "alice", "a@example.com", "member", "", "")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	if _, err := validator.Validate(token); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	fp := internal.Fingerprint(token)
	if !store.Exists(validatedKey(fp)) {
		t.Fatal("expected result to be cached")
	}

	time.Sleep(80 * time.Millisecond)

	// The entry was capped to the token's remaining lifetime, well under the
	// five minute default.
	if store.Exists(validatedKey(fp)) {
		t.Fatal("expected cached result to expire with the token")
	}
}

func TestValidationErrorKinds(t *testing.T) {
	inner := errors.New("boom")
	verr := &ValidationError{Kind: KindSignatureInvalid, Err: inner}

	if !errors.Is(verr, inner) {
		t.Fatal("expected Unwrap to surface the inner error")
	}
	if kind, ok := ValidationKindOf(verr); !ok || kind != KindSignatureInvalid {
		t.Fatalf("expected KindSignatureInvalid, got %v", kind)
	}
	if _, ok := ValidationKindOf(nil); ok {
		t.Fatal("expected no kind for nil error")
	}
	if _, ok := ValidationKindOf(errors.New("plain")); ok {
		t.Fatal("expected no kind for foreign error")
	}

	kinds := map[ValidationKind]string{
		KindExpired:          "expired",
		KindSignatureInvalid: "signature_invalid",
		KindBlacklisted:      "blacklisted",
		KindMalformed:        "malformed",
		KindUnexpected:       "unexpected",
	}
	for kind, want := range kinds {
		if got := kind.String(); got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
}
