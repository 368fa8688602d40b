package tokenforge

import (
	"context"
	"errors"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/markjoyeuxcom/tokenforge/cache"
	"github.com/markjoyeuxcom/tokenforge/jwt"
	"github.com/markjoyeuxcom/tokenforge/refresh"
)

// Engine is the facade over the token lifecycle: issuing pairs, validating
// access tokens, rotating refresh tokens, and revocation. Build one with
// the Builder; a zero Engine is not usable.
//
// All methods are safe for concurrent use.
type Engine struct {
	config       Config
	cache        *cache.Cache
	blacklist    *Blacklist
	issuer       *Issuer
	validator    *Validator
	store        *refresh.Store
	userProvider UserProvider
	audit        *auditDispatcher
	metrics      *Metrics
	jwtManager   *jwt.Manager
}

// Close drains the audit dispatcher and stops the cache sweeper. After
// Close, validation fails closed: the blacklist can no longer be consulted,
// so every token is treated as revoked.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	if e.audit != nil {
		e.audit.Close()
	}
	if e.cache != nil {
		return e.cache.Close()
	}
	return nil
}

// AuditDropped returns the number of audit events discarded under pressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// CacheStats returns the shared cache's counters and current footprint.
func (e *Engine) CacheStats() cache.Stats {
	if e == nil || e.cache == nil {
		return cache.Stats{}
	}
	return e.cache.Stats()
}

// RefreshTTL returns the configured refresh token lifetime.
func (e *Engine) RefreshTTL() time.Duration {
	if e == nil || e.store == nil {
		return 0
	}
	return e.store.TTL()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Issue mints a token pair for user: a signed access token plus a fresh
// refresh token persisted with the caller's IP and user agent from ctx.
func (e *Engine) Issue(ctx context.Context, user *User) (*TokenPair, error) {
	if e == nil || e.issuer == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if user == nil {
		return nil, ErrNilUser
	}

	access, claims, err := e.issuer.issueAccess(user)
	if err != nil {
		e.metricInc(MetricIssueFailure)
		e.emitAudit(ctx, auditEventTokenIssue, false, user.ID, "", err, func() map[string]string {
			return map[string]string{
				"reason": "sign_failed",
			}
		})
		return nil, err
	}

	token, err := e.store.Create(ctx, user.ID, clientIPFromContext(ctx), userAgentFromContext(ctx))
	if err != nil {
		e.metricInc(MetricIssueFailure)
		e.emitAudit(ctx, auditEventTokenIssue, false, user.ID, claims.ID, err, func() map[string]string {
			return map[string]string{
				"reason": "refresh_create_failed",
			}
		})
		return nil, err
	}

	e.metricInc(MetricIssueSuccess)
	e.emitAudit(ctx, auditEventTokenIssue, true, user.ID, claims.ID, nil, nil)

	return &TokenPair{
		AccessToken:           access,
		AccessTokenExpiresAt:  claims.ExpiresAt.Time,
		RefreshToken:          token.Value,
		RefreshTokenExpiresAt: token.ExpiresAt,
	}, nil
}

// Validate checks an access token and returns its principal. Rejections are
// a *ValidationError; use ValidationKindOf to branch on the cause.
func (e *Engine) Validate(ctx context.Context, token string) (*Principal, error) {
	if e == nil || e.validator == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}

	principal, err := e.validator.Validate(token)
	if err != nil {
		e.observeValidateFailure(ctx, err)
		return nil, err
	}

	e.metricInc(MetricValidateSuccess)
	return principal, nil
}

// observeValidateFailure records per-kind telemetry. Expiry is the normal
// end of a token's life and is never audited; a bad signature or an
// unclassified failure is.
func (e *Engine) observeValidateFailure(ctx context.Context, err error) {
	kind, _ := ValidationKindOf(err)
	switch kind {
	case KindExpired:
		e.metricInc(MetricValidateExpired)
	case KindSignatureInvalid:
		e.metricInc(MetricValidateSignatureInvalid)
		e.emitAudit(ctx, auditEventSignatureInvalid, false, "", "", err, nil)
	case KindBlacklisted:
		e.metricInc(MetricValidateBlacklisted)
	case KindMalformed:
		e.metricInc(MetricValidateMalformed)
	default:
		e.metricInc(MetricValidateUnexpected)
		e.emitAudit(ctx, auditEventValidateUnexpectedFail, false, "", "", err, nil)
	}
}

// IsBlacklisted reports whether token has been revoked. When the check
// itself cannot run the answer is true.
func (e *Engine) IsBlacklisted(token string) bool {
	if e == nil || e.validator == nil {
		return true
	}
	return e.validator.IsBlacklisted(token)
}

// Refresh rotates refreshValue and mints a new pair for its owner. A spent
// value returns refresh.ErrTokenReused and is recorded as a replay; the
// rotation guarantees at most one caller ever wins a given value.
func (e *Engine) Refresh(ctx context.Context, refreshValue string) (*TokenPair, error) {
	if e == nil || e.store == nil || e.issuer == nil {
		return nil, ErrEngineNotReady
	}

	next, err := e.store.Rotate(ctx, refreshValue, clientIPFromContext(ctx), userAgentFromContext(ctx))
	if err != nil {
		if errors.Is(err, refresh.ErrTokenReused) {
			e.metricInc(MetricRefreshReuseDetected)
			e.emitAudit(ctx, auditEventRefreshReuseDetected, false, "", "", err, nil)
			return nil, err
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventTokenRefresh, false, "", "", err, func() map[string]string {
			return map[string]string{
				"reason": "rotate_failed",
			}
		})
		return nil, err
	}

	user, err := e.userProvider.GetUserByID(ctx, next.UserID)
	if err == nil && user == nil {
		err = ErrUserNotFound
	}
	if err != nil {
		// The rotation already spent the old token; retire the successor so
		// a vanished user is not left holding a live refresh token.
		_ = e.store.Revoke(ctx, next.Value)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventTokenRefresh, false, next.UserID, "", err, func() map[string]string {
			return map[string]string{
				"reason": "user_lookup_failed",
			}
		})
		return nil, err
	}

	access, claims, err := e.issuer.issueAccess(user)
	if err != nil {
		_ = e.store.Revoke(ctx, next.Value)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventTokenRefresh, false, user.ID, "", err, func() map[string]string {
			return map[string]string{
				"reason": "sign_failed",
			}
		})
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventTokenRefresh, true, user.ID, claims.ID, nil, nil)

	return &TokenPair{
		AccessToken:           access,
		AccessTokenExpiresAt:  claims.ExpiresAt.Time,
		RefreshToken:          next.Value,
		RefreshTokenExpiresAt: next.ExpiresAt,
	}, nil
}

// Logout revokes refreshValue. Revoking a token that is already revoked or
// was never stored succeeds: logout is idempotent.
func (e *Engine) Logout(ctx context.Context, refreshValue string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	err := e.store.Revoke(ctx, refreshValue)
	if errors.Is(err, refresh.ErrTokenNotFound) {
		err = nil
	}
	if err == nil {
		e.metricInc(MetricLogout)
	}
	e.emitAudit(ctx, auditEventTokenLogout, err == nil, "", "", err, nil)

	return err
}

// RevokeAccess puts an access token on the blacklist for its remaining
// lifetime. Tokens that are already expired are a no-op: they cannot
// validate anyway. Tokens that fail verification for any other reason are
// rejected; garbage input must not grow the blacklist.
func (e *Engine) RevokeAccess(ctx context.Context, token string) error {
	if e == nil || e.validator == nil || e.jwtManager == nil {
		return ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseAccess(token)
	if err != nil {
		if errors.Is(err, gojwt.ErrTokenExpired) {
			return nil
		}
		verr := classifyParseError(err)
		e.emitAudit(ctx, auditEventAccessRevoke, false, "", "", verr, nil)
		return verr
	}

	ttl := claims.ExpiresAt.Time.Sub(e.jwtManager.Now())
	if ttl <= 0 {
		return nil
	}

	if err := e.validator.Blacklist(token, ttl); err != nil {
		e.emitAudit(ctx, auditEventAccessRevoke, false, claims.Subject, claims.ID, err, nil)
		return err
	}

	e.metricInc(MetricAccessRevoked)
	e.emitAudit(ctx, auditEventAccessRevoke, true, claims.Subject, claims.ID, nil, nil)

	return nil
}
