package tokenforge

import (
	"fmt"
	"time"

	"github.com/markjoyeuxcom/tokenforge/cache"
)

// SecurityReport summarizes the hardening posture of a built engine: the
// cryptographic facts of its configuration plus a findings list for anything
// weaker than the recommended settings. Findings are advisory; hard
// violations never reach a report because Build rejects them.
type SecurityReport struct {
	SigningAlgorithm string
	SigningKeyBits   int
	IssuerPinned     bool
	AudiencePinned   bool
	ZeroClockSkew    bool

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	BlacklistEnabled   bool
	ValidationCacheTTL time.Duration
	CacheSizeLimit     int64

	AuditEnabled   bool
	MetricsEnabled bool

	Findings []string
}

// Hardened reports whether the configuration carried no findings.
func (r SecurityReport) Hardened() bool {
	return len(r.Findings) == 0
}

const (
	recommendedMaxAccessTTL  = time.Hour
	recommendedMaxRefreshTTL = 30 * 24 * time.Hour
)

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	resultTTL := e.config.Validation.ResultTTL
	if resultTTL == 0 {
		resultTTL = DefaultValidationResultTTL
	}

	sizeLimit := e.config.Cache.SizeLimit
	if sizeLimit == 0 {
		sizeLimit = cache.DefaultSizeLimit
	}

	report := SecurityReport{
		SigningAlgorithm:   "HS256",
		SigningKeyBits:     len(e.config.Signing.Key) * 8,
		IssuerPinned:       e.config.Signing.Issuer != "",
		AudiencePinned:     e.config.Signing.Audience != "",
		ZeroClockSkew:      true,
		AccessTTL:          e.config.Signing.AccessTTL,
		RefreshTTL:         e.config.Refresh.TTL,
		BlacklistEnabled:   e.blacklist != nil,
		ValidationCacheTTL: resultTTL,
		CacheSizeLimit:     sizeLimit,
		AuditEnabled:       e.config.Audit.Enabled,
		MetricsEnabled:     e.config.Metrics.Enabled,
	}

	if !report.IssuerPinned {
		report.Findings = append(report.Findings, "issuer claim not pinned; tokens from any issuer signed with this key validate")
	}
	if !report.AudiencePinned {
		report.Findings = append(report.Findings, "audience claim not pinned; tokens minted for other services validate here")
	}
	if report.AccessTTL > recommendedMaxAccessTTL {
		report.Findings = append(report.Findings,
			fmt.Sprintf("access token ttl %s exceeds recommended maximum %s", report.AccessTTL, recommendedMaxAccessTTL))
	}
	if report.RefreshTTL > recommendedMaxRefreshTTL {
		report.Findings = append(report.Findings,
			fmt.Sprintf("refresh token ttl %s exceeds recommended maximum %s", report.RefreshTTL, recommendedMaxRefreshTTL))
	}
	if report.ValidationCacheTTL > report.AccessTTL {
		report.Findings = append(report.Findings, "validation cache ttl exceeds access token ttl; capped at token expiry but indicates misconfiguration")
	}
	if !report.AuditEnabled {
		report.Findings = append(report.Findings, "audit disabled; security events (forged signatures, refresh replays) are not recorded")
	}
	if !report.MetricsEnabled {
		report.Findings = append(report.Findings, "metrics disabled; rejection rates are invisible")
	}

	return report
}
