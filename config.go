package tokenforge

import (
	"errors"
	"time"

	"github.com/markjoyeuxcom/tokenforge/cache"
	"github.com/markjoyeuxcom/tokenforge/refresh"
)

// DefaultAccessTTL is the access token lifetime when none is configured.
const DefaultAccessTTL = 15 * time.Minute

// MinSigningKeyBytes is the smallest accepted HS256 key. Anything shorter
// than the hash width weakens the MAC.
const MinSigningKeyBytes = 32

// Config carries everything the engine needs. Instances are treated as
// immutable once passed to the builder; the builder keeps its own copy.
type Config struct {
	Signing    SigningConfig
	Refresh    RefreshConfig
	Cache      CacheConfig
	Validation ValidationConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
SIGNING CONFIG
====================================
*/

// SigningConfig pins the access token's cryptographic identity. Issuer and
// Audience, when set, are enforced on every parse.
type SigningConfig struct {
	Key       []byte
	Issuer    string
	Audience  string
	AccessTTL time.Duration
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls refresh token lifetimes.
type RefreshConfig struct {
	TTL time.Duration
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheConfig sizes the shared validation/blacklist cache. Zero values
// select the cache package defaults.
type CacheConfig struct {
	SizeLimit               int64
	CompactionPercentage    float64
	ExpirationScanFrequency time.Duration
}

/*
====================================
VALIDATION CONFIG
====================================
*/

// ValidationConfig controls the validation result cache. ResultTTL is an
// upper bound; a result is never cached past its token's expiry.
type ValidationConfig struct {
	ResultTTL time.Duration
}

// AuditConfig controls the audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics system.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		Signing: SigningConfig{
			AccessTTL: DefaultAccessTTL,
		},
		Refresh: RefreshConfig{
			TTL: refresh.DefaultTTL,
		},
		Cache: CacheConfig{
			SizeLimit:               cache.DefaultSizeLimit,
			CompactionPercentage:    cache.DefaultCompactionPercentage,
			ExpirationScanFrequency: cache.DefaultScanFrequency,
		},
		Validation: ValidationConfig{
			ResultTTL: DefaultValidationResultTTL,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Signing.Key = cloneBytes(cfg.Signing.Key)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for internal consistency. Zero cache
// and validation values are legal and select defaults; negative ones are not.
func (c *Config) Validate() error {
	// Signing
	if len(c.Signing.Key) == 0 {
		return errors.New("Signing Key is required")
	}
	if len(c.Signing.Key) < MinSigningKeyBytes {
		return errors.New("Signing Key must be at least 32 bytes")
	}
	if c.Signing.AccessTTL <= 0 {
		return errors.New("Signing AccessTTL must be > 0")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}

	// Cache
	if c.Cache.SizeLimit < 0 {
		return errors.New("Cache SizeLimit must be >= 0")
	}
	if c.Cache.CompactionPercentage < 0 || c.Cache.CompactionPercentage > 1 {
		return errors.New("Cache CompactionPercentage must be within [0, 1]")
	}
	if c.Cache.ExpirationScanFrequency < 0 {
		return errors.New("Cache ExpirationScanFrequency must be >= 0")
	}

	// Validation
	if c.Validation.ResultTTL < 0 {
		return errors.New("Validation ResultTTL must be >= 0")
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("Audit BufferSize must be > 0 when audit is enabled")
		}
	}

	return nil
}
