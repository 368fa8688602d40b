package tokenforge

import (
	"time"

	"github.com/markjoyeuxcom/tokenforge/cache"
	"github.com/markjoyeuxcom/tokenforge/jwt"
	"github.com/markjoyeuxcom/tokenforge/refresh"
)

// Builder assembles an Engine from a Config and its runtime dependencies.
// Configure it once during startup; a Builder must not be reused after Build.
type Builder struct {
	config Config

	repo         refresh.Repository
	userProvider UserProvider
	auditSink    AuditSink
	clock        func() time.Time

	built bool
}

// New returns a Builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the builder's configuration. The config is cloned, so
// later mutations of cfg by the caller do not reach the built Engine.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRepository sets the refresh token repository. Required.
func (b *Builder) WithRepository(repo refresh.Repository) *Builder {
	b.repo = repo
	return b
}

// WithUserProvider sets the user lookup used during refresh. Required.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink sets the destination for audit events. Events are only
// delivered when auditing is enabled in the config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the engine's time source. Signing, expiry checks, and
// refresh rotation all read from it, which makes expiry testable without
// sleeping. A nil clock means time.Now.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithMetricsEnabled toggles counter collection on the built Engine.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles validation latency histograms. Has no effect
// unless metrics are enabled.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires every component, and returns the
// Engine. The cache sweeper goroutine starts here; call Engine.Close to stop
// it. Build succeeds at most once per Builder.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrAlreadyBuilt
	}
	if b.repo == nil {
		return nil, ErrMissingRepository
	}
	if b.userProvider == nil {
		return nil, ErrMissingUsers
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	metrics := NewMetrics(cfg.Metrics)

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:  cfg.Signing.AccessTTL,
		SigningKey: cloneBytes(cfg.Signing.Key),
		Issuer:     cfg.Signing.Issuer,
		Audience:   cfg.Signing.Audience,
		TimeFunc:   b.clock,
	})
	if err != nil {
		return nil, err
	}

	store, err := refresh.NewStore(b.repo, refresh.Config{
		TTL: cfg.Refresh.TTL,
		Now: b.clock,
	})
	if err != nil {
		return nil, err
	}

	// The cache owns a background sweeper, so it is constructed after every
	// dependency that can fail without needing a Close.
	tokenCache, err := cache.New(cache.Config{
		SizeLimit:               cfg.Cache.SizeLimit,
		CompactionPercentage:    cfg.Cache.CompactionPercentage,
		ExpirationScanFrequency: cfg.Cache.ExpirationScanFrequency,
	})
	if err != nil {
		return nil, err
	}

	blacklist := NewBlacklist(tokenCache)

	validator, err := NewValidator(ValidatorConfig{
		Manager:   jm,
		Cache:     tokenCache,
		Blacklist: blacklist,
		ResultTTL: cfg.Validation.ResultTTL,
		Metrics:   metrics,
	})
	if err != nil {
		_ = tokenCache.Close()
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		cache:        tokenCache,
		blacklist:    blacklist,
		issuer:       NewIssuer(jm),
		validator:    validator,
		store:        store,
		userProvider: b.userProvider,
		audit:        newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:      metrics,
		jwtManager:   jm,
	}

	b.built = true

	return engine, nil
}
