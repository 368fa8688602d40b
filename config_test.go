package tokenforge

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults with key valid",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "missing signing key invalid",
			mutate: func(c *Config) {
				c.Signing.Key = nil
			},
			wantValid: false,
		},
		{
			name: "short signing key invalid",
			mutate: func(c *Config) {
				c.Signing.Key = []byte("too-short")
			},
			wantValid: false,
		},
		{
			name: "access ttl zero invalid",
			mutate: func(c *Config) {
				c.Signing.AccessTTL = 0
			},
			wantValid: false,
		},
		{
			name: "access ttl short valid",
			mutate: func(c *Config) {
				c.Signing.AccessTTL = time.Minute
			},
			wantValid: true,
		},
		{
			name: "refresh ttl zero invalid",
			mutate: func(c *Config) {
				c.Refresh.TTL = 0
			},
			wantValid: false,
		},
		{
			name: "cache size limit zero valid",
			mutate: func(c *Config) {
				c.Cache.SizeLimit = 0
			},
			wantValid: true,
		},
		{
			name: "cache size limit negative invalid",
			mutate: func(c *Config) {
				c.Cache.SizeLimit = -1
			},
			wantValid: false,
		},
		{
			name: "compaction percentage one valid",
			mutate: func(c *Config) {
				c.Cache.CompactionPercentage = 1
			},
			wantValid: true,
		},
		{
			name: "compaction percentage above one invalid",
			mutate: func(c *Config) {
				c.Cache.CompactionPercentage = 1.5
			},
			wantValid: false,
		},
		{
			name: "scan frequency negative invalid",
			mutate: func(c *Config) {
				c.Cache.ExpirationScanFrequency = -time.Second
			},
			wantValid: false,
		},
		{
			name: "result ttl zero valid",
			mutate: func(c *Config) {
				c.Validation.ResultTTL = 0
			},
			wantValid: true,
		},
		{
			name: "result ttl negative invalid",
			mutate: func(c *Config) {
				c.Validation.ResultTTL = -time.Second
			},
			wantValid: false,
		},
		{
			name: "audit enabled without buffer invalid",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "audit disabled ignores buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = false
				c.Audit.BufferSize = 0
			},
			wantValid: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected invalid config, got nil")
			}
		})
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Signing.AccessTTL != DefaultAccessTTL {
		t.Fatalf("expected default access ttl %v, got %v", DefaultAccessTTL, cfg.Signing.AccessTTL)
	}
	if cfg.Validation.ResultTTL != DefaultValidationResultTTL {
		t.Fatalf("expected default result ttl %v, got %v", DefaultValidationResultTTL, cfg.Validation.ResultTTL)
	}
	if cfg.Audit.Enabled {
		t.Fatal("audit must default to disabled")
	}
	if cfg.Metrics.Enabled {
		t.Fatal("metrics must default to disabled")
	}
}

func TestCloneConfigDetachesKey(t *testing.T) {
	cfg := testConfig()
	clone := cloneConfig(cfg)

	cfg.Signing.Key[0] ^= 0xFF
	if clone.Signing.Key[0] == cfg.Signing.Key[0] {
		t.Fatal("expected cloned key to be detached from the original")
	}
}
