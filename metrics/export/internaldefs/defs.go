package internaldefs

import (
	"github.com/markjoyeuxcom/tokenforge"
	"github.com/markjoyeuxcom/tokenforge/cache"
)

// CounterDef names one engine counter for exporters.
//
// CounterDef instances are intended to be configured during initialization
// and then treated as immutable.
type CounterDef struct {
	ID   tokenforge.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   tokenforge.MetricID
	Name string
	Help string
}

// CacheStatDef names one cache statistic for exporters. Value extracts the
// statistic from a stats snapshot; Gauge marks values that move both ways.
type CacheStatDef struct {
	Name  string
	Help  string
	Gauge bool
	Value func(cache.Stats) uint64
}

// CounterDefs lists every engine counter in snapshot order.
var CounterDefs = []CounterDef{
	{ID: tokenforge.MetricIssueSuccess, Name: "tokenforge_issue_success_total", Help: "Token pairs minted."},
	{ID: tokenforge.MetricIssueFailure, Name: "tokenforge_issue_failure_total", Help: "Failed issue operations."},
	{ID: tokenforge.MetricValidateSuccess, Name: "tokenforge_validate_success_total", Help: "Access tokens accepted."},
	{ID: tokenforge.MetricValidateExpired, Name: "tokenforge_validate_expired_total", Help: "Access tokens rejected for expiry."},
	{ID: tokenforge.MetricValidateSignatureInvalid, Name: "tokenforge_validate_signature_invalid_total", Help: "Signature verification failures."},
	{ID: tokenforge.MetricValidateBlacklisted, Name: "tokenforge_validate_blacklisted_total", Help: "Access tokens rejected as revoked."},
	{ID: tokenforge.MetricValidateMalformed, Name: "tokenforge_validate_malformed_total", Help: "Inputs that were not parseable JWTs."},
	{ID: tokenforge.MetricValidateUnexpected, Name: "tokenforge_validate_unexpected_total", Help: "Rejections outside the named kinds."},
	{ID: tokenforge.MetricValidateCacheHit, Name: "tokenforge_validate_cache_hit_total", Help: "Validations served from the result cache."},
	{ID: tokenforge.MetricValidateCacheMiss, Name: "tokenforge_validate_cache_miss_total", Help: "Validations that ran the full chain."},
	{ID: tokenforge.MetricRefreshSuccess, Name: "tokenforge_refresh_success_total", Help: "Successful refresh token rotations."},
	{ID: tokenforge.MetricRefreshFailure, Name: "tokenforge_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: tokenforge.MetricRefreshReuseDetected, Name: "tokenforge_refresh_reuse_detected_total", Help: "Rotations of already-spent refresh tokens."},
	{ID: tokenforge.MetricLogout, Name: "tokenforge_logout_total", Help: "Logout operations."},
	{ID: tokenforge.MetricAccessRevoked, Name: "tokenforge_access_revoked_total", Help: "Access tokens pushed onto the blacklist."},
}

// HistogramDefs lists every engine histogram.
var HistogramDefs = []HistogramDef{
	{ID: tokenforge.MetricValidateLatency, Name: "tokenforge_validate_latency_seconds", Help: "Validate latency histogram."},
}

// CacheStatDefs lists the shared cache's statistics.
var CacheStatDefs = []CacheStatDef{
	{Name: "tokenforge_cache_hits_total", Help: "Cache lookups that found a live entry.", Value: func(s cache.Stats) uint64 { return s.Hits }},
	{Name: "tokenforge_cache_misses_total", Help: "Cache lookups that found nothing.", Value: func(s cache.Stats) uint64 { return s.Misses }},
	{Name: "tokenforge_cache_sets_total", Help: "Cache writes.", Value: func(s cache.Stats) uint64 { return s.Sets }},
	{Name: "tokenforge_cache_removes_total", Help: "Explicit cache removals.", Value: func(s cache.Stats) uint64 { return s.Removes }},
	{Name: "tokenforge_cache_evictions_total", Help: "Entries evicted by size compaction.", Value: func(s cache.Stats) uint64 { return s.Evictions }},
	{Name: "tokenforge_cache_expirations_total", Help: "Entries removed at expiry.", Value: func(s cache.Stats) uint64 { return s.Expirations }},
	{Name: "tokenforge_cache_entries", Help: "Live cache entries.", Gauge: true, Value: func(s cache.Stats) uint64 { return uint64(max64(s.Entries, 0)) }},
	{Name: "tokenforge_cache_size_bytes", Help: "Estimated bytes held by the cache.", Gauge: true, Value: func(s cache.Stats) uint64 { return uint64(max64(s.SizeBytes, 0)) }},
}

// HistogramBounds are the upper bounds of the validate latency buckets, in
// seconds, as Prometheus le label values.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix mirrors HistogramBounds with characters legal in
// instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form the
// exposition formats expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

func max64(v, floor int64) int64 {
	if v < floor {
		return floor
	}
	return v
}
