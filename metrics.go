package tokenforge

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a counter or histogram in the in-process metrics
// system. IDs are dense array indexes, not hashes.
type MetricID uint16

const (
	// MetricIssueSuccess counts token pairs minted by Issue.
	MetricIssueSuccess MetricID = iota
	// MetricIssueFailure counts Issue calls that returned an error.
	MetricIssueFailure
	// MetricValidateSuccess counts tokens accepted by Validate.
	MetricValidateSuccess
	// MetricValidateExpired counts tokens rejected for expiry.
	MetricValidateExpired
	// MetricValidateSignatureInvalid counts signature verification failures.
	MetricValidateSignatureInvalid
	// MetricValidateBlacklisted counts tokens rejected as revoked.
	MetricValidateBlacklisted
	// MetricValidateMalformed counts inputs that were not parseable JWTs.
	MetricValidateMalformed
	// MetricValidateUnexpected counts rejections outside the named kinds,
	// including issuer and audience mismatches.
	MetricValidateUnexpected
	// MetricValidateCacheHit counts validations served from the result cache.
	MetricValidateCacheHit
	// MetricValidateCacheMiss counts validations that ran the full chain.
	MetricValidateCacheMiss
	// MetricRefreshSuccess counts successful refresh token rotations.
	MetricRefreshSuccess
	// MetricRefreshFailure counts failed refresh attempts.
	MetricRefreshFailure
	// MetricRefreshReuseDetected counts rotations of already-spent tokens.
	MetricRefreshReuseDetected
	// MetricLogout counts logout operations.
	MetricLogout
	// MetricAccessRevoked counts access tokens pushed onto the blacklist.
	MetricAccessRevoked
	// MetricValidateLatency is the Validate latency histogram.
	MetricValidateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

// paddedCounter keeps each counter on its own cache line so hot counters
// incremented from different cores do not false-share.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds atomic counters and an optional latency histogram. The nil
// receiver is valid and all operations on it are no-ops, so callers never
// need to guard metric calls.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a Metrics instance. When cfg.Enabled is false every
// operation is a no-op.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is being recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the latency histogram for id. Only
// MetricValidateLatency carries a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricValidateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current counter value for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and histogram into plain maps. Maps are
// always non-nil so callers can range without checking.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
