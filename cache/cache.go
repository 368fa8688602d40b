package cache

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrClosed            = errors.New("cache: closed")
	ErrEmptyKey          = errors.New("cache: empty key")
	ErrInvalidTTL        = errors.New("cache: ttl must be positive")
	ErrValueTooLarge     = errors.New("cache: value exceeds size limit")
	ErrInvalidSizeLimit  = errors.New("cache: size limit must be positive")
	ErrInvalidCompaction = errors.New("cache: compaction percentage must be in (0, 1]")
	ErrInvalidScanFreq   = errors.New("cache: expiration scan frequency below minimum")
	ErrEncode            = errors.New("cache: value encoding failed")
)

// Kind states how a value is stored. The caller decides; the cache never
// inspects value types to choose.
type Kind uint8

const (
	// KindDirect stores the value as given. Size is estimated from a fixed
	// per-type table.
	KindDirect Kind = iota
	// KindSerialized encodes the value into a byte payload at Set time.
	// Size is the exact payload length. Reads return the raw payload.
	KindSerialized
)

const (
	DefaultSizeLimit            = 64 << 20
	DefaultCompactionPercentage = 0.05
	DefaultScanFrequency        = 5 * time.Minute

	minScanFrequency = time.Second

	// Fixed per-entry overhead charged on top of the value size, covering
	// index slot, entry struct, and key storage.
	entryOverhead = 48

	cacheLineSize = 64
)

// Config bounds the cache. Zero values take defaults.
type Config struct {
	// SizeLimit is the maximum total of recorded entry sizes, in bytes.
	SizeLimit int64
	// CompactionPercentage is the fraction of SizeLimit freed when a Set
	// would overflow the limit.
	CompactionPercentage float64
	// ExpirationScanFrequency is the background sweep interval.
	ExpirationScanFrequency time.Duration
}

func (c Config) withDefaults() Config {
	if c.SizeLimit == 0 {
		c.SizeLimit = DefaultSizeLimit
	}
	if c.CompactionPercentage == 0 {
		c.CompactionPercentage = DefaultCompactionPercentage
	}
	if c.ExpirationScanFrequency == 0 {
		c.ExpirationScanFrequency = DefaultScanFrequency
	}
	return c
}

func (c Config) validate() error {
	if c.SizeLimit <= 0 {
		return ErrInvalidSizeLimit
	}
	if c.CompactionPercentage <= 0 || c.CompactionPercentage > 1 {
		return ErrInvalidCompaction
	}
	if c.ExpirationScanFrequency < minScanFrequency {
		return fmt.Errorf("%w: %s < %s", ErrInvalidScanFreq, c.ExpirationScanFrequency, minScanFrequency)
	}
	return nil
}

// Stats is a point-in-time snapshot of cache counters. All counters are
// monotonic for the lifetime of the cache.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Sets        uint64
	Removes     uint64
	Evictions   uint64
	Expirations uint64
	Entries     int64
	SizeBytes   int64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

type entry struct {
	value     any
	size      int64
	expiresAt int64
	seq       uint64
}

func (e *entry) expired(now int64) bool {
	return now >= e.expiresAt
}

// Cache is a size-bounded TTL store safe for concurrent use.
type Cache struct {
	cfg Config

	index   sync.Map
	size    atomic.Int64
	entries atomic.Int64
	seq     atomic.Uint64

	hits        paddedCounter
	misses      paddedCounter
	sets        paddedCounter
	removes     paddedCounter
	evictions   paddedCounter
	expirations paddedCounter

	compactMu sync.Mutex
	sweeping  atomic.Bool

	now       func() time.Time
	done      chan struct{}
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

// New validates cfg, applies defaults for zero fields, and starts the
// background sweeper.
func New(cfg Config) (*Cache, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Cache{
		cfg:  cfg,
		now:  time.Now,
		done: make(chan struct{}),
	}

	c.wg.Add(1)
	go c.sweepLoop()

	return c, nil
}

// Set stores value under key for ttl. KindSerialized values are encoded
// immediately: byte slices pass through, values implementing
// encoding.BinaryMarshaler use it, everything else is JSON-encoded.
// Replacing an existing key adjusts size accounting by the exact delta.
func (c *Cache) Set(key string, value any, kind Kind, ttl time.Duration) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if key == "" {
		return ErrEmptyKey
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	stored := value
	var sz int64
	switch kind {
	case KindSerialized:
		payload, err := encodeValue(value)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrEncode, err)
		}
		stored = payload
		sz = int64(len(payload)) + int64(len(key)) + entryOverhead
	default:
		sz = estimateSize(value) + int64(len(key)) + entryOverhead
	}

	if sz > c.cfg.SizeLimit {
		return ErrValueTooLarge
	}

	e := &entry{
		value:     stored,
		size:      sz,
		expiresAt: c.now().Add(ttl).UnixNano(),
		seq:       c.seq.Add(1),
	}

	// Advisory check; exact accounting happens on the swap below.
	var prevSize int64
	if prev, ok := c.index.Load(key); ok {
		prevSize = prev.(*entry).size
	}
	if c.size.Load()-prevSize+sz > c.cfg.SizeLimit {
		c.compact(sz)
	}

	if prev, loaded := c.index.Swap(key, e); loaded {
		c.size.Add(sz - prev.(*entry).size)
	} else {
		c.size.Add(sz)
		c.entries.Add(1)
	}
	atomic.AddUint64(&c.sets.value, 1)

	return nil
}

// Get returns the stored value. Expired entries are removed lazily and count
// as misses, as does any read after Close. Entries stored with KindSerialized
// come back as their []byte payload.
func (c *Cache) Get(key string) (any, bool) {
	if c.closed.Load() {
		atomic.AddUint64(&c.misses.value, 1)
		return nil, false
	}

	v, ok := c.index.Load(key)
	if !ok {
		atomic.AddUint64(&c.misses.value, 1)
		return nil, false
	}

	e := v.(*entry)
	if e.expired(c.now().UnixNano()) {
		c.dropExpired(key, v, e)
		atomic.AddUint64(&c.misses.value, 1)
		return nil, false
	}

	atomic.AddUint64(&c.hits.value, 1)
	return e.value, true
}

// Exists reports whether key holds a live entry. It does not touch the
// hit/miss counters; expired entries are still removed lazily.
func (c *Cache) Exists(key string) bool {
	if c.closed.Load() {
		return false
	}

	v, ok := c.index.Load(key)
	if !ok {
		return false
	}
	e := v.(*entry)
	if e.expired(c.now().UnixNano()) {
		c.dropExpired(key, v, e)
		return false
	}
	return true
}

// Remove deletes key if present.
func (c *Cache) Remove(key string) {
	if v, ok := c.index.LoadAndDelete(key); ok {
		e := v.(*entry)
		c.size.Add(-e.size)
		c.entries.Add(-1)
		atomic.AddUint64(&c.removes.value, 1)
	}
}

// Clear removes every entry. Each removal is accounted individually so the
// counters stay exact under concurrent writers.
func (c *Cache) Clear() {
	c.index.Range(func(k, v any) bool {
		if c.index.CompareAndDelete(k, v) {
			e := v.(*entry)
			c.size.Add(-e.size)
			c.entries.Add(-1)
			atomic.AddUint64(&c.removes.value, 1)
		}
		return true
	})
}

// Len returns the number of live entries, expired-but-unswept included.
func (c *Cache) Len() int {
	return int(c.entries.Load())
}

// Stats returns a snapshot of all counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:        atomic.LoadUint64(&c.hits.value),
		Misses:      atomic.LoadUint64(&c.misses.value),
		Sets:        atomic.LoadUint64(&c.sets.value),
		Removes:     atomic.LoadUint64(&c.removes.value),
		Evictions:   atomic.LoadUint64(&c.evictions.value),
		Expirations: atomic.LoadUint64(&c.expirations.value),
		Entries:     c.entries.Load(),
		SizeBytes:   c.size.Load(),
	}
}

// Sweep removes expired entries and returns how many were dropped. Only one
// sweep runs at a time; a call arriving mid-sweep returns immediately. The
// background loop calls this on every tick.
func (c *Cache) Sweep() int {
	if !c.sweeping.CompareAndSwap(false, true) {
		return 0
	}
	defer c.sweeping.Store(false)

	now := c.now().UnixNano()
	removed := 0
	c.index.Range(func(k, v any) bool {
		e := v.(*entry)
		if !e.expired(now) {
			return true
		}
		if c.index.CompareAndDelete(k, v) {
			c.size.Add(-e.size)
			c.entries.Add(-1)
			atomic.AddUint64(&c.expirations.value, 1)
			removed++
		}
		return true
	})
	return removed
}

// Close stops the sweeper and rejects further writes. Idempotent. Reads after
// Close observe misses.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		c.wg.Wait()
	})
	return nil
}

// Closed reports whether Close has been called. Callers that must distinguish
// "absent" from "store no longer answering" check this before trusting a
// negative read.
func (c *Cache) Closed() bool {
	return c.closed.Load()
}

func (c *Cache) sweepLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.ExpirationScanFrequency)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) dropExpired(key, v any, e *entry) {
	if c.index.CompareAndDelete(key, v) {
		c.size.Add(-e.size)
		c.entries.Add(-1)
		atomic.AddUint64(&c.expirations.value, 1)
	}
}

// compact frees at least CompactionPercentage of SizeLimit, or more when the
// incoming entry needs it. Expired entries go first, then oldest-inserted.
// Compactors are serialized; a second caller re-checks on entry and returns
// early when the first already freed enough.
func (c *Cache) compact(incoming int64) {
	c.compactMu.Lock()
	defer c.compactMu.Unlock()

	limit := c.cfg.SizeLimit
	if c.size.Load()+incoming <= limit {
		return
	}

	target := int64(float64(limit) * c.cfg.CompactionPercentage)
	if need := c.size.Load() + incoming - limit; need > target {
		target = need
	}

	now := c.now().UnixNano()
	type victim struct {
		key     any
		raw     any
		e       *entry
		expired bool
	}
	victims := make([]victim, 0, 128)
	c.index.Range(func(k, v any) bool {
		e := v.(*entry)
		victims = append(victims, victim{key: k, raw: v, e: e, expired: e.expired(now)})
		return true
	})

	sort.Slice(victims, func(i, j int) bool {
		if victims[i].expired != victims[j].expired {
			return victims[i].expired
		}
		return victims[i].e.seq < victims[j].e.seq
	})

	var freed int64
	for _, v := range victims {
		if freed >= target {
			break
		}
		if !c.index.CompareAndDelete(v.key, v.raw) {
			continue
		}
		c.size.Add(-v.e.size)
		c.entries.Add(-1)
		freed += v.e.size
		if v.expired {
			atomic.AddUint64(&c.expirations.value, 1)
		} else {
			atomic.AddUint64(&c.evictions.value, 1)
		}
	}
}

func encodeValue(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case encoding.BinaryMarshaler:
		return x.MarshalBinary()
	default:
		return json.Marshal(v)
	}
}

// estimateSize prices a directly stored value from a fixed per-kind table.
// Unknown kinds get a flat charge; callers holding large values should store
// them serialized so the exact payload length is recorded.
func estimateSize(v any) int64 {
	switch x := v.(type) {
	case nil:
		return 8
	case bool, int8, uint8:
		return 1
	case int16, uint16:
		return 2
	case int32, uint32, float32:
		return 4
	case int, int64, uint, uint64, float64, time.Duration:
		return 8
	case time.Time:
		return 24
	case string:
		return int64(len(x)) + 16
	case []byte:
		return int64(len(x)) + 24
	default:
		return 64
	}
}
