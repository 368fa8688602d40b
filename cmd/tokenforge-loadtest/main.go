// Command tokenforge-loadtest drives the engine's hot paths: it seeds a set
// of logged-in users, then runs a validate phase and a refresh-rotation
// phase with a worker pool, printing throughput and latency percentiles.
//
// By default refresh tokens live in the in-memory repository. Pass
// -store=redis to exercise the redis repository; with no -redis-addr (and no
// REDIS_ADDR in the environment) an embedded miniredis is started.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/markjoyeuxcom/tokenforge"
	"github.com/markjoyeuxcom/tokenforge/refresh"
)

type tokenState struct {
	access  string
	refresh string
	mu      sync.Mutex
}

func main() {
	var (
		sessions    = flag.Int("sessions", 10000, "number of token pairs to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (validate + refresh)")
		storeKind   = flag.String("store", "memory", "refresh token store: memory or redis")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	repo, cleanup, err := buildRepository(*storeKind, *redisAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cleanup()

	users := newLoadUsers(*sessions)

	cfg := tokenforge.Config{}
	cfg.Signing.Key = []byte("loadtest-signing-key-0123456789abcdef")
	cfg.Signing.Issuer = "tokenforge-loadtest"
	cfg.Signing.Audience = "loadtest"
	cfg.Signing.AccessTTL = tokenforge.DefaultAccessTTL
	cfg.Refresh.TTL = refresh.DefaultTTL
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	engine, err := tokenforge.New().
		WithConfig(cfg).
		WithRepository(repo).
		WithUserProvider(users).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = engine.Close() }()

	states := make([]tokenState, *sessions)
	fmt.Printf("seeding %d token pairs...\n", *sessions)
	startSeed := time.Now()
	for i := 0; i < *sessions; i++ {
		pair, err := engine.Issue(ctx, users.user(i))
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue failed: %v\n", err)
			os.Exit(1)
		}
		states[i].access = pair.AccessToken
		states[i].refresh = pair.RefreshToken
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runValidatePhase(ctx, engine, states, *ops, *concurrency)
	refreshStats := runRefreshPhase(ctx, engine, states, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)

	cacheStats := engine.CacheStats()
	fmt.Printf("cache: hits=%d misses=%d entries=%d bytes=%d\n",
		cacheStats.Hits, cacheStats.Misses, cacheStats.Entries, cacheStats.SizeBytes)
}

func buildRepository(kind, addr string) (refresh.Repository, func(), error) {
	switch kind {
	case "memory":
		fmt.Println("using in-memory refresh store")
		return refresh.NewMemoryRepository(), func() {}, nil
	case "redis":
	default:
		return nil, nil, fmt.Errorf("unknown store %q (want memory or redis)", kind)
	}

	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{mr.Addr()},
		})
		fmt.Printf("using miniredis at %s\n", mr.Addr())
		return refresh.NewRedisRepository(client, "lt"), func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{addr},
	})
	fmt.Printf("using redis at %s\n", addr)
	return refresh.NewRedisRepository(client, "lt"), func() { _ = client.Close() }, nil
}

func runValidatePhase(ctx context.Context, engine *tokenforge.Engine, states []tokenState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(states))
				t0 := time.Now()
				_, err := engine.Validate(ctx, states[idx].access)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func runRefreshPhase(ctx context.Context, engine *tokenforge.Engine, states []tokenState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(states))
				state := &states[idx]

				state.mu.Lock()
				t0 := time.Now()
				pair, err := engine.Refresh(ctx, state.refresh)
				d := time.Since(t0)
				if err == nil {
					state.access = pair.AccessToken
					state.refresh = pair.RefreshToken
				} else {
					atomic.AddInt64(&failures, 1)
				}
				state.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

// loadUsers is a fixed in-memory user set; lookups never fail for seeded IDs.
type loadUsers struct {
	users []tokenforge.User
	byID  map[string]int
}

func newLoadUsers(n int) *loadUsers {
	l := &loadUsers{
		users: make([]tokenforge.User, n),
		byID:  make(map[string]int, n),
	}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("user-%d", i)
		l.users[i] = tokenforge.User{
			ID:       id,
			Username: fmt.Sprintf("loaduser%d", i),
			Email:    fmt.Sprintf("loaduser%d@example.com", i),
			Role:     "member",
		}
		l.byID[id] = i
	}
	return l
}

func (l *loadUsers) user(i int) *tokenforge.User {
	out := l.users[i]
	return &out
}

func (l *loadUsers) GetUserByID(_ context.Context, userID string) (*tokenforge.User, error) {
	i, ok := l.byID[userID]
	if !ok {
		return nil, tokenforge.ErrUserNotFound
	}
	return l.user(i), nil
}
