package tokenforge

import (
	"context"
	"testing"

	"github.com/markjoyeuxcom/tokenforge/refresh"
)

func newBenchmarkEngine(b *testing.B) *Engine {
	b.Helper()

	engine, err := New().
		WithConfig(testConfig()).
		WithRepository(refresh.NewMemoryRepository()).
		WithUserProvider(newMockUserProvider(testUser())).
		Build()
	if err != nil {
		b.Fatalf("Build failed: %v", err)
	}
	b.Cleanup(func() { _ = engine.Close() })

	return engine
}

func BenchmarkValidateCached(b *testing.B) {
	engine := newBenchmarkEngine(b)

	pair, err := engine.Issue(context.Background(), testUser())
	if err != nil {
		b.Fatalf("issue failed: %v", err)
	}

	// Prime the result cache so the loop measures the fingerprint+lookup path.
	if _, err := engine.Validate(context.Background(), pair.AccessToken); err != nil {
		b.Fatalf("validate failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Validate(context.Background(), pair.AccessToken); err != nil {
			b.Fatalf("validate failed: %v", err)
		}
	}
}

func BenchmarkValidateFull(b *testing.B) {
	engine := newBenchmarkEngine(b)

	pair, err := engine.Issue(context.Background(), testUser())
	if err != nil {
		b.Fatalf("issue failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// Drop the cached result so every iteration runs signature
		// verification and claim checks.
		engine.cache.Clear()
		if _, err := engine.Validate(context.Background(), pair.AccessToken); err != nil {
			b.Fatalf("validate failed: %v", err)
		}
	}
}

func BenchmarkIssue(b *testing.B) {
	engine := newBenchmarkEngine(b)
	user := testUser()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Issue(context.Background(), user); err != nil {
			b.Fatalf("issue failed: %v", err)
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	engine := newBenchmarkEngine(b)

	pair, err := engine.Issue(context.Background(), testUser())
	if err != nil {
		b.Fatalf("issue failed: %v", err)
	}

	value := pair.RefreshToken

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		next, err := engine.Refresh(context.Background(), value)
		if err != nil {
			b.Fatalf("refresh failed: %v", err)
		}
		value = next.RefreshToken
	}
}

func BenchmarkIssueRefreshTokenValue(b *testing.B) {
	engine := newBenchmarkEngine(b)
	issuer := engine.issuer

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := issuer.IssueRefreshToken(); err != nil {
			b.Fatalf("refresh value generation failed: %v", err)
		}
	}
}
