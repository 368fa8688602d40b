//go:build integration
// +build integration

package test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/markjoyeuxcom/tokenforge/refresh"
)

func newIntegrationStore(t *testing.T) (*refresh.Store, *refresh.RedisRepository) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	repo := refresh.NewRedisRepository(rdb, "rt")
	store, err := refresh.NewStore(repo, refresh.Config{})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	return store, repo
}

func createToken(t *testing.T, store *refresh.Store, userID string) *refresh.Token {
	t.Helper()

	token, err := store.Create(context.Background(), userID, "127.0.0.1", "integration-test")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return token
}
