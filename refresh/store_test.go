package refresh

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markjoyeuxcom/tokenforge/internal"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Unix(1_700_000_000, 0).UTC()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestStore(t *testing.T) (*Store, *MemoryRepository, *testClock) {
	t.Helper()
	clock := newTestClock()
	repo := NewMemoryRepository()
	store, err := NewStore(repo, Config{TTL: 7 * 24 * time.Hour, Now: clock.Now})
	require.NoError(t, err)
	return store, repo, clock
}

func TestStoreCreateShape(t *testing.T) {
	store, repo, clock := newTestStore(t)
	ctx := context.Background()

	token, err := store.Create(ctx, "user-1", "203.0.113.9", "cli/1.0")
	require.NoError(t, err)

	assert.True(t, internal.WellFormedRefreshValue(token.Value))
	assert.Len(t, token.Value, internal.RefreshValueEncodedSize)

	_, err = uuid.Parse(token.ID)
	assert.NoError(t, err)

	assert.Equal(t, "user-1", token.UserID)
	assert.Equal(t, clock.Now(), token.CreatedAt)
	assert.Equal(t, clock.Now().Add(7*24*time.Hour), token.ExpiresAt)
	assert.Equal(t, "203.0.113.9", token.CreatedByIP)
	assert.Equal(t, "cli/1.0", token.UserAgent)
	assert.False(t, token.Revoked)
	assert.Nil(t, token.RevokedAt)

	assert.Equal(t, 1, repo.Len())
}

func TestStoreCreateEmptyUser(t *testing.T) {
	store, _, _ := newTestStore(t)

	_, err := store.Create(context.Background(), "", "", "")
	assert.ErrorIs(t, err, ErrEmptyUserID)
}

func TestStoreRotateIssuesSuccessor(t *testing.T) {
	store, repo, clock := newTestStore(t)
	ctx := context.Background()

	first, err := store.Create(ctx, "user-1", "203.0.113.9", "cli/1.0")
	require.NoError(t, err)

	clock.Advance(time.Hour)

	second, err := store.Rotate(ctx, first.Value, "", "")
	require.NoError(t, err)

	assert.NotEqual(t, first.Value, second.Value)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.UserID, second.UserID)
	assert.Equal(t, first.CreatedByIP, second.CreatedByIP)
	assert.Equal(t, first.UserAgent, second.UserAgent)

	// The successor gets a full lifetime measured from rotation.
	assert.Equal(t, clock.Now(), second.CreatedAt)
	assert.Equal(t, clock.Now().Add(7*24*time.Hour), second.ExpiresAt)

	stored, err := repo.FindByValue(ctx, first.Value)
	require.NoError(t, err)
	assert.True(t, stored.Revoked)
	require.NotNil(t, stored.RevokedAt)
	assert.Equal(t, clock.Now().UTC(), *stored.RevokedAt)
}

func TestStoreRotateRecordsCallerProvenance(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	first, err := store.Create(ctx, "user-1", "203.0.113.9", "cli/1.0")
	require.NoError(t, err)

	// A rotation from a new device records that device, not the original
	// login's.
	second, err := store.Rotate(ctx, first.Value, "198.51.100.4", "mobile/2.1")
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.4", second.CreatedByIP)
	assert.Equal(t, "mobile/2.1", second.UserAgent)

	// Missing caller provenance falls back to the spent token's.
	third, err := store.Rotate(ctx, second.Value, "", "")
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.4", third.CreatedByIP)
	assert.Equal(t, "mobile/2.1", third.UserAgent)
}

func TestStoreRotateDetectsReuse(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	first, err := store.Create(ctx, "user-1", "", "")
	require.NoError(t, err)

	_, err = store.Rotate(ctx, first.Value, "", "")
	require.NoError(t, err)

	// Presenting the spent value again is a replay.
	_, err = store.Rotate(ctx, first.Value, "", "")
	assert.ErrorIs(t, err, ErrTokenReused)
}

func TestStoreRotateAfterRevoke(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	token, err := store.Create(ctx, "user-1", "", "")
	require.NoError(t, err)

	require.NoError(t, store.Revoke(ctx, token.Value))

	_, err = store.Rotate(ctx, token.Value, "", "")
	assert.ErrorIs(t, err, ErrTokenReused)
}

func TestStoreRotateExpired(t *testing.T) {
	store, _, clock := newTestStore(t)
	ctx := context.Background()

	token, err := store.Create(ctx, "user-1", "", "")
	require.NoError(t, err)

	// Expiry is exclusive of the deadline instant itself.
	clock.Advance(7*24*time.Hour - time.Second)
	_, err = store.Rotate(ctx, token.Value, "", "")
	require.NoError(t, err)

	stale, err := store.Create(ctx, "user-2", "", "")
	require.NoError(t, err)
	clock.Advance(7 * 24 * time.Hour)
	_, err = store.Rotate(ctx, stale.Value, "", "")
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestStoreRevokeIdempotent(t *testing.T) {
	store, repo, _ := newTestStore(t)
	ctx := context.Background()

	token, err := store.Create(ctx, "user-1", "", "")
	require.NoError(t, err)

	require.NoError(t, store.Revoke(ctx, token.Value))
	require.NoError(t, store.Revoke(ctx, token.Value))

	stored, err := repo.FindByValue(ctx, token.Value)
	require.NoError(t, err)
	assert.True(t, stored.Revoked)
}

func TestStoreRevokeUnknownValue(t *testing.T) {
	store, _, _ := newTestStore(t)

	value, err := internal.NewRefreshValue()
	require.NoError(t, err)

	err = store.Revoke(context.Background(), value)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestStoreRejectsMalformedValues(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	for _, value := range []string{"", "short", "not-base64url!@#$"} {
		_, err := store.Rotate(ctx, value, "", "")
		assert.ErrorIs(t, err, ErrInvalidValue, "rotate %q", value)

		err = store.Revoke(ctx, value)
		assert.ErrorIs(t, err, ErrInvalidValue, "revoke %q", value)
	}
}

func TestStoreRotationChain(t *testing.T) {
	store, repo, _ := newTestStore(t)
	ctx := context.Background()

	first, err := store.Create(ctx, "user-1", "", "")
	require.NoError(t, err)

	second, err := store.Rotate(ctx, first.Value, "", "")
	require.NoError(t, err)
	third, err := store.Rotate(ctx, second.Value, "", "")
	require.NoError(t, err)

	// Every ancestor in the chain is spent.
	_, err = store.Rotate(ctx, first.Value, "", "")
	assert.ErrorIs(t, err, ErrTokenReused)
	_, err = store.Rotate(ctx, second.Value, "", "")
	assert.ErrorIs(t, err, ErrTokenReused)

	fourth, err := store.Rotate(ctx, third.Value, "", "")
	require.NoError(t, err)
	assert.NotEqual(t, third.Value, fourth.Value)

	assert.Equal(t, 4, repo.Len())
}

func TestStoreConcurrentRotateSingleWinner(t *testing.T) {
	store, repo, _ := newTestStore(t)
	ctx := context.Background()

	token, err := store.Create(ctx, "user-1", "", "")
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			<-start
			_, errs[slot] = store.Rotate(ctx, token.Value, "", "")
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.ErrorIs(t, err, ErrTokenReused)
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 2, repo.Len())
}

func TestNewStoreValidation(t *testing.T) {
	_, err := NewStore(nil, Config{})
	assert.ErrorIs(t, err, ErrNilRepo)

	_, err = NewStore(NewMemoryRepository(), Config{TTL: -time.Hour})
	assert.Error(t, err)
}

func TestNewStoreDefaults(t *testing.T) {
	store, err := NewStore(NewMemoryRepository(), Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, store.TTL())
}
