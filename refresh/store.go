package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/markjoyeuxcom/tokenforge/internal"
)

// DefaultTTL is the refresh token lifetime when Config.TTL is zero.
const DefaultTTL = 7 * 24 * time.Hour

var (
	ErrTokenExpired = errors.New("refresh: token expired")
	ErrTokenReused  = errors.New("refresh: token reuse detected")
	ErrInvalidValue = errors.New("refresh: malformed token value")
	ErrEmptyUserID  = errors.New("refresh: empty user id")
	ErrNilRepo      = errors.New("refresh: nil repository")
)

// Config tunes the store. Zero values take defaults.
type Config struct {
	// TTL is the lifetime granted to every created or rotated token.
	TTL time.Duration
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Store runs the refresh token lifecycle over a Repository: create, rotate,
// revoke. The store decides state transitions; the repository makes the
// rotation step atomic.
type Store struct {
	repo Repository
	ttl  time.Duration
	now  func() time.Time
}

func NewStore(repo Repository, cfg Config) (*Store, error) {
	if repo == nil {
		return nil, ErrNilRepo
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.TTL < 0 {
		return nil, fmt.Errorf("refresh: negative ttl %s", cfg.TTL)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Store{repo: repo, ttl: cfg.TTL, now: cfg.Now}, nil
}

// TTL returns the lifetime granted to new tokens.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Create mints and persists a token for userID. The client IP and user agent
// are recorded as provenance on the row.
func (s *Store) Create(ctx context.Context, userID, ip, userAgent string) (*Token, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	value, err := internal.NewRefreshValue()
	if err != nil {
		return nil, fmt.Errorf("refresh: generate value: %w", err)
	}

	now := s.now()
	token := &Token{
		ID:          uuid.NewString(),
		Value:       value,
		UserID:      userID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
		CreatedByIP: ip,
		UserAgent:   userAgent,
	}

	if err := s.repo.Add(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// Rotate spends value and returns its successor. The presented token must be
// active: revoked values are replays and report ErrTokenReused, expired ones
// ErrTokenExpired. The successor keeps the same user with a full fresh
// lifetime; provenance comes from ip and userAgent, falling back to the old
// token's values when the caller passes empty strings.
//
// Revocation of the old token and persistence of the new one happen in a
// single repository operation; under concurrent rotation of one value exactly
// one caller receives a successor.
func (s *Store) Rotate(ctx context.Context, value, ip, userAgent string) (*Token, error) {
	if !internal.WellFormedRefreshValue(value) {
		return nil, ErrInvalidValue
	}

	current, err := s.repo.FindByValue(ctx, value)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if current.Revoked {
		return nil, ErrTokenReused
	}
	if current.Expired(now) {
		return nil, ErrTokenExpired
	}

	nextValue, err := internal.NewRefreshValue()
	if err != nil {
		return nil, fmt.Errorf("refresh: generate value: %w", err)
	}
	if ip == "" {
		ip = current.CreatedByIP
	}
	if userAgent == "" {
		userAgent = current.UserAgent
	}
	next := &Token{
		ID:          uuid.NewString(),
		Value:       nextValue,
		UserID:      current.UserID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
		CreatedByIP: ip,
		UserAgent:   userAgent,
	}

	if err := s.repo.Rotate(ctx, value, now, next); err != nil {
		// Losing the conditional update means another caller spent the
		// token first; to this caller that is a replay.
		if errors.Is(err, ErrRotationConflict) {
			return nil, ErrTokenReused
		}
		return nil, err
	}

	return next, nil
}

// Revoke invalidates value. Revoking twice is a no-op; unknown values
// surface ErrTokenNotFound so callers choose their own idempotency policy.
func (s *Store) Revoke(ctx context.Context, value string) error {
	if !internal.WellFormedRefreshValue(value) {
		return ErrInvalidValue
	}
	return s.repo.Revoke(ctx, value, s.now())
}
