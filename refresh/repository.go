package refresh

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTokenNotFound    = errors.New("refresh: token not found")
	ErrDuplicateValue   = errors.New("refresh: value already exists")
	ErrRotationConflict = errors.New("refresh: token already rotated or revoked")
	ErrStoreUnavailable = errors.New("refresh: store unavailable")
)

// Repository persists refresh tokens. Implementations must make Rotate's
// revoke-if-active step an atomic conditional update: of any number of
// concurrent Rotate calls for the same value, exactly one succeeds and the
// rest return ErrRotationConflict.
type Repository interface {
	// Add persists a new token. A value collision returns ErrDuplicateValue.
	Add(ctx context.Context, token *Token) error

	// FindByValue returns the token for value, revoked and expired ones
	// included. Missing values return ErrTokenNotFound.
	FindByValue(ctx context.Context, value string) (*Token, error)

	// Revoke marks the token revoked at the given time. Revoking an
	// already-revoked token is a no-op; a missing value returns
	// ErrTokenNotFound.
	Revoke(ctx context.Context, value string, at time.Time) error

	// Rotate atomically revokes oldValue and persists next. It fails with
	// ErrRotationConflict when oldValue is no longer active, and
	// ErrTokenNotFound when it does not exist.
	Rotate(ctx context.Context, oldValue string, at time.Time, next *Token) error
}
