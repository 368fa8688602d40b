package tokenforge

import (
	"context"
	"time"
)

// User is the caller-owned identity an access token is minted for. The
// engine never stores users; it copies these fields into token claims.
type User struct {
	ID        string
	Username  string
	Email     string
	Role      string
	FirstName string
	LastName  string
}

// UserProvider is the single interface callers must implement to integrate
// the engine with their user database. It is consulted on refresh, when a
// rotated token needs a fresh access token minted for its owner.
//
// Returning ErrUserNotFound (or any error wrapping it) makes the refresh
// fail cleanly; any other error is treated as a backend fault.
type UserProvider interface {
	GetUserByID(ctx context.Context, userID string) (*User, error)
}

// TokenPair is returned by Issue and Refresh. AccessToken is a signed JWT,
// RefreshToken an opaque single-use value.
type TokenPair struct {
	AccessToken           string    `json:"access_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshToken          string    `json:"refresh_token"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
}
