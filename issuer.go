package tokenforge

import (
	"time"

	"github.com/markjoyeuxcom/tokenforge/internal"
	"github.com/markjoyeuxcom/tokenforge/jwt"
)

// Issuer mints access and refresh tokens. Signing credentials live in the
// wrapped jwt.Manager and are computed once at construction, never per call.
type Issuer struct {
	manager *jwt.Manager
}

// NewIssuer wraps a configured jwt.Manager.
func NewIssuer(manager *jwt.Manager) *Issuer {
	return &Issuer{manager: manager}
}

// IssueAccessToken signs an access token for user and returns it with its
// expiry time.
func (i *Issuer) IssueAccessToken(user User) (string, time.Time, error) {
	token, claims, err := i.issueAccess(&user)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, claims.ExpiresAt.Time, nil
}

// IssueRefreshToken returns a fresh opaque refresh value: 64 random bytes,
// base64 URL-safe without padding.
func (i *Issuer) IssueRefreshToken() (string, error) {
	return internal.NewRefreshValue()
}

func (i *Issuer) issueAccess(user *User) (string, *jwt.AccessClaims, error) {
	if user == nil {
		return "", nil, ErrNilUser
	}
	return i.manager.CreateAccess(
		user.ID,
		user.Username,
		user.Email,
		user.Role,
		user.FirstName,
		user.LastName,
	)
}
