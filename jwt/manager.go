package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMissingKey   = errors.New("jwt: signing key required")
	ErrInvalidTTL   = errors.New("jwt: access ttl must be positive")
	ErrEmptySubject = errors.New("jwt: empty subject")
)

// Config carries the immutable signing parameters. TimeFunc defaults to
// time.Now and drives both issuance timestamps and expiry checks; expiry is
// evaluated with zero clock skew in all cases.
type Config struct {
	AccessTTL  time.Duration
	SigningKey []byte
	Issuer     string
	Audience   string
	TimeFunc   func() time.Time
}

// AccessClaims is the access token payload. Subject carries the user ID and
// ID the token identifier (jti); name claims are omitted when empty.
type AccessClaims struct {
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	FirstName string `json:"given_name,omitempty"`
	LastName  string `json:"family_name,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs and verifies access tokens. Safe for concurrent use; all
// derived state is built in NewManager and never mutated.
type Manager struct {
	config  Config
	method  jwt.SigningMethod
	signKey any
	parser  *jwt.Parser
	keyFunc jwt.Keyfunc
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, ErrInvalidTTL
	}
	if len(cfg.SigningKey) == 0 {
		return nil, ErrMissingKey
	}
	if cfg.TimeFunc == nil {
		cfg.TimeFunc = time.Now
	}

	method := jwt.SigningMethodHS256

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(cfg.TimeFunc),
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		options = append(options, jwt.WithAudience(cfg.Audience))
	}

	m := &Manager{
		config:  cfg,
		method:  method,
		signKey: cfg.SigningKey,
		parser:  jwt.NewParser(options...),
	}
	m.keyFunc = func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.signKey, nil
	}

	return m, nil
}

// AccessTTL returns the configured token lifetime.
func (j *Manager) AccessTTL() time.Duration {
	return j.config.AccessTTL
}

// Now returns the manager's clock reading.
func (j *Manager) Now() time.Time {
	return j.config.TimeFunc()
}

// CreateAccess signs a token for the given user fields and returns the
// compact form together with the claims it carries. The jti is a fresh UUID.
func (j *Manager) CreateAccess(uid, username, email, role, firstName, lastName string) (string, *AccessClaims, error) {
	if uid == "" {
		return "", nil, ErrEmptySubject
	}

	now := j.config.TimeFunc()
	claims := &AccessClaims{
		Username:  username,
		Email:     email,
		Role:      role,
		FirstName: firstName,
		LastName:  lastName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.config.AccessTTL)),
			Issuer:    j.config.Issuer,
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	token := jwt.NewWithClaims(j.method, claims)
	signed, err := token.SignedString(j.signKey)
	if err != nil {
		return "", nil, err
	}

	return signed, claims, nil
}

// ParseAccess verifies signature, issuer, audience, and expiry (zero skew)
// and returns the claims. Failures surface the underlying jwt errors so
// callers can classify with errors.Is.
func (j *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	token, err := j.parser.ParseWithClaims(tokenStr, &AccessClaims{}, j.keyFunc)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}
