package refresh

import "time"

// Token is one opaque refresh credential. Value is the secret the client
// holds; everything else is bookkeeping. A token is spendable while it is
// neither revoked nor past its expiry.
type Token struct {
	ID          string
	Value       string
	UserID      string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Revoked     bool
	RevokedAt   *time.Time
	CreatedByIP string
	UserAgent   string
}

// Expired reports whether the token's lifetime has lapsed. The deadline
// itself counts as expired.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Valid reports whether the token can still be spent.
func (t *Token) Valid(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

func (t *Token) clone() *Token {
	out := *t
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		out.RevokedAt = &at
	}
	return &out
}
