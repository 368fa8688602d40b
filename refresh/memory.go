package refresh

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository keeps tokens in a mutex-guarded map. Suitable for tests,
// examples, and single-process deployments; rotation atomicity comes from
// the lock.
type MemoryRepository struct {
	mu      sync.Mutex
	byValue map[string]*Token
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byValue: make(map[string]*Token)}
}

func (r *MemoryRepository) Add(_ context.Context, token *Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byValue[token.Value]; exists {
		return ErrDuplicateValue
	}
	r.byValue[token.Value] = token.clone()
	return nil
}

func (r *MemoryRepository) FindByValue(_ context.Context, value string) (*Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.byValue[value]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return token.clone(), nil
}

func (r *MemoryRepository) Revoke(_ context.Context, value string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.byValue[value]
	if !ok {
		return ErrTokenNotFound
	}
	if token.Revoked {
		return nil
	}
	token.Revoked = true
	at = at.UTC()
	token.RevokedAt = &at
	return nil
}

func (r *MemoryRepository) Rotate(_ context.Context, oldValue string, at time.Time, next *Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byValue[oldValue]
	if !ok {
		return ErrTokenNotFound
	}
	if current.Revoked {
		return ErrRotationConflict
	}
	if _, exists := r.byValue[next.Value]; exists {
		return ErrDuplicateValue
	}

	current.Revoked = true
	at = at.UTC()
	current.RevokedAt = &at
	r.byValue[next.Value] = next.clone()
	return nil
}

// Len reports the number of stored tokens, revoked ones included.
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byValue)
}
