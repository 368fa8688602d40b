package tokenforge

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyBuilt is returned when Build is called twice on one builder.
	ErrAlreadyBuilt = errors.New("builder already built")
	// ErrMissingRepository is returned by Build when no refresh token
	// repository was supplied.
	ErrMissingRepository = errors.New("refresh token repository is required")
	// ErrMissingUsers is returned by Build when no user provider was supplied.
	ErrMissingUsers = errors.New("user provider is required")
	// ErrEngineNotReady is returned by operations on an engine that was not
	// produced by Build.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrNilManager is returned by NewValidator when Manager is nil.
	ErrNilManager = errors.New("jwt manager is required")
	// ErrNilCache is returned by NewValidator when Cache is nil.
	ErrNilCache = errors.New("cache is required")
	// ErrNilBlacklist is returned by NewValidator when Blacklist is nil.
	ErrNilBlacklist = errors.New("blacklist is required")
	// ErrInvalidResultTTL is returned when the validation result TTL is
	// negative.
	ErrInvalidResultTTL = errors.New("validation result ttl must not be negative")
	// ErrNilUser is returned by Issue when the user argument is nil.
	ErrNilUser = errors.New("user is nil")
	// ErrUserNotFound is returned by Refresh when the user behind a rotated
	// refresh token no longer exists.
	ErrUserNotFound = errors.New("user not found")
)

// ValidationKind classifies why an access token was rejected.
//
// KindUnexpected is deliberately the zero value: a rejection that was never
// explicitly classified reads as "something unforeseen", not as a benign
// expiry.
type ValidationKind uint8

const (
	// KindUnexpected covers everything the other kinds do not: claim
	// mismatches such as a wrong issuer or audience, unknown signing
	// algorithms, and internal faults.
	KindUnexpected ValidationKind = iota

	// KindExpired means the token was well-formed and correctly signed but
	// its expiry has passed. The normal end of a token's life.
	KindExpired

	// KindSignatureInvalid means the signature did not verify against the
	// configured key. Corruption or a forgery attempt.
	KindSignatureInvalid

	// KindBlacklisted means the token was revoked before its expiry, or the
	// revocation list could not be consulted. A token we cannot prove
	// not-revoked is treated as revoked.
	KindBlacklisted

	// KindMalformed means the input was not a parseable JWT at all.
	KindMalformed
)

// String returns a stable lowercase name for the kind.
func (k ValidationKind) String() string {
	switch k {
	case KindExpired:
		return "expired"
	case KindSignatureInvalid:
		return "signature_invalid"
	case KindBlacklisted:
		return "blacklisted"
	case KindMalformed:
		return "malformed"
	default:
		return "unexpected"
	}
}

// ValidationError is the error type returned by Validate when a token is
// rejected. Kind carries the classification, Err the underlying parser or
// store error when one exists.
type ValidationError struct {
	Kind ValidationKind
	Err  error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token validation failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("token validation failed (%s)", e.Kind)
}

// Unwrap exposes the underlying cause for errors.Is and errors.As.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidationKindOf extracts the classification from err. The second return
// value is false when err is not a *ValidationError.
func ValidationKindOf(err error) (ValidationKind, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Kind, true
	}
	return KindUnexpected, false
}
