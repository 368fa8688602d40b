package internal

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
)

const (
	// RefreshValueRawSize is the number of random bytes behind every refresh
	// token value. Fixed, not configurable.
	RefreshValueRawSize = 64

	// RefreshValueEncodedSize is the base64url length of an encoded value.
	RefreshValueEncodedSize = 86
)

type refreshBuf struct {
	raw [RefreshValueRawSize]byte
	enc [RefreshValueEncodedSize]byte
}

var refreshBufPool = sync.Pool{
	New: func() any { return new(refreshBuf) },
}

// NewRefreshValue returns a fresh opaque refresh token value:
// RefreshValueRawSize bytes from crypto/rand, base64url-encoded without
// padding. Scratch buffers are pooled; only the returned string allocates.
func NewRefreshValue() (string, error) {
	b := refreshBufPool.Get().(*refreshBuf)
	defer refreshBufPool.Put(b)

	if _, err := rand.Read(b.raw[:]); err != nil {
		return "", err
	}
	base64.RawURLEncoding.Encode(b.enc[:], b.raw[:])
	return string(b.enc[:]), nil
}

// WellFormedRefreshValue reports whether s has the exact shape NewRefreshValue
// produces. It says nothing about whether the value exists.
func WellFormedRefreshValue(s string) bool {
	if len(s) != RefreshValueEncodedSize {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}
