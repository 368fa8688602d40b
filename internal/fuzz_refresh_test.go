package internal

import (
	"testing"
)

// FuzzWellFormedRefreshValue exercises the shape check with arbitrary strings.
// Goal: no panics; acceptance implies exact generator shape.
func FuzzWellFormedRefreshValue(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add("!!!not-base64!!!")
	f.Add("aGVsbG8=")

	if v, err := NewRefreshValue(); err == nil {
		f.Add(v)
	}

	f.Fuzz(func(t *testing.T, input string) {
		ok := WellFormedRefreshValue(input)
		if !ok {
			return
		}
		if len(input) != RefreshValueEncodedSize {
			t.Fatalf("accepted value with length %d", len(input))
		}
		// Fingerprinting any accepted value must be total.
		if fp := Fingerprint(input); fp == "" {
			t.Fatal("empty fingerprint for accepted value")
		}
	})
}
