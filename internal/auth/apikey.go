// Package auth checks the API key presented by callers of the flight API.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// HeaderName is the request header carrying the API key.
const HeaderName = "X-Api-Key"

var (
	// ErrMissingKey is returned when the request carries no API key.
	ErrMissingKey = errors.New("missing api key")
	// ErrInvalidKey is returned when the API key does not match.
	ErrInvalidKey = errors.New("invalid api key")
)

// Verifier compares the API key of a request with the configured one.
type Verifier struct {
	expected [sha256.Size]byte
}

func NewVerifier(apiKey string) (*Verifier, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("api key must not be empty")
	}
	return &Verifier{expected: sha256.Sum256([]byte(apiKey))}, nil
}

// Verify returns nil, ErrMissingKey or ErrInvalidKey. Both sides are hashed
// first so the comparison takes the same time whatever the key length.
func (v *Verifier) Verify(r *http.Request) error {
	key := r.Header.Get(HeaderName)
	if key == "" {
		return ErrMissingKey
	}

	got := sha256.Sum256([]byte(key))
	if subtle.ConstantTimeCompare(got[:], v.expected[:]) != 1 {
		return ErrInvalidKey
	}
	return nil
}
