// Package auth guards the contractbot HTTP API with a bearer key and
// per-client rate limits.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var (
	errMissingHeader = errors.New("missing Authorization header")
	errBadScheme     = errors.New("invalid Authorization format, expected 'Bearer <key>'")
)

// ValidateKey performs a timing-safe comparison of provided against
// expected. An empty expected key never matches.
func ValidateKey(provided, expected string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", errMissingHeader
	}
	const prefix = "Bearer "
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", errBadScheme
	}
	return strings.TrimSpace(h[len(prefix):]), nil
}
