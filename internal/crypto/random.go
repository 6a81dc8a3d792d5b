package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// TokenBytes is the entropy of every generated code, token and nonce
const TokenBytes = 32

// GenerateSecureToken creates a cryptographically secure random token.
// The result is base64 URL-encoded without padding so it can travel in
// query strings untouched. Used for authorization codes, access tokens
// and CSRF nonces.
func GenerateSecureToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashSecret hashes a client secret or user password using bcrypt
func HashSecret(secret string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
}

// CompareSecret reports whether secret matches the bcrypt hash
func CompareSecret(hash []byte, secret string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(secret)) == nil
}
