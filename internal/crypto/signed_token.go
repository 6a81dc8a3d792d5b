package crypto

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrMalformedToken = errors.New("malformed signed token")
	ErrBadSignature   = errors.New("invalid signature")
	ErrTokenExpired   = errors.New("token expired")
)

// TokenSigner produces tamper-evident JSON payloads for values that must
// round-trip through a browser, such as the relying party's state cookie
type TokenSigner struct {
	signingKey []byte
	ttl        time.Duration
}

// NewTokenSigner creates a new token signer; ttl of zero disables expiry
func NewTokenSigner(signingKey []byte, ttl time.Duration) TokenSigner {
	return TokenSigner{
		signingKey: signingKey,
		ttl:        ttl,
	}
}

type signedEnvelope struct {
	Data      json.RawMessage `json:"data"`
	ExpiresAt time.Time       `json:"expires_at,omitzero"`
}

// Sign marshals v, wraps it with an expiry and appends an HMAC
func (ts *TokenSigner) Sign(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal data: %w", err)
	}

	env := signedEnvelope{Data: data}
	if ts.ttl != 0 {
		env.ExpiresAt = time.Now().Add(ts.ttl)
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to marshal envelope: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(payload) + "." + SignData(string(payload), ts.signingKey), nil
}

// Verify checks the signature and expiry, then unmarshals the payload into v
func (ts *TokenSigner) Verify(token string, v any) error {
	encoded, signature, ok := strings.Cut(token, ".")
	if !ok {
		return ErrMalformedToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	if !ValidateSignedData(string(payload), signature, ts.signingKey) {
		return ErrBadSignature
	}

	var env signedEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	if !env.ExpiresAt.IsZero() && time.Now().After(env.ExpiresAt) {
		return ErrTokenExpired
	}

	return json.Unmarshal(env.Data, v)
}
