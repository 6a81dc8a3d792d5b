package crypto

import (
	"crypto/subtle"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CSRFProtection issues consent-form tokens bound to a browser session.
// Tokens are nonce:timestamp:signature where the HMAC also covers the
// session ID, so a token lifted from one session never verifies in another.
type CSRFProtection struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

// NewCSRFProtection creates a new CSRF protection instance
func NewCSRFProtection(signingKey []byte, ttl time.Duration) CSRFProtection {
	return CSRFProtection{
		signingKey: signingKey,
		ttl:        ttl,
		now:        time.Now,
	}
}

// WithClock returns a copy that reads time from now
func (c CSRFProtection) WithClock(now func() time.Time) CSRFProtection {
	c.now = now
	return c
}

// Generate creates a new CSRF token for sessionID
func (c *CSRFProtection) Generate(sessionID string) (string, error) {
	nonce, err := GenerateSecureToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	signature := SignData(sessionID+":"+nonce+":"+timestamp, c.signingKey)

	return nonce + ":" + timestamp + ":" + signature, nil
}

// Validate checks that token was issued for sessionID and has not expired
func (c *CSRFProtection) Validate(sessionID, token string) bool {
	parts := strings.SplitN(token, ":", 3)
	if len(parts) != 3 {
		return false
	}

	nonce, timestampStr, signature := parts[0], parts[1], parts[2]

	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return false
	}

	if c.now().Sub(time.Unix(timestamp, 0)) > c.ttl {
		return false
	}

	return ValidateSignedData(sessionID+":"+nonce+":"+timestampStr, signature, c.signingKey)
}

// Equal compares two tokens in constant time
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
