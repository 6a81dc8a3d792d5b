package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dgellow/codegrant/internal/scope"
)

var (
	// ErrCodeNotFound is returned when an authorization code doesn't exist
	ErrCodeNotFound = errors.New("authorization code not found")

	// ErrTokenNotFound is returned when an access token doesn't exist
	ErrTokenNotFound = errors.New("access token not found")

	// ErrPendingNotFound is returned when a session has no pending authorization
	ErrPendingNotFound = errors.New("no pending authorization")
)

// AuthorizationCode is the single-use credential minted after consent
type AuthorizationCode struct {
	Code        string    `json:"code"`
	ClientID    string    `json:"client_id"`
	UserID      string    `json:"user_id"`
	RedirectURI string    `json:"redirect_uri"`
	Scope       scope.Set `json:"scope"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IsExpired reports whether the code is dead at now
func (c *AuthorizationCode) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// AccessToken is a bearer credential returned by the token endpoint
type AccessToken struct {
	Token     string    `json:"token"`
	ClientID  string    `json:"client_id"`
	UserID    string    `json:"user_id"`
	Scope     scope.Set `json:"scope"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the token is dead at now
func (t *AccessToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// PendingAuthorization is the validated authorize request waiting for the
// user's consent. A session holds at most one.
type PendingAuthorization struct {
	ResponseType string    `json:"response_type"`
	ClientID     string    `json:"client_id"`
	RedirectURI  string    `json:"redirect_uri"`
	Scope        scope.Set `json:"scope"`
	State        string    `json:"state,omitempty"`
	CSRFToken    string    `json:"csrf_token"`
	UserID       string    `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// IsExpired reports whether the consent window has closed at now
func (p *PendingAuthorization) IsExpired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// CodeStore holds authorization codes. DeleteCode is the indivisible
// check-and-delete used for redemption: among concurrent callers for the
// same code exactly one observes deleted == true.
type CodeStore interface {
	PutCode(ctx context.Context, code *AuthorizationCode) error
	GetCode(ctx context.Context, code string) (*AuthorizationCode, error)
	DeleteCode(ctx context.Context, code string) (deleted bool, err error)
}

// TokenStore holds issued access tokens
type TokenStore interface {
	PutToken(ctx context.Context, token *AccessToken) error
	GetToken(ctx context.Context, token string) (*AccessToken, error)
}

// PendingStore holds the per-session pending authorization. PutPending
// replaces whatever the session held; TakePending returns and removes it.
type PendingStore interface {
	PutPending(ctx context.Context, sessionID string, pending *PendingAuthorization) error
	TakePending(ctx context.Context, sessionID string) (*PendingAuthorization, error)
}

// Storage combines every store the authorization server needs.
// Expired records may still be returned; callers check expiry at read time.
type Storage interface {
	CodeStore
	TokenStore
	PendingStore

	// CleanupExpired drops expired records and reports how many were removed
	CleanupExpired(ctx context.Context) (int, error)

	Close() error
}
