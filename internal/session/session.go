// Package session keeps the browser session of the authorization server:
// a stable session ID that keys the pending authorization, and the ID of
// the logged-in user. Both live in an authenticated, encrypted cookie.
package session

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"github.com/dgellow/codegrant/internal/log"
)

const (
	// SecureCookieName carries the __Host- prefix, which browsers only accept
	// on Secure, host-only, Path=/ cookies
	SecureCookieName = "__Host-session"

	// DevCookieName is used when cookies cannot be Secure (plain-http localhost)
	DevCookieName = "session"

	// MinSecretLength is the shortest secret accepted for cookie keys
	MinSecretLength = 32

	keySessionID = "sid"
	keyUserID    = "uid"
	keyLoginAt   = "login_at"
)

// Manager loads and saves sessions
type Manager struct {
	store *sessions.CookieStore
	name  string
}

// NewManager derives separate signing and encryption keys from secret
func NewManager(secret []byte, maxAge time.Duration, secure bool) (*Manager, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes", MinSecretLength)
	}

	hashKey := sha256.Sum256(append([]byte("codegrant-session-hash:"), secret...))
	blockKey := sha256.Sum256(append([]byte("codegrant-session-block:"), secret...))

	store := sessions.NewCookieStore(hashKey[:], blockKey[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	store.MaxAge(int(maxAge.Seconds()))

	name := SecureCookieName
	if !secure {
		name = DevCookieName
	}

	return &Manager{store: store, name: name}, nil
}

// CookieName is the name of the session cookie
func (m *Manager) CookieName() string {
	return m.name
}

// Session is one browser's session state
type Session struct {
	raw *sessions.Session
}

// Get loads the request's session. A missing, expired or tampered cookie
// yields a fresh empty session.
func (m *Manager) Get(r *http.Request) *Session {
	raw, err := m.store.Get(r, m.name)
	if err != nil {
		log.LogDebugWithFields("session", "Discarding unreadable session cookie", map[string]any{
			"error": err.Error(),
		})
		raw = sessions.NewSession(m.store, m.name)
		opts := *m.store.Options
		raw.Options = &opts
	}
	return &Session{raw: raw}
}

// ID returns the session ID, assigning one if the session has none yet.
// Callers that obtain a new ID must Save the session.
func (s *Session) ID() string {
	if id, ok := s.raw.Values[keySessionID].(string); ok && id != "" {
		return id
	}
	id := uuid.NewString()
	s.raw.Values[keySessionID] = id
	return id
}

// UserID returns the logged-in user, or "" for an anonymous session
func (s *Session) UserID() string {
	id, _ := s.raw.Values[keyUserID].(string)
	return id
}

// Login binds the session to userID under a new session ID, so an ID
// planted before login cannot be reused afterwards
func (s *Session) Login(userID string, at time.Time) {
	s.raw.Values[keySessionID] = uuid.NewString()
	s.raw.Values[keyUserID] = userID
	s.raw.Values[keyLoginAt] = at.Unix()
}

// LoginTime reports when the user logged in
func (s *Session) LoginTime() (time.Time, bool) {
	ts, ok := s.raw.Values[keyLoginAt].(int64)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(ts, 0), true
}

// Clear drops all session state and expires the cookie on Save
func (s *Session) Clear() {
	for k := range s.raw.Values {
		delete(s.raw.Values, k)
	}
	s.raw.Options.MaxAge = -1
}

// Save writes the session cookie
func (s *Session) Save(w http.ResponseWriter, r *http.Request) error {
	if s.raw.Options == nil {
		return errors.New("session has no cookie options")
	}
	return s.raw.Save(r, w)
}
