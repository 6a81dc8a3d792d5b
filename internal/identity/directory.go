// Package identity is the user directory behind the login page. It plays
// the identity-provider role for the authorization flow: the flow only
// ever sees a user's ID.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dgellow/codegrant/internal/crypto"
	"github.com/dgellow/codegrant/internal/emailutil"
	"github.com/dgellow/codegrant/internal/scope"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username already registered")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("invalid email address")
)

// User is an account that can log in and consent
type User struct {
	// ID is a random UUID and doubles as the OIDC-style subject
	ID            string
	Username      string
	Email         string
	EmailVerified bool

	passwordHash []byte
}

// Claims projects the user onto the claims licensed by granted. Identity
// claims are always present; email claims require the email scope.
func (u *User) Claims(granted scope.Set) map[string]any {
	claims := map[string]any{
		"sub":      u.ID,
		"username": u.Username,
	}
	if granted.Has("email") && u.Email != "" {
		claims["email"] = u.Email
		claims["email_verified"] = u.EmailVerified
	}
	return claims
}

// Seed describes a user loaded from configuration. Exactly one of Password
// and PasswordHash is set.
type Seed struct {
	Username      string
	Password      string
	PasswordHash  string
	Email         string
	EmailVerified bool
}

// Directory is an in-memory user store
type Directory struct {
	mu         sync.RWMutex
	byID       map[string]*User
	byUsername map[string]*User
	byEmail    map[string]*User
	dummyHash  []byte
}

func NewDirectory() *Directory {
	dummy, _ := crypto.HashSecret("codegrant-no-such-user")
	return &Directory{
		byID:       make(map[string]*User),
		byUsername: make(map[string]*User),
		byEmail:    make(map[string]*User),
		dummyHash:  dummy,
	}
}

// Seed adds configured users
func (d *Directory) Seed(seeds []Seed) error {
	for _, s := range seeds {
		hash := []byte(s.PasswordHash)
		if len(hash) == 0 {
			var err error
			if hash, err = crypto.HashSecret(s.Password); err != nil {
				return fmt.Errorf("user %s: hashing password: %w", s.Username, err)
			}
		}
		if _, err := d.add(s.Username, s.Email, s.EmailVerified, hash); err != nil {
			return fmt.Errorf("user %s: %w", s.Username, err)
		}
	}
	return nil
}

// Register creates a new account with an unverified email
func (d *Directory) Register(_ context.Context, username, password, email string) (*User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}
	if email != "" && !emailutil.Valid(email) {
		return nil, ErrInvalidEmail
	}

	hash, err := crypto.HashSecret(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	return d.add(username, email, false, hash)
}

func (d *Directory) add(username, email string, verified bool, hash []byte) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byUsername[username]; ok {
		return nil, ErrUsernameTaken
	}
	key := emailutil.Normalize(email)
	if email != "" {
		if _, ok := d.byEmail[key]; ok {
			return nil, ErrEmailTaken
		}
	}

	u := &User{
		ID:            uuid.NewString(),
		Username:      username,
		Email:         email,
		EmailVerified: verified,
		passwordHash:  hash,
	}
	d.byID[u.ID] = u
	d.byUsername[username] = u
	if email != "" {
		d.byEmail[key] = u
	}
	return u, nil
}

// Authenticate checks a username and password. Unknown users cost the same
// bcrypt comparison as a wrong password.
func (d *Directory) Authenticate(_ context.Context, username, password string) (*User, error) {
	d.mu.RLock()
	u, ok := d.byUsername[username]
	d.mu.RUnlock()

	if !ok {
		crypto.CompareSecret(d.dummyHash, password)
		return nil, ErrInvalidCredentials
	}
	if !crypto.CompareSecret(u.passwordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Lookup returns the user with the given ID
func (d *Directory) Lookup(_ context.Context, id string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}
