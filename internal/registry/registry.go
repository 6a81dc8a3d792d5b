package registry

import (
	"errors"
	"fmt"
	"net/url"
	"sort"

	"github.com/dgellow/codegrant/internal/crypto"
	"github.com/dgellow/codegrant/internal/scope"
)

var (
	// ErrUnknownClient is returned by Lookup for an unregistered client_id
	ErrUnknownClient = errors.New("unknown client")

	// ErrInvalidCredentials is returned by Authenticate. It is the same error
	// whether the client is unknown or the secret is wrong.
	ErrInvalidCredentials = errors.New("invalid client credentials")
)

// RedirectMismatchError is returned when a request's redirect_uri differs
// from the registered one
type RedirectMismatchError struct {
	Expected string
	Actual   string
}

func (e *RedirectMismatchError) Error() string {
	return fmt.Sprintf("redirect_uri %q does not match the registered value", e.Actual)
}

// Client is a registered relying party
type Client struct {
	ID            string
	Name          string
	RedirectURI   string
	AllowedScopes scope.Set

	secretHash []byte
}

// ClientSpec describes a client before its secret is hashed
type ClientSpec struct {
	ID            string
	Name          string
	Secret        string
	RedirectURI   string
	AllowedScopes []string
}

// VerifyRedirectURI requires uri to be byte-for-byte the registered value
func (c *Client) VerifyRedirectURI(uri string) error {
	if uri != c.RedirectURI {
		return &RedirectMismatchError{Expected: c.RedirectURI, Actual: uri}
	}
	return nil
}

// DisplayName is the name shown on the consent page
func (c *Client) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// Registry is the static, read-only set of clients loaded at startup
type Registry struct {
	clients   map[string]*Client
	dummyHash []byte
}

// New hashes every client secret and builds the registry
func New(specs []ClientSpec) (*Registry, error) {
	r := &Registry{clients: make(map[string]*Client, len(specs))}

	for _, cs := range specs {
		if cs.ID == "" {
			return nil, errors.New("client id is required")
		}
		if _, dup := r.clients[cs.ID]; dup {
			return nil, fmt.Errorf("duplicate client %s", cs.ID)
		}
		if cs.Secret == "" {
			return nil, fmt.Errorf("client %s: secret is required", cs.ID)
		}
		if _, err := url.ParseRequestURI(cs.RedirectURI); err != nil {
			return nil, fmt.Errorf("client %s: invalid redirect uri: %w", cs.ID, err)
		}

		hash, err := crypto.HashSecret(cs.Secret)
		if err != nil {
			return nil, fmt.Errorf("client %s: hashing secret: %w", cs.ID, err)
		}

		r.clients[cs.ID] = &Client{
			ID:            cs.ID,
			Name:          cs.Name,
			RedirectURI:   cs.RedirectURI,
			AllowedScopes: scope.Of(cs.AllowedScopes...),
			secretHash:    hash,
		}
	}

	dummy, err := crypto.HashSecret("codegrant-unknown-client")
	if err != nil {
		return nil, fmt.Errorf("hashing dummy secret: %w", err)
	}
	r.dummyHash = dummy

	return r, nil
}

// Lookup resolves a client_id
func (r *Registry) Lookup(clientID string) (*Client, error) {
	c, ok := r.clients[clientID]
	if !ok {
		return nil, ErrUnknownClient
	}
	return c, nil
}

// Authenticate verifies client credentials for the token endpoint. An
// unknown client costs the same bcrypt comparison as a known one.
func (r *Registry) Authenticate(clientID, secret string) (*Client, error) {
	c, ok := r.clients[clientID]
	if !ok {
		crypto.CompareSecret(r.dummyHash, secret)
		return nil, ErrInvalidCredentials
	}
	if !crypto.CompareSecret(c.secretHash, secret) {
		return nil, ErrInvalidCredentials
	}
	return c, nil
}

// Origins returns the scheme://host of every registered redirect URI
func (r *Registry) Origins() []string {
	seen := make(map[string]struct{})
	for _, c := range r.clients {
		u, err := url.Parse(c.RedirectURI)
		if err != nil || u.Host == "" {
			continue
		}
		seen[u.Scheme+"://"+u.Host] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for o := range seen {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}

// Len reports how many clients are registered
func (r *Registry) Len() int {
	return len(r.clients)
}
