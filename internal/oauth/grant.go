package oauth

import (
	"net/url"
	"time"

	"github.com/dgellow/codegrant/internal/scope"
)

const (
	ResponseTypeCode           = "code"
	GrantTypeAuthorizationCode = "authorization_code"
	TokenTypeBearer            = "bearer"
)

// Caller is what the identity provider knows about the browser making a
// request: its session and, once logged in, the user
type Caller struct {
	SessionID string
	UserID    string
}

// Authenticated reports whether the caller has logged in
func (c Caller) Authenticated() bool {
	return c.UserID != ""
}

// AuthorizeRequest carries the authorize endpoint's query parameters
type AuthorizeRequest struct {
	ResponseType string
	ClientID     string
	RedirectURI  string
	Scope        string
	State        string
}

// ParseAuthorizeRequest reads an authorize request from query parameters
func ParseAuthorizeRequest(q url.Values) AuthorizeRequest {
	return AuthorizeRequest{
		ResponseType: q.Get("response_type"),
		ClientID:     q.Get("client_id"),
		RedirectURI:  q.Get("redirect_uri"),
		Scope:        q.Get("scope"),
		State:        q.Get("state"),
	}
}

// Consent is what the consent page needs to show and submit
type Consent struct {
	ClientID   string
	ClientName string
	Scopes     []string
	State      string
	CSRFToken  string
	ExpiresAt  time.Time
}

// Decision is the user's answer on the consent page
type Decision struct {
	CSRFToken string
	Approve   bool
}

// TokenRequest carries the token endpoint's form parameters
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
}

// TokenResponse is the successful token endpoint body
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// TokenInfo is what a resource server learns from a valid bearer token
type TokenInfo struct {
	ClientID  string
	UserID    string
	Scope     scope.Set
	ExpiresAt time.Time
}
