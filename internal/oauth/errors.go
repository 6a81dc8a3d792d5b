package oauth

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	jsonwriter "github.com/dgellow/codegrant/internal/json"
)

// ErrorCode is the closed set of error kinds the authorization server reports
type ErrorCode string

const (
	ErrInvalidRequest          ErrorCode = "invalid_request"
	ErrUnauthorizedClient      ErrorCode = "unauthorized_client"
	ErrAccessDenied            ErrorCode = "access_denied"
	ErrUnsupportedResponseType ErrorCode = "unsupported_response_type"
	ErrInvalidScope            ErrorCode = "invalid_scope"
	ErrInsufficientScope       ErrorCode = "insufficient_scope"
	ErrInvalidRedirectURI      ErrorCode = "invalid_redirect_uri"
	ErrServerError             ErrorCode = "server_error"
	ErrInvalidGrant            ErrorCode = "invalid_grant"
	ErrInvalidClient           ErrorCode = "invalid_client"
	ErrUnsupportedGrantType    ErrorCode = "unsupported_grant_type"
	ErrInvalidToken            ErrorCode = "invalid_token"
	ErrInvalidCSRF             ErrorCode = "invalid_csrf_token"
)

// ErrLoginRequired is returned by Authorize when the caller has no
// authenticated session. It is a redirect to the login page, not an OAuth error.
var ErrLoginRequired = errors.New("login required")

// Error is a typed rejection of one request. Only Code and Description
// reach the wire; the rest is for branching and logging.
type Error struct {
	Code        ErrorCode `json:"error"`
	Description string    `json:"error_description,omitempty"`

	// Scopes names the offending scopes for invalid_scope and insufficient_scope
	Scopes []string `json:"-"`

	// ExpectedRedirectURI and ActualRedirectURI describe an invalid_redirect_uri
	ExpectedRedirectURI string `json:"-"`
	ActualRedirectURI   string `json:"-"`

	// RedirectURI is set only once the client and its redirect_uri have been
	// verified. An empty value means the error must be rendered in-service.
	RedirectURI string `json:"-"`
	State       string `json:"-"`

	// Cause is the internal reason, never shown to the caller
	Cause error `json:"-"`
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Description != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Redirectable reports whether the error may be sent to the client's redirect_uri
func (e *Error) Redirectable() bool {
	return e.RedirectURI != ""
}

// HTTPStatus maps the error kind to the status used when it is rendered directly
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case ErrInvalidClient, ErrInvalidToken:
		return http.StatusUnauthorized
	case ErrInsufficientScope, ErrAccessDenied, ErrInvalidCSRF:
		return http.StatusForbidden
	case ErrServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func NewError(code ErrorCode, description string) *Error {
	return &Error{Code: code, Description: description}
}

// serverError wraps an unexpected failure without leaking its text
func serverError(cause error) *Error {
	return &Error{Code: ErrServerError, Description: "internal error", Cause: cause}
}

// AsError extracts an *Error from err. Anything else becomes server_error.
func AsError(err error) *Error {
	var oerr *Error
	if errors.As(err, &oerr) {
		return oerr
	}
	return serverError(err)
}

// WriteAuthorizeError redirects an authorize-endpoint error to the client.
// It returns false without writing anything when the error carries no
// verified redirect target; the caller must render it in-service.
func WriteAuthorizeError(w http.ResponseWriter, r *http.Request, oauthErr *Error) bool {
	if !oauthErr.Redirectable() {
		return false
	}

	params := url.Values{}
	params.Set("error", string(oauthErr.Code))
	if oauthErr.Description != "" {
		params.Set("error_description", oauthErr.Description)
	}
	if oauthErr.State != "" {
		params.Set("state", oauthErr.State)
	}

	target, err := appendQuery(oauthErr.RedirectURI, params)
	if err != nil {
		return false
	}

	http.Redirect(w, r, target, http.StatusFound)
	return true
}

// WriteTokenError writes a token-endpoint error as JSON
func WriteTokenError(w http.ResponseWriter, oauthErr *Error) {
	status := oauthErr.HTTPStatus()
	if oauthErr.Code == ErrInvalidClient {
		w.Header().Set("WWW-Authenticate", `Basic realm="codegrant"`)
	}
	writeJSONError(w, status, oauthErr)
}

// WriteBearerError writes a protected-resource error with an RFC 6750 challenge
func WriteBearerError(w http.ResponseWriter, oauthErr *Error) {
	challenge := fmt.Sprintf(`Bearer realm="codegrant", error=%q`, oauthErr.Code)
	if oauthErr.Description != "" {
		challenge += fmt.Sprintf(`, error_description=%q`, oauthErr.Description)
	}
	w.Header().Set("WWW-Authenticate", challenge)
	writeJSONError(w, oauthErr.HTTPStatus(), oauthErr)
}

func writeJSONError(w http.ResponseWriter, status int, oauthErr *Error) {
	_ = jsonwriter.WriteNoStore(w, status, oauthErr)
}

// appendQuery adds params to raw, keeping any query the registered URI already has
func appendQuery(raw string, params url.Values) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
