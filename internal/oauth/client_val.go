package oauth

import (
	"net/http"
	"net/url"
)

// ParseTokenRequest reads a token request from a parsed form. Client
// credentials may come from HTTP Basic (RFC 6749 section 2.3.1) or from the
// form body; Basic wins when both are present.
func ParseTokenRequest(r *http.Request) TokenRequest {
	req := TokenRequest{
		GrantType:    r.PostForm.Get("grant_type"),
		Code:         r.PostForm.Get("code"),
		RedirectURI:  r.PostForm.Get("redirect_uri"),
		ClientID:     r.PostForm.Get("client_id"),
		ClientSecret: r.PostForm.Get("client_secret"),
	}

	if id, secret, ok := r.BasicAuth(); ok {
		// Basic credentials are form-urlencoded before base64 encoding
		if decoded, err := url.QueryUnescape(id); err == nil {
			id = decoded
		}
		if decoded, err := url.QueryUnescape(secret); err == nil {
			secret = decoded
		}
		req.ClientID = id
		req.ClientSecret = secret
	}

	return req
}
