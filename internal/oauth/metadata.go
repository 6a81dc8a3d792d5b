package oauth

import (
	"github.com/dgellow/codegrant/internal/urlutil"
)

// MetadataPath is where RFC 8414 metadata is published
const MetadataPath = "/.well-known/oauth-authorization-server"

// AuthorizationServerMetadata builds OAuth 2.0 Authorization Server Metadata per RFC 8414
// https://datatracker.ietf.org/doc/html/rfc8414
func AuthorizationServerMetadata(issuer string, scopes []string) (map[string]any, error) {
	authzEndpoint, err := urlutil.JoinPath(issuer, "authorize")
	if err != nil {
		return nil, err
	}

	tokenEndpoint, err := urlutil.JoinPath(issuer, "token")
	if err != nil {
		return nil, err
	}

	userinfoEndpoint, err := urlutil.JoinPath(issuer, "userinfo")
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"issuer":                 issuer,
		"authorization_endpoint": authzEndpoint,
		"token_endpoint":         tokenEndpoint,
		"userinfo_endpoint":      userinfoEndpoint,
		"response_types_supported": []string{
			ResponseTypeCode,
		},
		"grant_types_supported": []string{
			GrantTypeAuthorizationCode,
		},
		"token_endpoint_auth_methods_supported": []string{
			"client_secret_basic",
			"client_secret_post",
		},
		"scopes_supported": scopes,
	}, nil
}
