package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) issueToken(t *testing.T, scopes string) string {
	t.Helper()
	code := e.approve(t, alice, scopes)
	resp, err := e.controller.Exchange(context.Background(), tokenRequest(code))
	require.NoError(t, err)
	return resp.AccessToken
}

func TestValidateToken(t *testing.T) {
	ctx := context.Background()

	t.Run("valid token", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.issueToken(t, "profile email")

		info, err := env.controller.ValidateToken(ctx, token, "")
		require.NoError(t, err)
		assert.Equal(t, testClientID, info.ClientID)
		assert.Equal(t, alice.UserID, info.UserID)
		assert.True(t, info.Scope.Has("email"))

		// Validation does not consume the token
		_, err = env.controller.ValidateToken(ctx, token, "email")
		assert.NoError(t, err)
	})

	t.Run("unknown token", func(t *testing.T) {
		env := newTestEnv(t)
		oerr := requireOAuthError(t, mustValidateFail(env.controller.ValidateToken(ctx, "nope", "")), ErrInvalidToken)
		assert.Equal(t, http.StatusUnauthorized, oerr.HTTPStatus())
	})

	t.Run("expired token looks like unknown", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.issueToken(t, "profile")

		env.clock.Advance(time.Hour)
		expired := requireOAuthError(t, mustValidateFail(env.controller.ValidateToken(ctx, token, "")), ErrInvalidToken)
		unknown := requireOAuthError(t, mustValidateFail(env.controller.ValidateToken(ctx, "nope", "")), ErrInvalidToken)
		assert.Equal(t, unknown.Description, expired.Description)
	})

	t.Run("missing required scope", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.issueToken(t, "profile")

		oerr := requireOAuthError(t, mustValidateFail(env.controller.ValidateToken(ctx, token, "email")), ErrInsufficientScope)
		assert.Equal(t, []string{"email"}, oerr.Scopes)
		assert.Equal(t, http.StatusForbidden, oerr.HTTPStatus())
	})
}

func mustValidateFail(_ *TokenInfo, err error) error {
	return err
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer   abc ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/userinfo", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, ok := BearerToken(r)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateTokenMiddleware(t *testing.T) {
	env := newTestEnv(t)
	token := env.issueToken(t, "profile")

	var seen *TokenInfo
	handler := NewValidateTokenMiddleware(env.controller, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = TokenInfoFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("passes valid token through context", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/userinfo", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, alice.UserID, seen.UserID)
	})

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/userinfo", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, `Bearer realm="codegrant"`, rec.Header().Get("WWW-Authenticate"))
	})

	t.Run("invalid token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/userinfo", nil)
		r.Header.Set("Authorization", "Bearer forged")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
		assert.Contains(t, rec.Body.String(), `"error":"invalid_token"`)
	})
}

func TestParseTokenRequest(t *testing.T) {
	t.Run("form credentials", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/token", nil)
		r.PostForm = map[string][]string{
			"grant_type":    {"authorization_code"},
			"code":          {"c"},
			"redirect_uri":  {testRedirectURI},
			"client_id":     {testClientID},
			"client_secret": {testSecret},
		}
		req := ParseTokenRequest(r)
		assert.Equal(t, tokenRequest("c"), req)
	})

	t.Run("basic credentials win", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/token", nil)
		r.PostForm = map[string][]string{"client_id": {"form-id"}, "client_secret": {"form-secret"}}
		r.SetBasicAuth("basic%20id", "s%3Acret")
		req := ParseTokenRequest(r)
		assert.Equal(t, "basic id", req.ClientID)
		assert.Equal(t, "s:cret", req.ClientSecret)
	})
}
