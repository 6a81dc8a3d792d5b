package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dgellow/codegrant/internal/storage"
)

type contextKey string

// tokenInfoContextKey is the context key for the validated token
const tokenInfoContextKey contextKey = "token_info"

// TokenInfoFromContext returns the token validated by NewValidateTokenMiddleware
func TokenInfoFromContext(ctx context.Context) (*TokenInfo, bool) {
	info, ok := ctx.Value(tokenInfoContextKey).(*TokenInfo)
	return info, ok
}

// WithTokenInfo stores a validated token in ctx
func WithTokenInfo(ctx context.Context, info *TokenInfo) context.Context {
	return context.WithValue(ctx, tokenInfoContextKey, info)
}

// ValidateToken resolves a bearer token. Unknown and expired tokens get the
// same invalid_token error. A non-empty requiredScope must be in the
// token's scope set.
func (c *Controller) ValidateToken(ctx context.Context, token, requiredScope string) (*TokenInfo, error) {
	info, err := c.validateToken(ctx, token, requiredScope)
	if err != nil {
		oerr := AsError(err)
		c.metrics.ValidationOutcome(string(oerr.Code))
		return nil, oerr
	}
	c.metrics.ValidationOutcome("valid")
	return info, nil
}

func (c *Controller) validateToken(ctx context.Context, token, requiredScope string) (*TokenInfo, error) {
	invalid := func(cause error) *Error {
		return &Error{Code: ErrInvalidToken, Description: "invalid or expired access token", Cause: cause}
	}

	if token == "" {
		return nil, invalid(errors.New("empty token"))
	}

	stored, err := c.store.GetToken(ctx, token)
	if errors.Is(err, storage.ErrTokenNotFound) {
		return nil, invalid(err)
	}
	if err != nil {
		return nil, serverError(fmt.Errorf("loading access token: %w", err))
	}
	if stored.IsExpired(c.now()) {
		return nil, invalid(errors.New("token expired"))
	}

	if requiredScope != "" && !stored.Scope.Has(requiredScope) {
		return nil, &Error{
			Code:        ErrInsufficientScope,
			Description: fmt.Sprintf("token lacks scope %s", requiredScope),
			Scopes:      []string{requiredScope},
		}
	}

	return &TokenInfo{
		ClientID:  stored.ClientID,
		UserID:    stored.UserID,
		Scope:     stored.Scope,
		ExpiresAt: stored.ExpiresAt,
	}, nil
}

// BearerToken extracts the token from an Authorization: Bearer header
func BearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// NewValidateTokenMiddleware rejects requests without a valid bearer token
// and makes the token available through TokenInfoFromContext
func NewValidateTokenMiddleware(c *Controller, requiredScope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				// RFC 6750 section 3.1: no error code when credentials are absent
				w.Header().Set("WWW-Authenticate", `Bearer realm="codegrant"`)
				WriteTokenError(w, NewError(ErrInvalidToken, "missing bearer token"))
				return
			}

			info, err := c.ValidateToken(r.Context(), token, requiredScope)
			if err != nil {
				WriteBearerError(w, AsError(err))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithTokenInfo(r.Context(), info)))
		})
	}
}
