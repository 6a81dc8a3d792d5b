package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	jsonwriter "github.com/dgellow/codegrant/internal/json"
	"github.com/dgellow/codegrant/internal/log"
	"github.com/dgellow/codegrant/internal/storage"
)

// invalidGrant hides which check failed behind one description
func invalidGrant(cause error) *Error {
	return &Error{Code: ErrInvalidGrant, Description: "Invalid authorization code", Cause: cause}
}

// Exchange redeems an authorization code for an access token. The code is
// read, checked against the authenticated client, then removed with a
// delete-if-present; only the caller whose delete succeeds gets a token.
func (c *Controller) Exchange(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	resp, err := c.exchange(ctx, req)
	if err != nil {
		oerr := AsError(err)
		c.metrics.RedemptionOutcome(string(oerr.Code))
		log.LogInfoWithFields("oauth", "Token request rejected", map[string]any{
			"client_id": req.ClientID,
			"error":     oerr.Error(),
		})
		return nil, oerr
	}
	c.metrics.RedemptionOutcome("issued")
	return resp, nil
}

func (c *Controller) exchange(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	client, err := c.clients.Authenticate(req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, &Error{Code: ErrInvalidClient, Description: "client authentication failed", Cause: err}
	}

	if req.GrantType != GrantTypeAuthorizationCode {
		return nil, NewError(ErrUnsupportedGrantType, "only grant_type=authorization_code is supported")
	}
	if req.Code == "" {
		return nil, NewError(ErrInvalidRequest, "code is required")
	}

	grant, err := c.store.GetCode(ctx, req.Code)
	if errors.Is(err, storage.ErrCodeNotFound) {
		return nil, invalidGrant(err)
	}
	if err != nil {
		return nil, serverError(fmt.Errorf("loading authorization code: %w", err))
	}

	now := c.now()
	switch {
	case grant.ClientID != client.ID:
		return nil, invalidGrant(fmt.Errorf("code issued to %s, redeemed by %s", grant.ClientID, client.ID))
	case grant.RedirectURI != req.RedirectURI:
		return nil, invalidGrant(fmt.Errorf("redirect_uri %q differs from %q", req.RedirectURI, grant.RedirectURI))
	case grant.IsExpired(now):
		// Dead either way; drop it so the store does not wait for cleanup
		if _, err := c.store.DeleteCode(ctx, req.Code); err != nil {
			log.LogWarn("Failed to evict expired code: %v", err)
		}
		return nil, invalidGrant(fmt.Errorf("code expired at %s", grant.ExpiresAt.Format("15:04:05")))
	}

	deleted, err := c.store.DeleteCode(ctx, req.Code)
	if err != nil {
		return nil, serverError(fmt.Errorf("redeeming authorization code: %w", err))
	}
	if !deleted {
		return nil, invalidGrant(errors.New("code already redeemed"))
	}

	value, err := c.generateToken()
	if err != nil {
		return nil, serverError(err)
	}

	token := &storage.AccessToken{
		Token:     value,
		ClientID:  grant.ClientID,
		UserID:    grant.UserID,
		Scope:     grant.Scope,
		IssuedAt:  now,
		ExpiresAt: now.Add(c.accessTokenTTL),
	}
	if err := c.store.PutToken(ctx, token); err != nil {
		return nil, serverError(fmt.Errorf("storing access token: %w", err))
	}

	log.LogInfoWithFields("oauth", "Access token issued", map[string]any{
		"client_id": token.ClientID,
		"user_id":   token.UserID,
		"scope":     token.Scope.String(),
	})

	return &TokenResponse{
		AccessToken: value,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int(c.accessTokenTTL.Seconds()),
		Scope:       token.Scope.String(),
	}, nil
}

// WriteTokenResponse writes a successful token response
func WriteTokenResponse(w http.ResponseWriter, resp *TokenResponse) {
	_ = jsonwriter.WriteNoStore(w, http.StatusOK, resp)
}
