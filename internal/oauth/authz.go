package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dgellow/codegrant/internal/crypto"
	"github.com/dgellow/codegrant/internal/log"
	"github.com/dgellow/codegrant/internal/metrics"
	"github.com/dgellow/codegrant/internal/registry"
	"github.com/dgellow/codegrant/internal/scope"
	"github.com/dgellow/codegrant/internal/storage"
)

// ClientRegistry resolves and authenticates registered clients
type ClientRegistry interface {
	Lookup(clientID string) (*registry.Client, error)
	Authenticate(clientID, secret string) (*registry.Client, error)
}

// ControllerConfig holds lifetimes and the key that signs CSRF tokens
type ControllerConfig struct {
	CSRFKey        []byte
	CodeLifespan   time.Duration
	AccessTokenTTL time.Duration
	ConsentTTL     time.Duration
}

// Controller drives an authorization from the authorize request through
// consent, code issuance, redemption and token validation
type Controller struct {
	clients ClientRegistry
	policy  *scope.Policy
	store   storage.Storage
	csrf    crypto.CSRFProtection
	metrics *metrics.Metrics

	codeLifespan   time.Duration
	accessTokenTTL time.Duration
	consentTTL     time.Duration

	now           func() time.Time
	generateToken func() (string, error)
}

type Option func(*Controller)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithMetrics records flow outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithTokenGenerator replaces the random code and token source
func WithTokenGenerator(gen func() (string, error)) Option {
	return func(c *Controller) {
		c.generateToken = gen
	}
}

func NewController(cfg ControllerConfig, clients ClientRegistry, policy *scope.Policy, store storage.Storage, opts ...Option) (*Controller, error) {
	if len(cfg.CSRFKey) < 32 {
		return nil, fmt.Errorf("CSRF key must be at least 32 bytes, got %d", len(cfg.CSRFKey))
	}
	if cfg.CodeLifespan == 0 {
		cfg.CodeLifespan = 10 * time.Minute
	}
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = time.Hour
	}
	if cfg.ConsentTTL == 0 {
		cfg.ConsentTTL = 10 * time.Minute
	}

	c := &Controller{
		clients:        clients,
		policy:         policy,
		store:          store,
		codeLifespan:   cfg.CodeLifespan,
		accessTokenTTL: cfg.AccessTokenTTL,
		consentTTL:     cfg.ConsentTTL,
		now:            time.Now,
		generateToken:  crypto.GenerateSecureToken,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.csrf = crypto.NewCSRFProtection(cfg.CSRFKey, cfg.ConsentTTL).WithClock(c.now)

	return c, nil
}

// Authorize validates an authorize request and, on success, parks it as the
// session's pending authorization behind a fresh CSRF token.
//
// Checks run in a fixed order: login, response_type, client, redirect_uri,
// scope. Errors carry a redirect target only after client and redirect_uri
// have both verified.
func (c *Controller) Authorize(ctx context.Context, caller Caller, req AuthorizeRequest) (*Consent, error) {
	if !caller.Authenticated() {
		return nil, ErrLoginRequired
	}

	consent, err := c.authorize(ctx, caller, req)
	if err != nil {
		oerr := AsError(err)
		c.metrics.AuthorizeOutcome(string(oerr.Code))
		log.LogInfoWithFields("oauth", "Authorize request rejected", map[string]any{
			"client_id":  req.ClientID,
			"error":      string(oerr.Code),
			"redirected": oerr.Redirectable(),
			"scopes":     oerr.Scopes,
		})
		return nil, oerr
	}

	c.metrics.AuthorizeOutcome("consent")
	return consent, nil
}

func (c *Controller) authorize(ctx context.Context, caller Caller, req AuthorizeRequest) (*Consent, error) {
	if req.ResponseType != ResponseTypeCode {
		oerr := NewError(ErrUnsupportedResponseType, "only response_type=code is supported")
		c.attachVerifiedRedirect(oerr, req)
		return nil, oerr
	}

	client, err := c.clients.Lookup(req.ClientID)
	if err != nil {
		return nil, &Error{Code: ErrUnauthorizedClient, Description: "unknown client", Cause: err}
	}

	if err := client.VerifyRedirectURI(req.RedirectURI); err != nil {
		var mismatch *registry.RedirectMismatchError
		if !errors.As(err, &mismatch) {
			return nil, serverError(err)
		}
		return nil, &Error{
			Code:                ErrInvalidRedirectURI,
			Description:         "redirect_uri does not match the registered value",
			ExpectedRedirectURI: mismatch.Expected,
			ActualRedirectURI:   mismatch.Actual,
			Cause:               err,
		}
	}

	granted, err := c.policy.Validate(req.Scope, client.AllowedScopes)
	if err != nil {
		oerr := scopeError(err)
		oerr.RedirectURI = client.RedirectURI
		oerr.State = req.State
		return nil, oerr
	}

	csrfToken, err := c.csrf.Generate(caller.SessionID)
	if err != nil {
		return nil, serverError(err)
	}

	now := c.now()
	pending := &storage.PendingAuthorization{
		ResponseType: req.ResponseType,
		ClientID:     client.ID,
		RedirectURI:  client.RedirectURI,
		Scope:        granted,
		State:        req.State,
		CSRFToken:    csrfToken,
		UserID:       caller.UserID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(c.consentTTL),
	}
	if err := c.store.PutPending(ctx, caller.SessionID, pending); err != nil {
		return nil, serverError(fmt.Errorf("storing pending authorization: %w", err))
	}

	log.LogDebugWithFields("oauth", "Awaiting consent", map[string]any{
		"client_id": client.ID,
		"user_id":   caller.UserID,
		"scope":     granted.String(),
	})

	return &Consent{
		ClientID:   client.ID,
		ClientName: client.DisplayName(),
		Scopes:     granted.Slice(),
		State:      req.State,
		CSRFToken:  csrfToken,
		ExpiresAt:  pending.ExpiresAt,
	}, nil
}

// attachVerifiedRedirect lets a request-shape error go back to the client,
// but only when the client exists and the redirect_uri is its registered one
func (c *Controller) attachVerifiedRedirect(oerr *Error, req AuthorizeRequest) {
	client, err := c.clients.Lookup(req.ClientID)
	if err != nil {
		return
	}
	if client.VerifyRedirectURI(req.RedirectURI) != nil {
		return
	}
	oerr.RedirectURI = client.RedirectURI
	oerr.State = req.State
}

func scopeError(err error) *Error {
	var unknown *scope.UnknownError
	var denied *scope.NotAllowedError
	var empty *scope.EmptyError

	switch {
	case errors.As(err, &unknown):
		return &Error{Code: ErrInvalidScope, Description: unknown.Error(), Scopes: unknown.Scopes, Cause: err}
	case errors.As(err, &denied):
		return &Error{Code: ErrInsufficientScope, Description: denied.Error(), Scopes: denied.Scopes, Cause: err}
	case errors.As(err, &empty):
		return &Error{Code: ErrInvalidScope, Description: empty.Error(), Cause: err}
	default:
		return serverError(err)
	}
}

// csrfError is the single rejection for every consent submission failure
func csrfError(cause error) *Error {
	return &Error{Code: ErrInvalidCSRF, Description: "invalid or expired consent request", Cause: cause}
}

// Decide applies the user's consent decision and returns the URL to send
// the browser to. The session's pending authorization is removed before
// anything is checked, so a CSRF token can be presented once.
func (c *Controller) Decide(ctx context.Context, caller Caller, d Decision) (string, error) {
	redirect, err := c.decide(ctx, caller, d)
	if err != nil {
		oerr := AsError(err)
		c.metrics.ConsentDecision(string(oerr.Code))
		log.LogWarnWithFields("oauth", "Consent submission rejected", map[string]any{
			"user_id": caller.UserID,
			"error":   oerr.Error(),
		})
		return "", oerr
	}
	return redirect, nil
}

func (c *Controller) decide(ctx context.Context, caller Caller, d Decision) (string, error) {
	pending, err := c.store.TakePending(ctx, caller.SessionID)
	if errors.Is(err, storage.ErrPendingNotFound) {
		return "", csrfError(err)
	}
	if err != nil {
		return "", serverError(fmt.Errorf("loading pending authorization: %w", err))
	}

	switch {
	case d.CSRFToken == "":
		return "", csrfError(errors.New("csrf token missing"))
	case pending.IsExpired(c.now()):
		return "", csrfError(errors.New("pending authorization expired"))
	case !c.csrf.Validate(caller.SessionID, d.CSRFToken):
		return "", csrfError(errors.New("csrf token signature or age invalid"))
	case !crypto.Equal(d.CSRFToken, pending.CSRFToken):
		return "", csrfError(errors.New("csrf token does not match pending authorization"))
	case caller.UserID == "" || caller.UserID != pending.UserID:
		return "", csrfError(errors.New("session user changed since the authorize request"))
	}

	if !d.Approve {
		c.metrics.ConsentDecision("deny")
		log.LogInfoWithFields("oauth", "Consent denied", map[string]any{
			"client_id": pending.ClientID,
			"user_id":   pending.UserID,
		})
		params := url.Values{"error": {string(ErrAccessDenied)}}
		if pending.State != "" {
			params.Set("state", pending.State)
		}
		return appendQuery(pending.RedirectURI, params)
	}

	code, err := c.generateToken()
	if err != nil {
		return "", serverError(err)
	}

	now := c.now()
	grant := &storage.AuthorizationCode{
		Code:        code,
		ClientID:    pending.ClientID,
		UserID:      pending.UserID,
		RedirectURI: pending.RedirectURI,
		Scope:       pending.Scope,
		IssuedAt:    now,
		ExpiresAt:   now.Add(c.codeLifespan),
	}
	if err := c.store.PutCode(ctx, grant); err != nil {
		return "", serverError(fmt.Errorf("storing authorization code: %w", err))
	}

	c.metrics.ConsentDecision("allow")
	c.metrics.CodeIssued()
	log.LogInfoWithFields("oauth", "Authorization code issued", map[string]any{
		"client_id": grant.ClientID,
		"user_id":   grant.UserID,
		"scope":     grant.Scope.String(),
		"code":      log.Redact(code),
	})

	params := url.Values{"code": {code}}
	if pending.State != "" {
		params.Set("state", pending.State)
	}
	return appendQuery(pending.RedirectURI, params)
}
