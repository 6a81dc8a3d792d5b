package server

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/dgellow/codegrant/internal/identity"
	jsonwriter "github.com/dgellow/codegrant/internal/json"
	"github.com/dgellow/codegrant/internal/log"
	"github.com/dgellow/codegrant/internal/oauth"
	"github.com/dgellow/codegrant/internal/session"
)

// maxFormBytes bounds urlencoded bodies on every POST endpoint
const maxFormBytes = 64 << 10

// AuthHandlers serves the authorization server's OAuth endpoints
type AuthHandlers struct {
	controller *oauth.Controller
	sessions   *session.Manager
	users      *identity.Directory
}

// NewAuthHandlers creates new auth handlers with dependency injection
func NewAuthHandlers(controller *oauth.Controller, sessions *session.Manager, users *identity.Directory) *AuthHandlers {
	return &AuthHandlers{
		controller: controller,
		sessions:   sessions,
		users:      users,
	}
}

// currentUser resolves the session's user. A session naming a user the
// directory no longer knows is treated as logged out.
func currentUser(r *http.Request, sessions *session.Manager, users *identity.Directory) (*session.Session, *identity.User) {
	sess := sessions.Get(r)
	uid := sess.UserID()
	if uid == "" {
		return sess, nil
	}
	user, err := users.Lookup(r.Context(), uid)
	if err != nil {
		log.LogDebugWithFields("auth", "Session refers to unknown user", map[string]any{
			"user_id": uid,
		})
		return sess, nil
	}
	return sess, user
}

func callerFor(sess *session.Session, user *identity.User) oauth.Caller {
	if user == nil {
		return oauth.Caller{}
	}
	return oauth.Caller{SessionID: sess.ID(), UserID: user.ID}
}

// AuthorizeHandler validates an authorization request and shows the
// consent page, or sends the browser to log in first
func (h *AuthHandlers) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	sess, user := currentUser(r, h.sessions, h.users)
	req := oauth.ParseAuthorizeRequest(r.URL.Query())

	consent, err := h.controller.Authorize(r.Context(), callerFor(sess, user), req)
	if errors.Is(err, oauth.ErrLoginRequired) {
		target := "/login?next=" + url.QueryEscape(r.URL.RequestURI())
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	if err != nil {
		oerr := oauth.AsError(err)
		if oauth.WriteAuthorizeError(w, r, oerr) {
			return
		}
		renderOAuthError(w, oerr)
		return
	}

	renderPage(w, consentPageTemplate, http.StatusOK, ConsentPageData{
		Action:     r.URL.Path,
		ClientID:   consent.ClientID,
		ClientName: consent.ClientName,
		Username:   user.Username,
		Scopes:     scopeViews(consent.Scopes),
		CSRFToken:  consent.CSRFToken,
		ExpiresAt:  consent.ExpiresAt,
	})
}

// ConsentHandler applies the user's allow/deny decision from the consent page
func (h *AuthHandlers) ConsentHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		renderOAuthError(w, oauth.NewError(oauth.ErrInvalidRequest, "malformed form body"))
		return
	}

	var approve bool
	switch r.PostForm.Get("action") {
	case "allow":
		approve = true
	case "deny":
		approve = false
	default:
		renderOAuthError(w, oauth.NewError(oauth.ErrInvalidRequest, "action must be allow or deny"))
		return
	}

	sess, user := currentUser(r, h.sessions, h.users)
	caller := oauth.Caller{SessionID: sess.ID()}
	if user != nil {
		caller.UserID = user.ID
	}

	redirect, err := h.controller.Decide(r.Context(), caller, oauth.Decision{
		CSRFToken: r.PostForm.Get("csrf_token"),
		Approve:   approve,
	})
	if err != nil {
		renderOAuthError(w, oauth.AsError(err))
		return
	}

	http.Redirect(w, r, redirect, http.StatusFound)
}

// TokenHandler exchanges an authorization code for an access token
func (h *AuthHandlers) TokenHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		oauth.WriteTokenError(w, oauth.NewError(oauth.ErrInvalidRequest, "malformed form body"))
		return
	}

	resp, err := h.controller.Exchange(r.Context(), oauth.ParseTokenRequest(r))
	if err != nil {
		oauth.WriteTokenError(w, oauth.AsError(err))
		return
	}
	oauth.WriteTokenResponse(w, resp)
}

// UserInfoHandler returns the claims the bearer token's scopes allow. It
// runs behind oauth.NewValidateTokenMiddleware.
func (h *AuthHandlers) UserInfoHandler(w http.ResponseWriter, r *http.Request) {
	info, ok := oauth.TokenInfoFromContext(r.Context())
	if !ok {
		oauth.WriteBearerError(w, oauth.NewError(oauth.ErrInvalidToken, "invalid or expired access token"))
		return
	}

	user, err := h.users.Lookup(r.Context(), info.UserID)
	if err != nil {
		log.LogWarnWithFields("auth", "Token refers to unknown user", map[string]any{
			"user_id":   info.UserID,
			"client_id": info.ClientID,
		})
		oauth.WriteBearerError(w, oauth.NewError(oauth.ErrInvalidToken, "invalid or expired access token"))
		return
	}

	_ = jsonwriter.WriteNoStore(w, http.StatusOK, user.Claims(info.Scope))
}
