// Package relyingparty is a small client application that signs users in
// through the authorization server: it redirects to /authorize, checks the
// returned state, exchanges the code and reads /userinfo.
package relyingparty

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"

	"github.com/dgellow/codegrant/internal/cookie"
	"github.com/dgellow/codegrant/internal/crypto"
	"github.com/dgellow/codegrant/internal/ioutil"
	"github.com/dgellow/codegrant/internal/log"
	"github.com/dgellow/codegrant/internal/urlutil"
)

// Defaults match the client registered in the generated server config
const (
	DefaultServerURL   = "http://localhost:8000"
	DefaultClientID    = "client123"
	DefaultRedirectURL = "http://localhost:8001/auth/callback"
	DefaultScope       = "profile email"

	stateTTL = 10 * time.Minute
)

//go:embed templates/page.html
var pageHTML string

var pageTemplate = template.Must(template.New("page").Parse(pageHTML))

// Config describes the client's registration with the authorization server
type Config struct {
	ServerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// StateKey signs the state cookie; a random key is used when empty
	StateKey []byte
	// HTTPClient makes the token and userinfo calls; defaults to a client
	// with a 10 second timeout
	HTTPClient *http.Client
}

// App serves the client's pages
type App struct {
	oauth       *oauth2.Config
	serverURL   string
	userinfoURL string
	states      crypto.TokenSigner
	httpClient  *http.Client
}

// stateCookie is what the browser carries between login and callback
type stateCookie struct {
	State string `json:"state"`
}

type pageData struct {
	ServerURL   string
	Error       string
	Description string
	Claims      map[string]any
	Scope       string
}

func New(cfg Config) (*App, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("client id and secret are required")
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultServerURL
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = DefaultRedirectURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = strings.Fields(DefaultScope)
	}
	if len(cfg.StateKey) == 0 {
		key, err := crypto.GenerateSecureToken()
		if err != nil {
			return nil, fmt.Errorf("generating state key: %w", err)
		}
		cfg.StateKey = []byte(key)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	authURL, err := urlutil.JoinPath(cfg.ServerURL, "authorize")
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	return &App{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  urlutil.MustJoinPath(cfg.ServerURL, "token"),
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		serverURL:   cfg.ServerURL,
		userinfoURL: urlutil.MustJoinPath(cfg.ServerURL, "userinfo"),
		states:      crypto.NewTokenSigner(cfg.StateKey, stateTTL),
		httpClient:  cfg.HTTPClient,
	}, nil
}

// Handler routes the client's pages
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/", a.home)
	r.Get("/auth/login", a.login)
	r.Get("/auth/callback", a.callback)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return r
}

func (a *App) home(w http.ResponseWriter, r *http.Request) {
	render(w, http.StatusOK, pageData{ServerURL: a.serverURL})
}

// login starts the authorization code flow with a fresh state bound to
// this browser by a signed cookie
func (a *App) login(w http.ResponseWriter, r *http.Request) {
	state, err := crypto.GenerateSecureToken()
	if err != nil {
		log.LogError("Failed to generate state: %v", err)
		render(w, http.StatusInternalServerError, pageData{Error: "server_error", Description: "could not start sign-in"})
		return
	}

	signed, err := a.states.Sign(stateCookie{State: state})
	if err != nil {
		log.LogError("Failed to sign state: %v", err)
		render(w, http.StatusInternalServerError, pageData{Error: "server_error", Description: "could not start sign-in"})
		return
	}
	cookie.Set(w, cookie.StateCookie, signed, stateTTL)

	http.Redirect(w, r, a.oauth.AuthCodeURL(state), http.StatusFound)
}

func (a *App) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	// the state is single use whatever the outcome
	cookie.Clear(w, cookie.StateCookie)

	if err := a.verifyState(r, q.Get("state")); err != nil {
		log.LogWarnWithFields("relyingparty", "State check failed", map[string]any{"error": err.Error()})
		render(w, http.StatusBadRequest, pageData{Error: "invalid_state", Description: "the sign-in response does not match a request from this browser"})
		return
	}

	if e := q.Get("error"); e != "" {
		render(w, http.StatusBadRequest, pageData{Error: e, Description: q.Get("error_description")})
		return
	}

	code := q.Get("code")
	if code == "" {
		render(w, http.StatusBadRequest, pageData{Error: "invalid_request", Description: "no authorization code in the response"})
		return
	}

	ctx := context.WithValue(r.Context(), oauth2.HTTPClient, a.httpClient)
	token, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		log.LogErrorWithFields("relyingparty", "Code exchange failed", map[string]any{"error": err.Error()})
		render(w, http.StatusBadGateway, pageData{Error: "exchange_failed", Description: "the authorization server rejected the code"})
		return
	}

	claims, err := a.fetchUserInfo(ctx, token)
	if err != nil {
		log.LogErrorWithFields("relyingparty", "Userinfo request failed", map[string]any{"error": err.Error()})
		render(w, http.StatusBadGateway, pageData{Error: "userinfo_failed", Description: "could not read the user's profile"})
		return
	}

	scope, _ := token.Extra("scope").(string)
	log.LogInfoWithFields("relyingparty", "User signed in", map[string]any{
		"sub":   claims["sub"],
		"scope": scope,
	})
	render(w, http.StatusOK, pageData{Claims: claims, Scope: scope})
}

func (a *App) verifyState(r *http.Request, got string) error {
	raw, err := cookie.Get(r, cookie.StateCookie)
	if err != nil {
		return fmt.Errorf("no state cookie: %w", err)
	}
	var want stateCookie
	if err := a.states.Verify(raw, &want); err != nil {
		return err
	}
	if got == "" || !crypto.Equal(got, want.State) {
		return errors.New("state mismatch")
	}
	return nil
}

// fetchUserInfo calls the userinfo endpoint with the access token
func (a *App) fetchUserInfo(ctx context.Context, token *oauth2.Token) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.userinfoURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return nil, err
	}
	defer ioutil.DrainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned %d: %s", resp.StatusCode, ioutil.ReadLimited(resp.Body, 1024))
	}

	var claims map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("decoding userinfo: %w", err)
	}
	return claims, nil
}

func render(w http.ResponseWriter, status int, data pageData) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		log.LogError("Failed to render page: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
