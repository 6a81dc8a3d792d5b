package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/dgellow/codegrant/internal/log"
	"github.com/dgellow/codegrant/internal/oauth"
)

//go:embed templates/*.html
var templateFS embed.FS

// mustPage parses a page with the shared layout. The page file comes first
// so it becomes the template that Execute runs.
func mustPage(name string) *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/"+name, "templates/base.html"))
}

var (
	indexPageTemplate    = mustPage("index.html")
	loginPageTemplate    = mustPage("login.html")
	registerPageTemplate = mustPage("register.html")
	consentPageTemplate  = mustPage("consent.html")
	errorPageTemplate    = mustPage("error.html")
)

// IndexPageData represents the data for the home page
type IndexPageData struct {
	Username          string
	Email             string
	AllowRegistration bool
}

// LoginPageData represents the data for the login page
type LoginPageData struct {
	Next              string
	Username          string
	Error             string
	AllowRegistration bool
}

// RegisterPageData represents the data for the registration page
type RegisterPageData struct {
	Next     string
	Username string
	Email    string
	Error    string
}

// ConsentPageData represents the data for the consent page
type ConsentPageData struct {
	Action     string
	ClientID   string
	ClientName string
	Username   string
	Scopes     []ScopeView
	CSRFToken  string
	ExpiresAt  time.Time
}

// ScopeView is one requested scope as shown to the user
type ScopeView struct {
	Name        string
	Description string
}

// ErrorPageData represents an authorization error rendered in-service
type ErrorPageData struct {
	Title       string
	Code        string
	Description string
	Expected    string
	Actual      string
	Scopes      []string
}

var scopeDescriptions = map[string]string{
	"openid":  "confirm who you are",
	"profile": "read your username",
	"email":   "read your email address",
}

func scopeViews(scopes []string) []ScopeView {
	views := make([]ScopeView, 0, len(scopes))
	for _, s := range scopes {
		views = append(views, ScopeView{Name: s, Description: scopeDescriptions[s]})
	}
	return views
}

// renderPage executes into a buffer first so a template failure can still
// produce a clean 500
func renderPage(w http.ResponseWriter, tmpl *template.Template, status int, data any) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		log.LogError("Failed to render %s: %v", tmpl.Name(), err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Options", "DENY")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderOAuthError shows an authorization error on our own origin
func renderOAuthError(w http.ResponseWriter, oerr *oauth.Error) {
	title := "Authorization failed"
	switch oerr.Code {
	case oauth.ErrUnauthorizedClient:
		title = "Unknown application"
	case oauth.ErrInvalidRedirectURI:
		title = "Redirect URI mismatch"
	case oauth.ErrInvalidCSRF:
		title = "Request expired"
	case oauth.ErrServerError:
		title = "Something went wrong"
	}

	renderPage(w, errorPageTemplate, oerr.HTTPStatus(), ErrorPageData{
		Title:       title,
		Code:        string(oerr.Code),
		Description: oerr.Description,
		Expected:    oerr.ExpectedRedirectURI,
		Actual:      oerr.ActualRedirectURI,
		Scopes:      oerr.Scopes,
	})
}
