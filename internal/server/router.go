package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgellow/codegrant/internal/identity"
	jsonwriter "github.com/dgellow/codegrant/internal/json"
	"github.com/dgellow/codegrant/internal/metrics"
	"github.com/dgellow/codegrant/internal/oauth"
	"github.com/dgellow/codegrant/internal/session"
)

// RouterConfig wires the handlers to their collaborators
type RouterConfig struct {
	Controller        *oauth.Controller
	Sessions          *session.Manager
	Users             *identity.Directory
	Metrics           *metrics.Metrics
	AllowedOrigins    []string
	AllowRegistration bool
	// RateLimiter guards POST /token and POST /login; nil disables it
	RateLimiter *IPRateLimiter
	// Issuer enables RFC 8414 metadata when set
	Issuer string
	Scopes []string
}

// NewRouter builds the authorization server's HTTP surface
func NewRouter(cfg RouterConfig) http.Handler {
	auth := NewAuthHandlers(cfg.Controller, cfg.Sessions, cfg.Users)
	login := NewLoginHandlers(cfg.Sessions, cfg.Users, cfg.AllowRegistration)
	limited := NewRateLimitMiddleware(cfg.RateLimiter, cfg.Metrics)
	bearer := oauth.NewValidateTokenMiddleware(cfg.Controller, "")

	r := chi.NewRouter()
	r.Use(
		NewRequestIDMiddleware(),
		NewLoggerMiddleware("http", cfg.Metrics),
		NewRecoverMiddleware("http"),
		NewCORSMiddleware(cfg.AllowedOrigins),
	)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonwriter.WriteNotFound(w, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		jsonwriter.WriteMethodNotAllowed(w, "Method not allowed")
	})

	oauthRoutes := func(r chi.Router) {
		r.Get("/authorize", auth.AuthorizeHandler)
		r.Post("/authorize", auth.ConsentHandler)
		r.With(limited).Post("/token", auth.TokenHandler)
		r.With(bearer).Get("/userinfo", auth.UserInfoHandler)
	}
	oauthRoutes(r)
	r.Route("/oauth", oauthRoutes)

	r.Get("/", login.IndexHandler)
	r.Get("/login", login.LoginPageHandler)
	r.With(limited).Post("/login", login.LoginHandler)
	r.Get("/register", login.RegisterPageHandler)
	r.Post("/register", login.RegisterHandler)
	r.Get("/logout", login.LogoutHandler)
	r.Post("/logout", login.LogoutHandler)

	if cfg.Issuer != "" {
		r.Get(oauth.MetadataPath, metadataHandler(cfg.Issuer, cfg.Scopes))
	}

	r.Method(http.MethodGet, "/health", NewHealthHandler())
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	return r
}

func metadataHandler(issuer string, scopes []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metadata, err := oauth.AuthorizationServerMetadata(issuer, scopes)
		if err != nil {
			jsonwriter.WriteInternalServerError(w, "Failed to build metadata")
			return
		}
		_ = jsonwriter.Write(w, metadata)
	}
}
