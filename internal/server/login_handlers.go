package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dgellow/codegrant/internal/identity"
	"github.com/dgellow/codegrant/internal/log"
	"github.com/dgellow/codegrant/internal/session"
	"github.com/dgellow/codegrant/internal/urlutil"
)

// LoginHandlers serves the pages that establish and end a browser session
type LoginHandlers struct {
	sessions          *session.Manager
	users             *identity.Directory
	allowRegistration bool
	now               func() time.Time
}

func NewLoginHandlers(sessions *session.Manager, users *identity.Directory, allowRegistration bool) *LoginHandlers {
	return &LoginHandlers{
		sessions:          sessions,
		users:             users,
		allowRegistration: allowRegistration,
		now:               time.Now,
	}
}

// IndexHandler shows who is signed in
func (h *LoginHandlers) IndexHandler(w http.ResponseWriter, r *http.Request) {
	data := IndexPageData{AllowRegistration: h.allowRegistration}
	if _, user := currentUser(r, h.sessions, h.users); user != nil {
		data.Username = user.Username
		data.Email = user.Email
	}
	renderPage(w, indexPageTemplate, http.StatusOK, data)
}

// LoginPageHandler shows the login form, or skips it for a signed-in user
func (h *LoginHandlers) LoginPageHandler(w http.ResponseWriter, r *http.Request) {
	next := urlutil.LocalOr(r.URL.Query().Get("next"), "/")
	if _, user := currentUser(r, h.sessions, h.users); user != nil {
		http.Redirect(w, r, next, http.StatusFound)
		return
	}
	renderPage(w, loginPageTemplate, http.StatusOK, LoginPageData{
		Next:              next,
		AllowRegistration: h.allowRegistration,
	})
}

// LoginHandler checks credentials and resumes at next
func (h *LoginHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	username := strings.TrimSpace(r.PostForm.Get("username"))
	next := urlutil.LocalOr(r.PostForm.Get("next"), "/")

	user, err := h.users.Authenticate(r.Context(), username, r.PostForm.Get("password"))
	if err != nil {
		log.LogInfoWithFields("login", "Login failed", map[string]any{
			"username": username,
			"ip":       clientIP(r),
		})
		renderPage(w, loginPageTemplate, http.StatusUnauthorized, LoginPageData{
			Next:              next,
			Username:          username,
			Error:             "Invalid username or password",
			AllowRegistration: h.allowRegistration,
		})
		return
	}

	if !h.startSession(w, r, user) {
		return
	}
	log.LogInfoWithFields("login", "User logged in", map[string]any{
		"user_id":  user.ID,
		"username": user.Username,
	})
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// RegisterPageHandler shows the account creation form
func (h *LoginHandlers) RegisterPageHandler(w http.ResponseWriter, r *http.Request) {
	if !h.allowRegistration {
		http.NotFound(w, r)
		return
	}
	renderPage(w, registerPageTemplate, http.StatusOK, RegisterPageData{
		Next: urlutil.LocalOr(r.URL.Query().Get("next"), "/"),
	})
}

// RegisterHandler creates an account and signs it in
func (h *LoginHandlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if !h.allowRegistration {
		http.NotFound(w, r)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	data := RegisterPageData{
		Next:     urlutil.LocalOr(r.PostForm.Get("next"), "/"),
		Username: strings.TrimSpace(r.PostForm.Get("username")),
		Email:    strings.TrimSpace(r.PostForm.Get("email")),
	}

	user, err := h.users.Register(r.Context(), data.Username, r.PostForm.Get("password"), data.Email)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrUsernameTaken):
			data.Error = "That username is already taken"
		case errors.Is(err, identity.ErrEmailTaken):
			data.Error = "That email address is already registered"
		case errors.Is(err, identity.ErrInvalidEmail):
			data.Error = "That email address is not valid"
		default:
			data.Error = "Username and password are required"
		}
		renderPage(w, registerPageTemplate, http.StatusBadRequest, data)
		return
	}

	if !h.startSession(w, r, user) {
		return
	}
	log.LogInfoWithFields("login", "User registered", map[string]any{
		"user_id":  user.ID,
		"username": user.Username,
	})
	http.Redirect(w, r, data.Next, http.StatusSeeOther)
}

// LogoutHandler ends the session
func (h *LoginHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Get(r)
	sess.Clear()
	if err := sess.Save(w, r); err != nil {
		log.LogError("Failed to clear session: %v", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *LoginHandlers) startSession(w http.ResponseWriter, r *http.Request, user *identity.User) bool {
	sess := h.sessions.Get(r)
	sess.Login(user.ID, h.now())
	if err := sess.Save(w, r); err != nil {
		log.LogError("Failed to save session: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return false
	}
	return true
}
