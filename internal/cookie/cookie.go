package cookie

import (
	"net/http"
	"time"

	"github.com/dgellow/codegrant/internal/envutil"
	"github.com/dgellow/codegrant/internal/log"
)

// StateCookie holds the relying party's signed OAuth state between the
// login redirect and the callback
const StateCookie = "rp_state"

// Set writes an HttpOnly, SameSite=Lax cookie, Secure outside development.
// Lax is required: the callback arrives as a top-level cross-site GET.
func Set(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	secure := !envutil.IsDev()
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})

	log.LogTraceWithFields("cookie", "Cookie set", map[string]any{
		"name":   name,
		"maxAge": maxAge.String(),
		"secure": secure,
	})
}

// Clear removes a cookie by setting MaxAge to -1
func Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   !envutil.IsDev(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// Get retrieves a cookie value from the request
func Get(r *http.Request, name string) (string, error) {
	cookie, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}
