package integration

import (
	"context"
	"encoding/json"
	"html"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/dgellow/codegrant/internal"
	"github.com/dgellow/codegrant/internal/config"
	"github.com/dgellow/codegrant/internal/envutil"
)

const (
	clientID      = "client123"
	clientSecret  = "integration-client-secret"
	defaultRedir  = "http://localhost:8001/auth/callback"
	alicePassword = "wonderland"
)

// buildTestConfig returns a config map with two clients and two users.
// Secrets are env references resolved by startCodeGrant.
func buildTestConfig(redirectURI string) map[string]any {
	return map[string]any{
		"version": "v1",
		"server": map[string]any{
			"addr":    "127.0.0.1:0",
			"baseURL": "http://localhost:8000",
		},
		"auth": map[string]any{
			"secretKey":         map[string]string{"$env": "IT_SECRET_KEY"},
			"availableScopes":   []string{"openid", "profile", "email"},
			"allowRegistration": true,
		},
		"storage": map[string]any{"kind": "memory"},
		"clients": map[string]any{
			clientID: map[string]any{
				"name":          "Integration client",
				"secret":        map[string]string{"$env": "IT_CLIENT_SECRET"},
				"redirectUri":   redirectURI,
				"allowedScopes": []string{"openid", "profile", "email"},
			},
			"profile-only": map[string]any{
				"secret":        map[string]string{"$env": "IT_CLIENT_SECRET"},
				"redirectUri":   "https://profile.example.com/cb",
				"allowedScopes": []string{"profile"},
			},
		},
		"users": []any{
			map[string]any{
				"username":      "alice",
				"password":      map[string]string{"$env": "IT_ALICE_PASSWORD"},
				"email":         "alice@example.com",
				"emailVerified": true,
			},
			map[string]any{
				"username": "bob",
				"password": map[string]string{"$env": "IT_ALICE_PASSWORD"},
				"email":    "bob@example.com",
			},
		},
	}
}

// writeTestConfig writes a config map to a temporary JSON file and returns its path.
func writeTestConfig(t *testing.T, cfg map[string]any) string {
	t.Helper()
	data, err := json.MarshalIndent(cfg, "", "  ")
	require.NoError(t, err)

	f, err := os.CreateTemp(t.TempDir(), "config-*.json")
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

// startCodeGrant loads cfg through the config package, builds the server
// and serves it from an httptest server
func startCodeGrant(t *testing.T, cfg map[string]any) *httptest.Server {
	t.Helper()
	t.Setenv(envutil.EnvVar, "development")
	t.Setenv("IT_SECRET_KEY", strings.Repeat("integration-key-", 3))
	t.Setenv("IT_CLIENT_SECRET", clientSecret)
	t.Setenv("IT_ALICE_PASSWORD", alicePassword)

	loaded, err := config.Load(writeTestConfig(t, cfg))
	require.NoError(t, err)

	app, err := internal.NewCodeGrant(context.Background(), loaded)
	require.NoError(t, err)

	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)
	return srv
}

// oauthConfig is the client side of the flow, as a relying party would
// configure golang.org/x/oauth2
func oauthConfig(serverURL, redirectURI string, scopes ...string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   serverURL + "/authorize",
			TokenURL:  serverURL + "/token",
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// browser keeps cookies and stops at every redirect
type browser struct {
	t      *testing.T
	client *http.Client
}

func newBrowser(t *testing.T) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{
		t: t,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// page is a fully read response
type page struct {
	URL      *url.URL
	Status   int
	Body     string
	Location *url.URL
}

func (b *browser) read(resp *http.Response) page {
	b.t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)

	p := page{URL: resp.Request.URL, Status: resp.StatusCode, Body: string(body)}
	if loc, err := resp.Location(); err == nil {
		p.Location = loc
	}
	return p
}

func (b *browser) get(rawURL string) page {
	b.t.Helper()
	resp, err := b.client.Get(rawURL)
	require.NoError(b.t, err)
	return b.read(resp)
}

func (b *browser) post(rawURL string, form url.Values) page {
	b.t.Helper()
	resp, err := b.client.PostForm(rawURL, form)
	require.NoError(b.t, err)
	return b.read(resp)
}

// follow requests the page a redirect points to
func (b *browser) follow(p page) page {
	b.t.Helper()
	require.NotNil(b.t, p.Location, "expected a redirect, got %d: %s", p.Status, p.Body)
	return b.get(p.Location.String())
}

func (b *browser) login(serverURL, username string) {
	b.t.Helper()
	p := b.post(serverURL+"/login", url.Values{"username": {username}, "password": {alicePassword}})
	require.Equal(b.t, http.StatusSeeOther, p.Status, p.Body)
}

var csrfPattern = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

func csrfToken(t *testing.T, p page) string {
	t.Helper()
	require.Equal(t, http.StatusOK, p.Status, p.Body)
	m := csrfPattern.FindStringSubmatch(p.Body)
	require.Len(t, m, 2, "no csrf token on page")
	return html.UnescapeString(m[1])
}

// authorize walks a logged-in browser through consent and returns the
// client redirect
func (b *browser) authorize(serverURL, authURL, action string) *url.URL {
	b.t.Helper()
	csrf := csrfToken(b.t, b.get(authURL))
	p := b.post(serverURL+"/authorize", url.Values{"csrf_token": {csrf}, "action": {action}})
	require.Equal(b.t, http.StatusFound, p.Status, p.Body)
	return p.Location
}

// fetchUserInfo calls /userinfo with an oauth2 token source
func fetchUserInfo(t *testing.T, ctx context.Context, conf *oauth2.Config, serverURL string, tok *oauth2.Token) (int, map[string]any) {
	t.Helper()
	resp, err := conf.Client(ctx, tok).Get(serverURL + "/userinfo")
	require.NoError(t, err)
	defer resp.Body.Close()

	var claims map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&claims))
	return resp.StatusCode, claims
}
