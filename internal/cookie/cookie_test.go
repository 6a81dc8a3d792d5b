package cookie

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgellow/codegrant/internal/envutil"
)

func TestSet(t *testing.T) {
	t.Run("secure outside development", func(t *testing.T) {
		t.Setenv(envutil.EnvVar, "production")
		w := httptest.NewRecorder()
		Set(w, StateCookie, "v", 10*time.Minute)

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		c := cookies[0]
		assert.Equal(t, StateCookie, c.Name)
		assert.True(t, c.Secure)
		assert.True(t, c.HttpOnly)
		assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
		assert.Equal(t, 600, c.MaxAge)
	})

	t.Run("plain http in development", func(t *testing.T) {
		t.Setenv(envutil.EnvVar, "development")
		w := httptest.NewRecorder()
		Set(w, StateCookie, "v", time.Minute)
		assert.False(t, w.Result().Cookies()[0].Secure)
	})
}

func TestGetAndClear(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := Get(r, StateCookie)
	assert.ErrorIs(t, err, http.ErrNoCookie)

	r.AddCookie(&http.Cookie{Name: StateCookie, Value: "abc"})
	v, err := Get(r, StateCookie)
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	w := httptest.NewRecorder()
	Clear(w, StateCookie)
	assert.Negative(t, w.Result().Cookies()[0].MaxAge)
}
