package internal

import (
	"context"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgellow/codegrant/internal/config"
	"github.com/dgellow/codegrant/internal/registry"
	"github.com/dgellow/codegrant/internal/storage"
)

func testConfig() config.Config {
	return config.Config{
		Version: config.Version,
		Server:  config.ServerConfig{Addr: "127.0.0.1:0", BaseURL: "http://localhost:8000"},
		Auth: config.AuthConfig{
			SecretKey:       config.Secret(strings.Repeat("k", 32)),
			AvailableScopes: config.DefaultScopes,
			CodeTTL:         config.DefaultCodeTTL,
			TokenTTL:        config.DefaultTokenTTL,
			ConsentTTL:      config.DefaultConsentTTL,
			CleanupInterval: config.DefaultCleanupInterval,
			RateLimit:       &config.RateLimitConfig{RequestsPerSecond: 5, Burst: 10},
		},
		Storage: config.StorageConfig{Kind: config.StorageKindMemory},
		Clients: map[string]*config.ClientConfig{
			"client123": {
				Secret:        "s3cret",
				RedirectURI:   "http://localhost:8001/auth/callback",
				AllowedScopes: []string{"profile", "email"},
			},
		},
		Users: []config.UserConfig{{Username: "alice", Password: "wonderland"}},
	}
}

func TestCodeGrantServeAndShutdown(t *testing.T) {
	app, err := NewCodeGrant(context.Background(), testConfig())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestNewCodeGrantRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.SecretKey = "short"

	_, err := NewCodeGrant(context.Background(), cfg)
	assert.Error(t, err)
}

func TestSetupStorage(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		store, err := setupStorage(context.Background(), testConfig())
		require.NoError(t, err)
		assert.IsType(t, &storage.MemoryStorage{}, store)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := testConfig()
		cfg.Storage = config.StorageConfig{
			Kind:  config.StorageKindRedis,
			Redis: &config.RedisConfig{Addr: mr.Addr()},
		}

		store, err := setupStorage(context.Background(), cfg)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		assert.IsType(t, &storage.RedisStorage{}, store)
	})
}

func TestAllowedOrigins(t *testing.T) {
	reg, err := registry.New([]registry.ClientSpec{
		{ID: "a", Secret: "x", RedirectURI: "http://localhost:8001/cb", AllowedScopes: []string{"profile"}},
		{ID: "b", Secret: "x", RedirectURI: "https://app.example.com/cb", AllowedScopes: []string{"profile"}},
	})
	require.NoError(t, err)

	got := allowedOrigins(reg, []string{"https://app.example.com", "https://extra.example.com"})
	assert.Equal(t, []string{"http://localhost:8001", "https://app.example.com", "https://extra.example.com"}, got)
}
