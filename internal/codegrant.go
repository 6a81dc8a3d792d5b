package internal

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgellow/codegrant/internal/config"
	"github.com/dgellow/codegrant/internal/envutil"
	"github.com/dgellow/codegrant/internal/identity"
	"github.com/dgellow/codegrant/internal/log"
	"github.com/dgellow/codegrant/internal/metrics"
	"github.com/dgellow/codegrant/internal/oauth"
	"github.com/dgellow/codegrant/internal/registry"
	"github.com/dgellow/codegrant/internal/scope"
	"github.com/dgellow/codegrant/internal/server"
	"github.com/dgellow/codegrant/internal/session"
	"github.com/dgellow/codegrant/internal/storage"
)

const (
	sessionMaxAge   = time.Hour
	shutdownTimeout = 30 * time.Second
)

// CodeGrant is the complete authorization server
type CodeGrant struct {
	config      config.Config
	handler     http.Handler
	httpServer  *server.HTTPServer
	storage     storage.Storage
	cleanup     *storage.CleanupManager
	rateLimiter *server.IPRateLimiter
}

// NewCodeGrant builds the authorization server from a loaded config
func NewCodeGrant(ctx context.Context, cfg config.Config) (*CodeGrant, error) {
	log.LogInfoWithFields("codegrant", "Building authorization server", map[string]any{
		"baseURL": cfg.Server.BaseURL,
		"clients": len(cfg.Clients),
		"users":   len(cfg.Users),
		"storage": string(cfg.Storage.Kind),
	})

	clients, err := setupRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup client registry: %w", err)
	}

	users, err := setupDirectory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup user directory: %w", err)
	}

	store, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	m := metrics.New()
	secret := []byte(cfg.Auth.SecretKey)

	controller, err := oauth.NewController(
		oauth.ControllerConfig{
			CSRFKey:        secret,
			CodeLifespan:   cfg.Auth.CodeTTL,
			AccessTokenTTL: cfg.Auth.TokenTTL,
			ConsentTTL:     cfg.Auth.ConsentTTL,
		},
		clients,
		scope.NewPolicy(cfg.Auth.AvailableScopes),
		store,
		oauth.WithMetrics(m),
	)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create authorization controller: %w", err)
	}

	sessions, err := session.NewManager(secret, sessionMaxAge, !envutil.IsDev())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	var limiter *server.IPRateLimiter
	if rl := cfg.Auth.RateLimit; rl != nil {
		limiter = server.NewIPRateLimiter(rl.RequestsPerSecond, rl.Burst)
		log.LogInfoWithFields("codegrant", "Rate limiting token and login endpoints", map[string]any{
			"rps":   rl.RequestsPerSecond,
			"burst": rl.Burst,
		})
	}

	handler := server.NewRouter(server.RouterConfig{
		Controller:        controller,
		Sessions:          sessions,
		Users:             users,
		Metrics:           m,
		AllowedOrigins:    allowedOrigins(clients, cfg.Server.AllowedOrigins),
		AllowRegistration: cfg.Auth.AllowRegistration,
		RateLimiter:       limiter,
		Issuer:            cfg.Server.BaseURL,
		Scopes:            cfg.Auth.AvailableScopes,
	})

	return &CodeGrant{
		config:      cfg,
		handler:     handler,
		httpServer:  server.NewHTTPServer(handler, cfg.Server.Addr),
		storage:     store,
		cleanup:     storage.NewCleanupManager(store, cfg.Auth.CleanupInterval),
		rateLimiter: limiter,
	}, nil
}

// Handler exposes the router, for in-process servers in tests
func (c *CodeGrant) Handler() http.Handler {
	return c.handler
}

// Run serves until ctx is cancelled, SIGINT or SIGTERM arrives, or a
// component fails, then shuts down gracefully
func (c *CodeGrant) Run(ctx context.Context) error {
	return c.run(ctx, c.httpServer.Start)
}

// Serve is Run on an existing listener
func (c *CodeGrant) Serve(ctx context.Context, ln net.Listener) error {
	return c.run(ctx, func() error { return c.httpServer.Serve(ln) })
}

func (c *CodeGrant) run(ctx context.Context, serve func() error) error {
	log.LogInfoWithFields("codegrant", "Starting authorization server", map[string]any{
		"addr": c.config.Server.Addr,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := serve(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return c.cleanup.Run(gctx)
	})

	if c.rateLimiter != nil {
		g.Go(func() error {
			return c.rateLimiter.Run(gctx, time.Minute)
		})
	}

	g.Go(func() error {
		<-gctx.Done()

		reason := "context cancelled"
		if ctx.Err() == nil {
			reason = "component failure"
		}
		log.LogInfoWithFields("codegrant", "Starting graceful shutdown", map[string]any{
			"reason":  reason,
			"timeout": shutdownTimeout.String(),
		})

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := c.httpServer.Stop(shutdownCtx); err != nil {
			log.LogErrorWithFields("codegrant", "HTTP server shutdown error", map[string]any{
				"error": err.Error(),
			})
			return err
		}
		return nil
	})

	err := g.Wait()
	if cerr := c.storage.Close(); cerr != nil {
		log.LogWarn("Failed to close storage: %v", cerr)
	}

	if err != nil {
		log.LogErrorWithFields("codegrant", "Authorization server stopped with error", map[string]any{
			"error": err.Error(),
		})
		return err
	}
	log.LogInfo("Authorization server shutdown complete")
	return nil
}

func setupRegistry(cfg config.Config) (*registry.Registry, error) {
	ids := make([]string, 0, len(cfg.Clients))
	for id := range cfg.Clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	specs := make([]registry.ClientSpec, 0, len(ids))
	for _, id := range ids {
		cc := cfg.Clients[id]
		specs = append(specs, registry.ClientSpec{
			ID:            id,
			Name:          cc.Name,
			Secret:        string(cc.Secret),
			RedirectURI:   cc.RedirectURI,
			AllowedScopes: cc.AllowedScopes,
		})
	}
	return registry.New(specs)
}

func setupDirectory(cfg config.Config) (*identity.Directory, error) {
	seeds := make([]identity.Seed, 0, len(cfg.Users))
	for _, u := range cfg.Users {
		seeds = append(seeds, identity.Seed{
			Username:      u.Username,
			Password:      string(u.Password),
			PasswordHash:  u.PasswordHash,
			Email:         u.Email,
			EmailVerified: u.EmailVerified,
		})
	}

	users := identity.NewDirectory()
	if err := users.Seed(seeds); err != nil {
		return nil, err
	}
	return users, nil
}

// setupStorage picks the backend named by storage.kind
func setupStorage(ctx context.Context, cfg config.Config) (storage.Storage, error) {
	if cfg.Storage.Kind == config.StorageKindRedis {
		rc := cfg.Storage.Redis
		log.LogInfoWithFields("storage", "Using Redis storage", map[string]any{
			"addr": rc.Addr,
			"db":   rc.DB,
		})
		return storage.NewRedisStorage(ctx, storage.RedisConfig{
			Addr:      rc.Addr,
			Username:  rc.Username,
			Password:  string(rc.Password),
			DB:        rc.DB,
			KeyPrefix: rc.KeyPrefix,
		})
	}

	log.LogInfoWithFields("storage", "Using in-memory storage", map[string]any{})
	return storage.NewMemoryStorage(), nil
}

// allowedOrigins merges client redirect origins with configured extras
func allowedOrigins(clients *registry.Registry, extra []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, o := range append(clients.Origins(), extra...) {
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	return out
}
