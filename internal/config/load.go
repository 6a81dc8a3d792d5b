package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/dgellow/codegrant/internal/log"
)

// MinSecretKeyLength is the shortest accepted auth.secretKey
const MinSecretKeyLength = 32

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if version != Version {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	applyDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func applyDefaults(config *Config) {
	if config.Storage.Kind == "" {
		config.Storage.Kind = StorageKindMemory
	}
	if config.Auth.CodeTTL == 0 {
		config.Auth.CodeTTL = DefaultCodeTTL
	}
	if config.Auth.TokenTTL == 0 {
		config.Auth.TokenTTL = DefaultTokenTTL
	}
	if config.Auth.ConsentTTL == 0 {
		config.Auth.ConsentTTL = DefaultConsentTTL
	}
	if config.Auth.CleanupInterval == 0 {
		config.Auth.CleanupInterval = DefaultCleanupInterval
	}
	if len(config.Auth.AvailableScopes) == 0 {
		config.Auth.AvailableScopes = append([]string(nil), DefaultScopes...)
	}
}

// validateRawConfig rejects secrets written inline before any env var is read
func validateRawConfig(rawConfig map[string]any) error {
	requireEnvRef := func(value any, path string) error {
		if err := validateEnvVarReference(value, path); err != nil {
			return fmt.Errorf("%s", err.Message)
		}
		return nil
	}

	if auth, ok := rawConfig["auth"].(map[string]any); ok {
		if v, exists := auth["secretKey"]; exists {
			if err := requireEnvRef(v, "auth.secretKey"); err != nil {
				return err
			}
		}
	}

	if storage, ok := rawConfig["storage"].(map[string]any); ok {
		if redis, ok := storage["redis"].(map[string]any); ok {
			if v, exists := redis["password"]; exists {
				if err := requireEnvRef(v, "storage.redis.password"); err != nil {
					return err
				}
			}
		}
	}

	if clients, ok := rawConfig["clients"].(map[string]any); ok {
		for id, c := range clients {
			client, ok := c.(map[string]any)
			if !ok {
				continue
			}
			if v, exists := client["secret"]; exists {
				if err := requireEnvRef(v, fmt.Sprintf("clients.%s.secret", id)); err != nil {
					return err
				}
			}
		}
	}

	if users, ok := rawConfig["users"].([]any); ok {
		for i, u := range users {
			user, ok := u.(map[string]any)
			if !ok {
				continue
			}
			if v, exists := user["password"]; exists {
				if err := requireEnvRef(v, fmt.Sprintf("users[%d].password", i)); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if config.Server.BaseURL == "" {
		return fmt.Errorf("server.baseURL is required")
	}
	if err := validateAbsoluteURL(config.Server.BaseURL); err != nil {
		return fmt.Errorf("server.baseURL: %w", err)
	}

	if err := validateAuthConfig(&config.Auth); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}

	switch config.Storage.Kind {
	case StorageKindMemory:
	case StorageKindRedis:
		if config.Storage.Redis == nil || config.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required when using redis storage")
		}
	default:
		return fmt.Errorf("storage.kind must be memory or redis, got %q", config.Storage.Kind)
	}

	if len(config.Clients) == 0 {
		return fmt.Errorf("at least one client is required")
	}
	for id, client := range config.Clients {
		if err := validateClient(id, client, config.Auth.AvailableScopes); err != nil {
			return err
		}
	}

	seen := make(map[string]bool, len(config.Users))
	for i, user := range config.Users {
		if err := validateUser(user); err != nil {
			return fmt.Errorf("users[%d]: %w", i, err)
		}
		if seen[user.Username] {
			return fmt.Errorf("users[%d]: duplicate username %s", i, user.Username)
		}
		seen[user.Username] = true
	}

	return nil
}

func validateAuthConfig(auth *AuthConfig) error {
	if len(auth.SecretKey) < MinSecretKeyLength {
		return fmt.Errorf("secretKey must be at least %d characters (got %d). Generate with: openssl rand -base64 32", MinSecretKeyLength, len(auth.SecretKey))
	}
	for _, s := range auth.AvailableScopes {
		if s == "" || strings.ContainsAny(s, " \t\n") {
			return fmt.Errorf("invalid scope name %q", s)
		}
	}
	if auth.CodeTTL <= 0 || auth.TokenTTL <= 0 || auth.ConsentTTL <= 0 {
		return fmt.Errorf("codeTtl, tokenTtl and consentTtl must be positive")
	}
	if auth.CleanupInterval < 0 {
		return fmt.Errorf("cleanupInterval cannot be negative")
	}
	if auth.CleanupInterval > auth.CodeTTL {
		log.LogWarn("Cleanup interval %s is longer than the code lifetime %s", auth.CleanupInterval, auth.CodeTTL)
	}
	if rl := auth.RateLimit; rl != nil {
		if rl.RequestsPerSecond <= 0 {
			return fmt.Errorf("rateLimit.requestsPerSecond must be positive")
		}
		if rl.Burst < 1 {
			return fmt.Errorf("rateLimit.burst must be at least 1")
		}
	}
	return nil
}

func validateClient(id string, client *ClientConfig, available []string) error {
	if id == "" {
		return fmt.Errorf("client id cannot be empty")
	}
	if client == nil {
		return fmt.Errorf("client %s has no configuration", id)
	}
	if client.Secret == "" {
		return fmt.Errorf("client %s must have a secret", id)
	}
	if client.RedirectURI == "" {
		return fmt.Errorf("client %s must have a redirectUri", id)
	}
	if err := validateAbsoluteURL(client.RedirectURI); err != nil {
		return fmt.Errorf("client %s redirectUri: %w", id, err)
	}
	if len(client.AllowedScopes) == 0 {
		return fmt.Errorf("client %s must allow at least one scope", id)
	}
	for _, s := range client.AllowedScopes {
		if !slices.Contains(available, s) {
			return fmt.Errorf("client %s allows scope %q which is not in auth.availableScopes", id, s)
		}
	}
	return nil
}

func validateUser(user UserConfig) error {
	if user.Username == "" {
		return fmt.Errorf("username is required")
	}
	hasPassword := user.Password != ""
	hasHash := user.PasswordHash != ""
	if hasPassword == hasHash {
		return fmt.Errorf("user %s must have exactly one of password or passwordHash", user.Username)
	}
	if hasHash && !strings.HasPrefix(user.PasswordHash, "$2") {
		return fmt.Errorf("user %s passwordHash is not a bcrypt hash. Generate with: codegrant hash-secret", user.Username)
	}
	return nil
}

func validateAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must be an http or https URL, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("must include a host, got %q", raw)
	}
	if u.Fragment != "" {
		return fmt.Errorf("must not contain a fragment")
	}
	return nil
}
