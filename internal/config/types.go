package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Version is the only accepted config version
const Version = "v1"

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageKind selects where codes, tokens and pending authorizations live
type StorageKind string

const (
	StorageKindMemory StorageKind = "memory"
	StorageKindRedis  StorageKind = "redis"
)

// Defaults applied when the config leaves a field out
const (
	DefaultCodeTTL         = 10 * time.Minute
	DefaultTokenTTL        = time.Hour
	DefaultConsentTTL      = 10 * time.Minute
	DefaultCleanupInterval = time.Minute
)

// DefaultScopes is used when auth.availableScopes is omitted
var DefaultScopes = []string{"openid", "profile", "email"}

// ServerConfig is the HTTP listener and the public URL clients reach it at
type ServerConfig struct {
	Addr           string   `json:"addr"`
	BaseURL        string   `json:"baseURL"`
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`
}

// RateLimitConfig limits POST /token and POST /login per client IP
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requestsPerSecond"`
	Burst             int     `json:"burst"`
}

// AuthConfig holds grant lifetimes and the server secret
type AuthConfig struct {
	// SecretKey signs CSRF tokens and session cookies
	SecretKey         Secret           `json:"secretKey"`
	AvailableScopes   []string         `json:"availableScopes"`
	CodeTTL           time.Duration    `json:"codeTtl"`
	TokenTTL          time.Duration    `json:"tokenTtl"`
	ConsentTTL        time.Duration    `json:"consentTtl"`
	CleanupInterval   time.Duration    `json:"cleanupInterval"`
	AllowRegistration bool             `json:"allowRegistration"`
	RateLimit         *RateLimitConfig `json:"rateLimit,omitempty"`
}

// RedisConfig configures the Redis storage backend
type RedisConfig struct {
	Addr      string `json:"addr"`
	Username  string `json:"username,omitempty"`
	Password  Secret `json:"password,omitempty"`
	DB        int    `json:"db,omitempty"`
	KeyPrefix string `json:"keyPrefix,omitempty"`
}

// StorageConfig selects the storage backend
type StorageConfig struct {
	Kind  StorageKind  `json:"kind"`
	Redis *RedisConfig `json:"redis,omitempty"`
}

// ClientConfig is a registered client application
type ClientConfig struct {
	Name          string   `json:"name"`
	Secret        Secret   `json:"secret"`
	RedirectURI   string   `json:"redirectUri"`
	AllowedScopes []string `json:"allowedScopes"`
}

// UserConfig seeds the user directory. Exactly one of Password and
// PasswordHash is set.
type UserConfig struct {
	Username      string `json:"username"`
	Password      Secret `json:"password,omitempty"`
	PasswordHash  string `json:"passwordHash,omitempty"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"emailVerified,omitempty"`
}

// Config represents the config structure with resolved values
type Config struct {
	Version string                   `json:"version"`
	Server  ServerConfig             `json:"server"`
	Auth    AuthConfig               `json:"auth"`
	Storage StorageConfig            `json:"storage"`
	Clients map[string]*ClientConfig `json:"clients"`
	Users   []UserConfig             `json:"users,omitempty"`
}

// ParseConfigValue parses a JSON value that is either a plain string or an
// {"$env": "VAR"} reference, resolving the reference immediately
func ParseConfigValue(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}

// parseSecret resolves an optional secret field
func parseSecret(raw json.RawMessage, field string) (Secret, error) {
	if raw == nil {
		return "", nil
	}
	value, err := ParseConfigValue(raw)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", field, err)
	}
	return Secret(value), nil
}

// parseDuration parses an optional duration string, falling back to def
func parseDuration(s, field string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", field, err)
	}
	return d, nil
}
