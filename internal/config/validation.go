package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

var bashStyleRegex = regexp.MustCompile(`\$\{?([A-Z_][A-Z0-9_]*)\}?`)

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	result := &ValidationResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result, nil
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": %q", Version)
	} else if version != Version {
		result.addError("version", "unsupported version '%s' - use '%s'", version, Version)
	}

	validateServerStructure(rawConfig, result)
	validateAuthStructure(rawConfig, result)
	validateStorageStructure(rawConfig, result)
	validateClientsStructure(rawConfig, result)
	validateUsersStructure(rawConfig, result)

	return result, nil
}

func validateServerStructure(rawConfig map[string]any, result *ValidationResult) {
	server, ok := rawConfig["server"].(map[string]any)
	if !ok {
		result.addError("server", "server field is required and must be an object")
		return
	}
	if _, ok := server["addr"]; !ok {
		result.addError("server.addr", "addr is required. Example: \":8000\"")
	}
	if baseURL, ok := server["baseURL"].(string); !ok {
		if _, isRef := server["baseURL"].(map[string]any); !isRef {
			result.addError("server.baseURL", "baseURL is required. Example: \"http://localhost:8000\"")
		}
	} else if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		result.addError("server.baseURL", "baseURL must start with http:// or https://")
	}
}

func validateAuthStructure(rawConfig map[string]any, result *ValidationResult) {
	auth, ok := rawConfig["auth"].(map[string]any)
	if !ok {
		result.addError("auth", "auth field is required and must be an object")
		return
	}

	if secret, exists := auth["secretKey"]; !exists {
		result.addError("auth.secretKey", "secretKey is required. Hint: {\"$env\": \"SECRET_KEY\"} with at least %d characters", MinSecretKeyLength)
	} else if err := validateEnvVarReference(secret, "auth.secretKey"); err != nil {
		result.Errors = append(result.Errors, *err)
	}

	durations := make(map[string]time.Duration)
	for _, field := range []string{"codeTtl", "tokenTtl", "consentTtl", "cleanupInterval"} {
		v, exists := auth[field]
		if !exists {
			continue
		}
		s, ok := v.(string)
		if !ok {
			result.addError("auth."+field, "%s must be a duration string like \"10m\"", field)
			continue
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			result.addError("auth."+field, "invalid duration %q: %v", s, err)
			continue
		}
		durations[field] = d
	}

	codeTTL, hasCode := durations["codeTtl"]
	if !hasCode {
		codeTTL = DefaultCodeTTL
	}
	if cleanup, ok := durations["cleanupInterval"]; ok && cleanup > codeTTL {
		result.addWarning("auth.cleanupInterval",
			"cleanupInterval (%s) is longer than codeTtl (%s). Expired codes will stay in memory until cleanup runs.",
			cleanup, codeTTL)
	}

	if scopes, exists := auth["availableScopes"]; exists {
		if _, ok := scopes.([]any); !ok {
			result.addError("auth.availableScopes", "availableScopes must be an array of strings")
		}
	}

	if allow, ok := auth["allowRegistration"].(bool); ok && allow {
		result.addWarning("auth.allowRegistration", "anyone who can reach the server can create an account")
	}
}

func validateStorageStructure(rawConfig map[string]any, result *ValidationResult) {
	raw, exists := rawConfig["storage"]
	if !exists {
		result.addWarning("storage", "no storage configured; memory storage loses all codes and tokens on restart")
		return
	}
	storage, ok := raw.(map[string]any)
	if !ok {
		result.addError("storage", "storage must be an object")
		return
	}

	kind, _ := storage["kind"].(string)
	switch StorageKind(kind) {
	case "", StorageKindMemory:
		result.addWarning("storage.kind", "memory storage loses all codes and tokens on restart")
	case StorageKindRedis:
		redis, ok := storage["redis"].(map[string]any)
		if !ok {
			result.addError("storage.redis", "redis configuration is required when kind is redis")
			return
		}
		if _, ok := redis["addr"]; !ok {
			result.addError("storage.redis.addr", "addr is required. Example: \"localhost:6379\"")
		}
		if password, exists := redis["password"]; exists {
			if err := validateEnvVarReference(password, "storage.redis.password"); err != nil {
				result.Errors = append(result.Errors, *err)
			}
		}
	default:
		result.addError("storage.kind", "storage kind must be memory or redis, got '%s'", kind)
	}
}

func validateClientsStructure(rawConfig map[string]any, result *ValidationResult) {
	clients, ok := rawConfig["clients"].(map[string]any)
	if !ok {
		result.addError("clients", "clients field is required and must be an object keyed by client_id")
		return
	}
	if len(clients) == 0 {
		result.addError("clients", "at least one client is required")
	}

	for id, raw := range clients {
		path := "clients." + id
		client, ok := raw.(map[string]any)
		if !ok {
			result.addError(path, "client must be an object")
			continue
		}

		if secret, exists := client["secret"]; !exists {
			result.addError(path+".secret", "secret is required")
		} else if err := validateEnvVarReference(secret, path+".secret"); err != nil {
			result.Errors = append(result.Errors, *err)
		}

		redirect, ok := client["redirectUri"].(string)
		switch {
		case !ok || redirect == "":
			result.addError(path+".redirectUri", "redirectUri is required")
		case strings.Contains(redirect, "#"):
			result.addError(path+".redirectUri", "redirectUri must not contain a fragment")
		case strings.HasPrefix(redirect, "http://") && !isLoopback(redirect):
			result.addWarning(path+".redirectUri", "redirectUri uses plain http; codes will travel unencrypted")
		}

		if scopes, ok := client["allowedScopes"].([]any); !ok || len(scopes) == 0 {
			result.addError(path+".allowedScopes", "allowedScopes must be a non-empty array")
		}
	}
}

func validateUsersStructure(rawConfig map[string]any, result *ValidationResult) {
	raw, exists := rawConfig["users"]
	if !exists {
		return
	}
	users, ok := raw.([]any)
	if !ok {
		result.addError("users", "users must be an array")
		return
	}

	for i, u := range users {
		path := fmt.Sprintf("users[%d]", i)
		user, ok := u.(map[string]any)
		if !ok {
			result.addError(path, "user must be an object")
			continue
		}
		if name, _ := user["username"].(string); name == "" {
			result.addError(path+".username", "username is required")
		}

		password, hasPassword := user["password"]
		_, hasHash := user["passwordHash"]
		switch {
		case hasPassword && hasHash:
			result.addError(path, "set either password or passwordHash, not both")
		case !hasPassword && !hasHash:
			result.addError(path, "password or passwordHash is required. Hint: codegrant hash-secret prints a bcrypt hash")
		case hasPassword:
			if err := validateEnvVarReference(password, path+".password"); err != nil {
				result.Errors = append(result.Errors, *err)
			}
		}
	}
}

// validateEnvVarReference checks that a secret is an {"$env": "VAR"} reference
func validateEnvVarReference(value any, path string) *ValidationError {
	switch v := value.(type) {
	case string:
		if matches := bashStyleRegex.FindStringSubmatch(v); len(matches) > 1 {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", v, matches[1]),
			}
		}
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference {\"$env\": \"YOUR_ENV_VAR\"} instead of plain text. Hint: This prevents secrets from being stored in config files", path),
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%s must use {\"$env\": \"YOUR_ENV_VAR\"} format", path),
			}
		}
		return nil
	default:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must be an environment variable reference {\"$env\": \"YOUR_ENV_VAR\"}, not %T", path, value),
		}
	}
}

// checkBashStyleSyntax recursively checks for bash-style env var syntax
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", match, varName)
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			// bcrypt hashes are full of '$'
			if key == "passwordHash" {
				continue
			}
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}

func isLoopback(raw string) bool {
	rest := strings.TrimPrefix(raw, "http://")
	return strings.HasPrefix(rest, "localhost") || strings.HasPrefix(rest, "127.0.0.1") || strings.HasPrefix(rest, "[::1]")
}
