package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dgellow/codegrant/internal/config"
)

func generateDefaultConfig(path string) error {
	user := func(name string, verified bool) map[string]any {
		return map[string]any{
			"username":      name,
			"password":      map[string]string{"$env": strings.ToUpper(name) + "_PASSWORD"},
			"email":         name + "@example.com",
			"emailVerified": verified,
		}
	}

	defaultConfig := map[string]any{
		"version": config.Version,
		"server": map[string]any{
			"addr":    ":8000",
			"baseURL": "http://localhost:8000",
		},
		"auth": map[string]any{
			"secretKey":         map[string]string{"$env": "SECRET_KEY"},
			"availableScopes":   config.DefaultScopes,
			"codeTtl":           "10m",
			"tokenTtl":          "1h",
			"consentTtl":        "10m",
			"cleanupInterval":   "1m",
			"allowRegistration": true,
			"rateLimit": map[string]any{
				"requestsPerSecond": 5,
				"burst":             10,
			},
		},
		"storage": map[string]any{
			"kind": "memory",
		},
		"clients": map[string]any{
			"client123": map[string]any{
				"name":          "Demo client",
				"secret":        map[string]string{"$env": "CLIENT_SECRET"},
				"redirectUri":   "http://localhost:8001/auth/callback",
				"allowedScopes": config.DefaultScopes,
			},
		},
		"users": []any{
			user("test1", true),
			user("test2", true),
			user("test3", false),
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validateConfig(w io.Writer, path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Fprintf(w, "Validating: %s\n", path)

	if len(result.Errors) > 0 {
		fmt.Fprintf(w, "\nErrors (%d):\n", len(result.Errors))
		for _, err := range result.Errors {
			printIssue(w, err)
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintf(w, "\nWarnings (%d):\n", len(result.Warnings))
		for _, warn := range result.Warnings {
			printIssue(w, warn)
		}
	}

	fmt.Fprintln(w)
	switch {
	case len(result.Errors) > 0:
		fmt.Fprintln(w, "Result: FAIL")
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	case len(result.Warnings) > 0:
		fmt.Fprintln(w, "Result: PASS (with warnings)")
	default:
		fmt.Fprintln(w, "Result: PASS")
	}
	return nil
}

func printIssue(w io.Writer, issue config.ValidationError) {
	if issue.Path != "" {
		fmt.Fprintf(w, "  - %s: %s\n", issue.Path, issue.Message)
		return
	}
	fmt.Fprintf(w, "  - %s\n", issue.Message)
}
