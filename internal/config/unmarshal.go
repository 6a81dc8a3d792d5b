package config

import (
	"encoding/json"
	"fmt"
)

// UnmarshalJSON resolves env references and duration strings
func (a *AuthConfig) UnmarshalJSON(data []byte) error {
	type rawAuth struct {
		SecretKey         json.RawMessage  `json:"secretKey"`
		AvailableScopes   []string         `json:"availableScopes"`
		CodeTTL           string           `json:"codeTtl"`
		TokenTTL          string           `json:"tokenTtl"`
		ConsentTTL        string           `json:"consentTtl"`
		CleanupInterval   string           `json:"cleanupInterval"`
		AllowRegistration bool             `json:"allowRegistration"`
		RateLimit         *RateLimitConfig `json:"rateLimit"`
	}

	var raw rawAuth
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.AvailableScopes = raw.AvailableScopes
	if len(a.AvailableScopes) == 0 {
		a.AvailableScopes = append([]string(nil), DefaultScopes...)
	}
	a.AllowRegistration = raw.AllowRegistration
	a.RateLimit = raw.RateLimit

	var err error
	if a.SecretKey, err = parseSecret(raw.SecretKey, "secretKey"); err != nil {
		return err
	}
	if a.CodeTTL, err = parseDuration(raw.CodeTTL, "codeTtl", DefaultCodeTTL); err != nil {
		return err
	}
	if a.TokenTTL, err = parseDuration(raw.TokenTTL, "tokenTtl", DefaultTokenTTL); err != nil {
		return err
	}
	if a.ConsentTTL, err = parseDuration(raw.ConsentTTL, "consentTtl", DefaultConsentTTL); err != nil {
		return err
	}
	if a.CleanupInterval, err = parseDuration(raw.CleanupInterval, "cleanupInterval", DefaultCleanupInterval); err != nil {
		return err
	}

	return nil
}

// UnmarshalJSON resolves the password reference
func (r *RedisConfig) UnmarshalJSON(data []byte) error {
	type rawRedis struct {
		Addr      json.RawMessage `json:"addr"`
		Username  string          `json:"username"`
		Password  json.RawMessage `json:"password"`
		DB        int             `json:"db"`
		KeyPrefix string          `json:"keyPrefix"`
	}

	var raw rawRedis
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Username = raw.Username
	r.DB = raw.DB
	r.KeyPrefix = raw.KeyPrefix

	if raw.Addr != nil {
		addr, err := ParseConfigValue(raw.Addr)
		if err != nil {
			return fmt.Errorf("parsing addr: %w", err)
		}
		r.Addr = addr
	}

	password, err := parseSecret(raw.Password, "password")
	if err != nil {
		return err
	}
	r.Password = password

	return nil
}

// UnmarshalJSON resolves the client secret reference
func (c *ClientConfig) UnmarshalJSON(data []byte) error {
	type rawClient struct {
		Name          string          `json:"name"`
		Secret        json.RawMessage `json:"secret"`
		RedirectURI   string          `json:"redirectUri"`
		AllowedScopes []string        `json:"allowedScopes"`
	}

	var raw rawClient
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Name = raw.Name
	c.RedirectURI = raw.RedirectURI
	c.AllowedScopes = raw.AllowedScopes

	secret, err := parseSecret(raw.Secret, "secret")
	if err != nil {
		return err
	}
	c.Secret = secret

	return nil
}

// UnmarshalJSON resolves the password reference
func (u *UserConfig) UnmarshalJSON(data []byte) error {
	type rawUser struct {
		Username      string          `json:"username"`
		Password      json.RawMessage `json:"password"`
		PasswordHash  string          `json:"passwordHash"`
		Email         string          `json:"email"`
		EmailVerified bool            `json:"emailVerified"`
	}

	var raw rawUser
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	u.Username = raw.Username
	u.PasswordHash = raw.PasswordHash
	u.Email = raw.Email
	u.EmailVerified = raw.EmailVerified

	password, err := parseSecret(raw.Password, fmt.Sprintf("password for user %s", raw.Username))
	if err != nil {
		return err
	}
	u.Password = password

	return nil
}

// UnmarshalJSON resolves env references in addr and baseURL
func (s *ServerConfig) UnmarshalJSON(data []byte) error {
	type rawServer struct {
		Addr           json.RawMessage `json:"addr"`
		BaseURL        json.RawMessage `json:"baseURL"`
		AllowedOrigins []string        `json:"allowedOrigins"`
	}

	var raw rawServer
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.AllowedOrigins = raw.AllowedOrigins

	if raw.Addr != nil {
		addr, err := ParseConfigValue(raw.Addr)
		if err != nil {
			return fmt.Errorf("parsing addr: %w", err)
		}
		s.Addr = addr
	}
	if raw.BaseURL != nil {
		baseURL, err := ParseConfigValue(raw.BaseURL)
		if err != nil {
			return fmt.Errorf("parsing baseURL: %w", err)
		}
		s.BaseURL = baseURL
	}

	return nil
}
