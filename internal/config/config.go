// Package config loads runtime settings from environment variables.
//
// Every setting has a default that works for local development except the
// identity provider domain: without AUTH0_DOMAIN the server still starts, but
// every authenticated call is rejected.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPort        = 8080
	DefaultDBPath      = "data/support.db"
	DefaultNamespace   = "https://pennylane.app/"
	DefaultCORSOrigin  = "http://localhost:3000"
	DefaultJWKSTimeout = 10 * time.Second
)

// Auth holds identity provider settings.
type Auth struct {
	Domain     string   // e.g. "tenant.eu.auth0.com"
	Audience   string   // API identifier expected in "aud"
	Algorithms []string // accepted signing algorithms
	Namespace  string   // prefix of custom claims, always ends with "/"

	// SkipTLSVerify disables certificate checks on the key set fetch.
	// Development only.
	SkipTLSVerify bool
	// CABundle is a PEM file trusted when the system store rejects the
	// provider's certificate.
	CABundle    string
	JWKSTimeout time.Duration
}

// Enabled reports whether an identity provider is configured.
func (a Auth) Enabled() bool {
	return a.Domain != ""
}

// Issuer is the expected "iss" claim.
func (a Auth) Issuer() string {
	return "https://" + a.Domain + "/"
}

// JWKSURL is the provider's published key set.
func (a Auth) JWKSURL() string {
	return "https://" + a.Domain + "/.well-known/jwks.json"
}

type Config struct {
	Port        int
	DBPath      string
	CORSOrigins []string
	LogLevel    slog.Level
	Auth        Auth
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Config{
		Port:        DefaultPort,
		DBPath:      DefaultDBPath,
		CORSOrigins: []string{DefaultCORSOrigin},
		LogLevel:    slog.LevelDebug,
		Auth: Auth{
			Domain:      strings.TrimSpace(getenv("AUTH0_DOMAIN")),
			Audience:    strings.TrimSpace(getenv("API_IDENTIFIER")),
			Algorithms:  []string{"RS256"},
			Namespace:   NormalizeNamespace(getenv("AUTH0_NAMESPACE")),
			CABundle:    strings.TrimSpace(getenv("AUTH_CA_BUNDLE")),
			JWKSTimeout: DefaultJWKSTimeout,
		},
	}

	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("config: invalid PORT %q", v)
		}
		cfg.Port = port
	}

	if v := getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}

	if v := getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}

	if v := getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return Config{}, fmt.Errorf("config: invalid LOG_LEVEL %q: %w", v, err)
		}
	}

	if v := getenv("ALGORITHMS"); v != "" {
		cfg.Auth.Algorithms = splitList(v)
	}

	if v := getenv("AUTH_SKIP_TLS_VERIFY"); v != "" {
		skip, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid AUTH_SKIP_TLS_VERIFY %q", v)
		}
		cfg.Auth.SkipTLSVerify = skip
	}

	if v := getenv("JWKS_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("config: invalid JWKS_TIMEOUT %q", v)
		}
		cfg.Auth.JWKSTimeout = d
	}

	return cfg, nil
}

// NormalizeNamespace trims surrounding slashes and whitespace and appends a
// single trailing slash, falling back to DefaultNamespace when ns is blank.
func NormalizeNamespace(ns string) string {
	ns = strings.Trim(strings.TrimSpace(ns), "/")
	if ns == "" {
		return DefaultNamespace
	}
	return ns + "/"
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
