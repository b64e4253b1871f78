// Salescope - Authorization-Scoped Device Sales Snapshot API
// Copyright 2026 Stormfield Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stormfield-io/salescope

// Package config provides centralized configuration for all Salescope
// components: the HTTP server, token verification, the snapshot object
// store, security middleware, and logging.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in sensible defaults for all optional settings
//  2. Config File: optional YAML config file (config.yaml)
//  3. Environment Variables: override any setting
//
// Config is immutable after Load() and safe for concurrent reads.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Auth     AuthConfig     `koanf:"auth"`
	Storage  StorageConfig  `koanf:"storage"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// AuthConfig holds bearer-token verification settings.
//
// The token issuer is derived as AuthorityURL + "/" + PoolID, e.g.
// https://cognito-idp.eu-north-1.amazonaws.com/eu-north-1_2aEty66zo,
// and the key-set URL as issuer + "/.well-known/jwks.json" unless
// JWKSURL overrides it.
//
// AuthorityURL, PoolID and ClientID may be left empty: the server still
// starts, but every verification attempt fails with a 5xx
// misconfiguration error rather than accepting unverified tokens.
type AuthConfig struct {
	AuthorityURL string        `koanf:"authority_url"`
	PoolID       string        `koanf:"pool_id"`
	ClientID     string        `koanf:"client_id"`
	JWKSURL      string        `koanf:"jwks_url"`
	JWKSTimeout  time.Duration `koanf:"jwks_timeout"`

	// AdminGroup is the group-membership marker that grants admin scope.
	AdminGroup string `koanf:"admin_group"`

	// GroupsClaim and DeviceClaim name the token claims carrying the
	// caller's group list and assigned device identifier.
	GroupsClaim string `koanf:"groups_claim"`
	DeviceClaim string `koanf:"device_claim"`
}

// Issuer returns the exact issuer string a verified token must carry,
// or empty when the authority configuration is incomplete.
func (a AuthConfig) Issuer() string {
	if a.AuthorityURL == "" || a.PoolID == "" {
		return ""
	}
	return strings.TrimSuffix(a.AuthorityURL, "/") + "/" + a.PoolID
}

// KeySetURL returns the JWKS endpoint URL, honoring an explicit override.
func (a AuthConfig) KeySetURL() string {
	if a.JWKSURL != "" {
		return a.JWKSURL
	}
	issuer := a.Issuer()
	if issuer == "" {
		return ""
	}
	return issuer + "/.well-known/jwks.json"
}

// StorageConfig holds object-store settings for snapshot documents.
type StorageConfig struct {
	Bucket string `koanf:"bucket"`

	// Prefix is the logical key prefix under which per-device snapshot
	// documents live, e.g. "latest" -> "latest/<device_id>.json".
	Prefix string `koanf:"prefix"`

	Region string `koanf:"region"`

	// Endpoint optionally points at an S3-compatible store (MinIO etc).
	Endpoint string `koanf:"endpoint"`

	// ForcePathStyle is required by most S3-compatible stores.
	ForcePathStyle bool `koanf:"force_path_style"`

	// Timeout bounds every individual object-store call.
	Timeout time.Duration `koanf:"timeout"`
}

// SecurityConfig holds CORS and rate limiting settings.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for fatally inconsistent settings.
// An absent auth authority is deliberately not fatal here; the verifier
// reports it per request as a server misconfiguration instead.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server timeout must be positive, got %s", c.Server.Timeout)
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket is required")
	}
	if strings.Contains(c.Storage.Prefix, "//") {
		return fmt.Errorf("storage prefix %q is malformed", c.Storage.Prefix)
	}
	if c.Storage.Timeout <= 0 {
		return fmt.Errorf("storage timeout must be positive, got %s", c.Storage.Timeout)
	}
	if c.Auth.JWKSTimeout <= 0 {
		return fmt.Errorf("jwks timeout must be positive, got %s", c.Auth.JWKSTimeout)
	}
	if c.Auth.AuthorityURL != "" && !strings.HasPrefix(c.Auth.AuthorityURL, "https://") &&
		!strings.HasPrefix(c.Auth.AuthorityURL, "http://") {
		return fmt.Errorf("auth authority URL %q must be http(s)", c.Auth.AuthorityURL)
	}
	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs <= 0 {
			return fmt.Errorf("rate limit requests must be positive, got %d", c.Security.RateLimitReqs)
		}
		if c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("rate limit window must be positive, got %s", c.Security.RateLimitWindow)
		}
	}
	return nil
}
