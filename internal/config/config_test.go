// Salescope - Authorization-Scoped Device Sales Snapshot API
// Copyright 2026 Stormfield Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stormfield-io/salescope

package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	// Buckets are required; everything else should default.
	t.Setenv("STORAGE_BUCKET", "sales-snapshots")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8090 {
		t.Errorf("Server.Port = %d, want 8090", cfg.Server.Port)
	}
	if cfg.Storage.Prefix != "latest" {
		t.Errorf("Storage.Prefix = %q, want latest", cfg.Storage.Prefix)
	}
	if cfg.Auth.AdminGroup != "admin" {
		t.Errorf("Auth.AdminGroup = %q, want admin", cfg.Auth.AdminGroup)
	}
	if cfg.Auth.GroupsClaim != "cognito:groups" {
		t.Errorf("Auth.GroupsClaim = %q", cfg.Auth.GroupsClaim)
	}
	if cfg.Auth.DeviceClaim != "custom:device_id" {
		t.Errorf("Auth.DeviceClaim = %q", cfg.Auth.DeviceClaim)
	}
	if cfg.Auth.JWKSTimeout != 10*time.Second {
		t.Errorf("Auth.JWKSTimeout = %s, want 10s", cfg.Auth.JWKSTimeout)
	}
	if len(cfg.Security.CORSOrigins) != 1 || cfg.Security.CORSOrigins[0] != "http://localhost:3000" {
		t.Errorf("Security.CORSOrigins = %v", cfg.Security.CORSOrigins)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STORAGE_BUCKET", "sales-snapshots")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("AUTH_AUTHORITY_URL", "https://cognito-idp.eu-north-1.amazonaws.com")
	t.Setenv("AUTH_POOL_ID", "eu-north-1_abc123")
	t.Setenv("AUTH_CLIENT_ID", "client-xyz")
	t.Setenv("CORS_ORIGINS", "https://app.example.com, https://admin.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if got := cfg.Auth.Issuer(); got != "https://cognito-idp.eu-north-1.amazonaws.com/eu-north-1_abc123" {
		t.Errorf("Issuer() = %q", got)
	}
	want := []string{"https://app.example.com", "https://admin.example.com"}
	if len(cfg.Security.CORSOrigins) != 2 {
		t.Fatalf("CORSOrigins = %v, want %v", cfg.Security.CORSOrigins, want)
	}
	for i := range want {
		if cfg.Security.CORSOrigins[i] != want[i] {
			t.Errorf("CORSOrigins[%d] = %q, want %q", i, cfg.Security.CORSOrigins[i], want[i])
		}
	}
}

func TestLoad_LegacyCognitoNames(t *testing.T) {
	t.Setenv("STORAGE_BUCKET", "sales-snapshots")
	t.Setenv("COGNITO_USER_POOL_ID", "eu-north-1_legacy")
	t.Setenv("COGNITO_APP_CLIENT_ID", "legacy-client")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.PoolID != "eu-north-1_legacy" {
		t.Errorf("Auth.PoolID = %q, want eu-north-1_legacy", cfg.Auth.PoolID)
	}
	if cfg.Auth.ClientID != "legacy-client" {
		t.Errorf("Auth.ClientID = %q, want legacy-client", cfg.Auth.ClientID)
	}
}

func TestLoad_MissingBucket(t *testing.T) {
	_, err := Load()
	if err == nil {
		t.Fatal("Load() succeeded without a storage bucket")
	}
	if !strings.Contains(err.Error(), "bucket") {
		t.Errorf("Load() error = %v, want bucket validation failure", err)
	}
}

func TestAuthConfig_Issuer(t *testing.T) {
	tests := []struct {
		name      string
		authority string
		pool      string
		want      string
	}{
		{"normal", "https://idp.example.com", "pool-1", "https://idp.example.com/pool-1"},
		{"trailing slash", "https://idp.example.com/", "pool-1", "https://idp.example.com/pool-1"},
		{"missing authority", "", "pool-1", ""},
		{"missing pool", "https://idp.example.com", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := AuthConfig{AuthorityURL: tt.authority, PoolID: tt.pool}
			if got := a.Issuer(); got != tt.want {
				t.Errorf("Issuer() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthConfig_KeySetURL(t *testing.T) {
	a := AuthConfig{AuthorityURL: "https://idp.example.com", PoolID: "pool-1"}
	want := "https://idp.example.com/pool-1/.well-known/jwks.json"
	if got := a.KeySetURL(); got != want {
		t.Errorf("KeySetURL() = %q, want %q", got, want)
	}

	a.JWKSURL = "https://override.example.com/jwks"
	if got := a.KeySetURL(); got != a.JWKSURL {
		t.Errorf("KeySetURL() = %q, want override %q", got, a.JWKSURL)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Storage.Bucket = "b"
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("Validate() on valid config: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port too low", func(c *Config) { c.Server.Port = 0 }},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }},
		{"zero server timeout", func(c *Config) { c.Server.Timeout = 0 }},
		{"missing bucket", func(c *Config) { c.Storage.Bucket = "" }},
		{"malformed prefix", func(c *Config) { c.Storage.Prefix = "a//b" }},
		{"zero storage timeout", func(c *Config) { c.Storage.Timeout = 0 }},
		{"zero jwks timeout", func(c *Config) { c.Auth.JWKSTimeout = 0 }},
		{"bad authority scheme", func(c *Config) { c.Auth.AuthorityURL = "ftp://idp" }},
		{"zero rate limit", func(c *Config) { c.Security.RateLimitReqs = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() succeeded, want error")
			}
		})
	}

	// Disabled rate limiting skips the rate limit checks.
	cfg := valid()
	cfg.Security.RateLimitDisabled = true
	cfg.Security.RateLimitReqs = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with disabled rate limiting: %v", err)
	}
}
