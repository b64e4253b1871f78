// Salescope - Authorization-Scoped Device Sales Snapshot API
// Copyright 2026 Stormfield Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stormfield-io/salescope

package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/stormfield-io/salescope/internal/logging"
	"github.com/stormfield-io/salescope/internal/metrics"
)

// KeySet is a collection of RSA verification keys indexed by key ID.
// Immutable after construction.
type KeySet struct {
	keys map[string]*rsa.PublicKey
}

// Key returns the key with the given ID.
func (s *KeySet) Key(kid string) (*rsa.PublicKey, bool) {
	key, ok := s.keys[kid]
	return key, ok
}

// Len returns the number of keys in the set.
func (s *KeySet) Len() int {
	return len(s.keys)
}

// KeySetCache fetches the verification key set from a remote provider
// and caches the first successful result for the life of the process.
// There is no TTL and no proactive refresh; staleness is resolved by
// restart. Concurrent first requests may race into multiple fetches —
// the fetch is idempotent and any successful result may win the swap
// (last-writer-wins, never a torn set).
type KeySetCache struct {
	url        string
	httpClient *http.Client

	cached atomic.Pointer[KeySet]
}

// NewKeySetCache creates a key-set cache for the given JWKS URL.
// All fetches are bounded by timeout.
func NewKeySetCache(url string, timeout time.Duration) *KeySetCache {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KeySetCache{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Get returns the cached key set, fetching it on first use. Fails with
// ErrUpstreamUnavailable when the remote fetch fails and no cached
// value exists.
func (c *KeySetCache) Get(ctx context.Context) (*KeySet, error) {
	if ks := c.cached.Load(); ks != nil {
		return ks, nil
	}

	ks, err := c.fetch(ctx)
	if err != nil {
		metrics.KeySetFetches.WithLabelValues("failure").Inc()
		logging.Ctx(ctx).Error().Err(err).Str("url", c.url).Msg("Key-set fetch failed")
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	metrics.KeySetFetches.WithLabelValues("success").Inc()
	c.cached.Store(ks)
	return ks, nil
}

// URL returns the key-set endpoint URL.
func (c *KeySetCache) URL() string {
	return c.url
}

// fetch retrieves and decodes the JWKS document.
func (c *KeySetCache) fetch(ctx context.Context) (*KeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, http.NoBody)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("key-set fetch returned status %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			Alg string `json:"alg"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode key set: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey)

	for _, key := range jwks.Keys {
		if key.Kty != "RSA" {
			continue
		}

		nBytes, err := base64URLDecode(key.N)
		if err != nil {
			continue
		}
		eBytes, err := base64URLDecode(key.E)
		if err != nil {
			continue
		}

		e := 0
		for _, b := range eBytes {
			e = e<<8 + int(b)
		}

		keys[key.Kid] = &rsa.PublicKey{
			N: new(big.Int).SetBytes(nBytes),
			E: e,
		}
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("key set at %s contains no usable RSA keys", c.url)
	}

	return &KeySet{keys: keys}, nil
}

// base64URLDecode decodes a base64url encoded string, tolerating
// missing padding.
func base64URLDecode(s string) ([]byte, error) {
	switch len(s) % 4 {
	case 2:
		s += "=="
	case 3:
		s += "="
	}
	return base64.URLEncoding.DecodeString(s)
}
