// Salescope - Authorization-Scoped Device Sales Snapshot API
// Copyright 2026 Stormfield Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stormfield-io/salescope

// Package auth provides bearer-token verification against a remote key
// set and the authorization-scoping rule that maps an authenticated
// principal to the device it may read.
package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the decoded, verified assertions about a caller carried in
// a token. Fixed record with explicitly optional fields rather than an
// open map: absence of a group list or device claim is an empty value,
// not a missing-key runtime check. Immutable once produced; lifetime is
// one request.
type Claims struct {
	Subject  string
	Issuer   string
	Username string
	Email    string

	// Groups is the caller's group-membership list; nil when the token
	// carries no groups claim.
	Groups []string

	// DeviceID is the device identifier assigned to the caller; empty
	// when the token carries no device claim.
	DeviceID string

	IssuedAt  int64
	ExpiresAt int64
}

// InGroup reports whether the claims carry the given group membership.
func (c *Claims) InGroup(group string) bool {
	for _, g := range c.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// claimsFromToken builds typed Claims from validated jwt claims.
// groupsClaim and deviceClaim name the custom claims to read.
func claimsFromToken(mc jwt.MapClaims, groupsClaim, deviceClaim string) *Claims {
	claims := &Claims{}

	if sub, ok := mc["sub"].(string); ok {
		claims.Subject = sub
	}
	if iss, ok := mc["iss"].(string); ok {
		claims.Issuer = iss
	}
	if email, ok := mc["email"].(string); ok {
		claims.Email = email
	}

	// Username mapping in preference order, falling back to the subject
	for _, name := range []string{"cognito:username", "preferred_username", "username"} {
		if username, ok := mc[name].(string); ok && username != "" {
			claims.Username = username
			break
		}
	}
	if claims.Username == "" {
		claims.Username = claims.Subject
	}

	claims.Groups = extractStringSlice(mc, groupsClaim)

	if device, ok := mc[deviceClaim].(string); ok {
		claims.DeviceID = device
	}

	if iat, ok := mc["iat"].(float64); ok {
		claims.IssuedAt = int64(iat)
	}
	if exp, ok := mc["exp"].(float64); ok {
		claims.ExpiresAt = int64(exp)
	}

	return claims
}

// extractStringSlice extracts a string slice claim, tolerating both the
// decoded []interface{} form and a pre-typed []string.
func extractStringSlice(mc jwt.MapClaims, key string) []string {
	val, ok := mc[key]
	if !ok {
		return nil
	}

	switch v := val.(type) {
	case []string:
		return v
	case []interface{}:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	}

	return nil
}
