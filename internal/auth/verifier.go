// Salescope - Authorization-Scoped Device Sales Snapshot API
// Copyright 2026 Stormfield Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stormfield-io/salescope

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stormfield-io/salescope/internal/config"
	"github.com/stormfield-io/salescope/internal/logging"
	"github.com/stormfield-io/salescope/internal/metrics"
)

// Verifier validates bearer tokens against the remote key set and
// enforces the expected issuer and audience. A zero issuer or client
// ID marks the verifier as misconfigured; every Verify call then fails
// with ErrServerMisconfigured rather than at startup, so the rest of
// the API stays serviceable.
type Verifier struct {
	issuer      string
	clientID    string
	groupsClaim string
	deviceClaim string
	keys        *KeySetCache
}

// NewVerifier creates a token verifier from the auth configuration.
func NewVerifier(cfg config.AuthConfig) *Verifier {
	return &Verifier{
		issuer:      cfg.Issuer(),
		clientID:    cfg.ClientID,
		groupsClaim: cfg.GroupsClaim,
		deviceClaim: cfg.DeviceClaim,
		keys:        NewKeySetCache(cfg.KeySetURL(), cfg.JWKSTimeout),
	}
}

// Configured reports whether the verifier has the settings it needs to
// validate tokens.
func (v *Verifier) Configured() bool {
	return v.issuer != "" && v.clientID != ""
}

// Verify validates the raw bearer token and returns its claims.
// Signature, expiry, issuer and audience are all enforced; any
// authentication failure maps to one of the package sentinel errors.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	if !v.Configured() {
		metrics.RecordVerification("misconfigured")
		return nil, ErrServerMisconfigured
	}

	if rawToken == "" {
		metrics.RecordVerification("no_credentials")
		return nil, ErrNoCredentials
	}

	keySet, err := v.keys.Get(ctx)
	if err != nil {
		metrics.RecordVerification("upstream_error")
		return nil, err
	}

	token, err := jwt.Parse(rawToken, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		kid, _ := t.Header["kid"].(string)
		key, ok := keySet.Key(kid)
		if !ok {
			return nil, ErrKeyNotFound
		}
		return key, nil
	})
	if err != nil {
		classified := classifyParseError(err)
		metrics.RecordVerification("rejected")
		logging.Ctx(ctx).Debug().Err(err).Msg("Token verification failed")
		return nil, classified
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		metrics.RecordVerification("rejected")
		return nil, ErrMalformedToken
	}

	if err := v.checkIssuer(mc); err != nil {
		metrics.RecordVerification("rejected")
		return nil, err
	}
	if err := v.checkAudience(mc); err != nil {
		metrics.RecordVerification("rejected")
		return nil, err
	}

	claims := claimsFromToken(mc, v.groupsClaim, v.deviceClaim)
	metrics.RecordVerification("success")
	return claims, nil
}

// checkIssuer enforces an exact issuer match.
func (v *Verifier) checkIssuer(mc jwt.MapClaims) error {
	iss, _ := mc["iss"].(string)
	if iss != v.issuer {
		return fmt.Errorf("%w: got %q", ErrIssuerMismatch, iss)
	}
	return nil
}

// checkAudience accepts the client ID in either the aud claim (string
// or array form) or the Cognito-style client_id claim.
func (v *Verifier) checkAudience(mc jwt.MapClaims) error {
	switch aud := mc["aud"].(type) {
	case string:
		if aud == v.clientID {
			return nil
		}
	case []interface{}:
		for _, a := range aud {
			if s, ok := a.(string); ok && s == v.clientID {
				return nil
			}
		}
	}
	if clientID, _ := mc["client_id"].(string); clientID == v.clientID {
		return nil
	}
	return ErrAudienceMismatch
}

// classifyParseError maps jwt library errors to package sentinels.
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, ErrKeyNotFound):
		return ErrKeyNotFound
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformedToken
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}

// ExtractBearerToken pulls the token out of an Authorization header
// value. Returns an empty string when the header is absent or not a
// bearer scheme.
func ExtractBearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
