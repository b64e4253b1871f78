// Salescope - Authorization-Scoped Device Sales Snapshot API
// Copyright 2026 Stormfield Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stormfield-io/salescope

package auth

import "errors"

// Verification failures. All of these surface uniformly to callers as an
// authentication failure; the distinct sentinels exist for logging,
// metrics and tests, not for leaking claim-level detail to clients.
var (
	// ErrNoCredentials indicates the request carried no bearer token.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrMalformedToken indicates the token header could not be parsed.
	ErrMalformedToken = errors.New("malformed token")

	// ErrKeyNotFound indicates the token's kid is absent from the key set.
	// Covers key rotation gaps and forged kids; never falls back to an
	// unrelated key.
	ErrKeyNotFound = errors.New("signing key not found")

	// ErrInvalidSignature indicates the signature did not verify.
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrTokenExpired indicates the token is past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrIssuerMismatch indicates the iss claim does not exactly equal
	// the configured issuer.
	ErrIssuerMismatch = errors.New("token issuer mismatch")

	// ErrAudienceMismatch indicates the aud claim does not contain the
	// configured client ID.
	ErrAudienceMismatch = errors.New("token audience mismatch")
)

// Configuration and upstream failures (5xx-class).
var (
	// ErrServerMisconfigured indicates the issuer/authority configuration
	// is absent. Verification never degrades to accepting unverified
	// tokens when misconfigured.
	ErrServerMisconfigured = errors.New("token verification is not configured")

	// ErrUpstreamUnavailable indicates the remote key-set fetch failed
	// and no cached key set exists.
	ErrUpstreamUnavailable = errors.New("key-set provider unavailable")
)

// Authorization failures.
var (
	// ErrMissingDeviceParam indicates an admin caller omitted the
	// device_id parameter. Client input error, not a server error.
	ErrMissingDeviceParam = errors.New("device_id parameter required for admin access")

	// ErrNoDeviceAssigned indicates a non-admin caller has no device
	// claim. Access denial, distinct from "not authenticated".
	ErrNoDeviceAssigned = errors.New("no device assigned to caller")
)

// IsAuthenticationFailure reports whether err belongs to the class of
// verification failures that map to a uniform 401.
func IsAuthenticationFailure(err error) bool {
	for _, sentinel := range []error{
		ErrNoCredentials,
		ErrMalformedToken,
		ErrKeyNotFound,
		ErrInvalidSignature,
		ErrTokenExpired,
		ErrIssuerMismatch,
		ErrAudienceMismatch,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
