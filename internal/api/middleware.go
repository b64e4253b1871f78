// Salescope - Authorization-Scoped Device Sales Snapshot API
// Copyright 2026 Stormfield Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stormfield-io/salescope

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/stormfield-io/salescope/internal/auth"
	"github.com/stormfield-io/salescope/internal/logging"
)

type contextKey string

const claimsContextKey contextKey = "claims"

// Authenticate verifies the bearer token on every request and stores
// the resulting claims in the request context. Requests that fail
// verification never reach a handler.
func (rt *Router) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.ExtractBearerToken(r.Header.Get("Authorization"))

		claims, err := rt.verifier.Verify(r.Context(), token)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClaimsFromContext returns the verified claims stored by Authenticate.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	return claims, ok
}

// writeAuthError maps verification and scoping failures onto HTTP
// responses. Authentication failures are 401, scoping failures are
// 400/403, and server-side problems are 5xx.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case auth.IsAuthenticationFailure(err):
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Request rejected: authentication failed")
		respondError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid or missing credentials")

	case errors.Is(err, auth.ErrMissingDeviceParam):
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "device_id query parameter is required for admin access")

	case errors.Is(err, auth.ErrNoDeviceAssigned):
		respondError(w, r, http.StatusForbidden, ErrCodeForbidden, "No device is assigned to this account")

	case errors.Is(err, auth.ErrUpstreamUnavailable):
		logging.Ctx(r.Context()).Error().Err(err).Msg("Key-set provider unavailable")
		respondError(w, r, http.StatusBadGateway, ErrCodeExternalServiceFail, "Identity provider unavailable")

	case errors.Is(err, auth.ErrServerMisconfigured):
		logging.Ctx(r.Context()).Error().Err(err).Msg("Token verification is not configured")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Server authentication is not configured")

	default:
		logging.Ctx(r.Context()).Error().Err(err).Msg("Unexpected authentication error")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Internal server error")
	}
}
