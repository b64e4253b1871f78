// Salescope - Authorization-Scoped Device Sales Snapshot API
// Copyright 2026 Stormfield Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stormfield-io/salescope

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stormfield-io/salescope/internal/auth"
	"github.com/stormfield-io/salescope/internal/config"
	"github.com/stormfield-io/salescope/internal/middleware"
	"github.com/stormfield-io/salescope/internal/store"
)

// Router wires the HTTP surface to the verification, scoping and
// snapshot reading components.
type Router struct {
	cfg      *config.Config
	verifier *auth.Verifier
	scoper   *auth.Scoper
	reader   *store.SnapshotReader
	version  string
}

// NewRouter creates the API router.
func NewRouter(cfg *config.Config, verifier *auth.Verifier, reader *store.SnapshotReader, version string) *Router {
	return &Router{
		cfg:      cfg,
		verifier: verifier,
		scoper:   auth.NewScoper(cfg.Auth.AdminGroup),
		reader:   reader,
		version:  version,
	}
}

// Setup configures all HTTP routes.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(rt.corsMiddleware())
	r.Use(securityHeaders)

	// Unauthenticated surface: connectivity check, liveness, metrics.
	r.Get("/connect", rt.Connect)
	r.Get("/healthz", rt.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	// Data endpoints: rate limited, instrumented, token required.
	r.Group(func(r chi.Router) {
		if !rt.cfg.Security.RateLimitDisabled {
			r.Use(httprate.LimitByIP(rt.cfg.Security.RateLimitReqs, rt.cfg.Security.RateLimitWindow))
		}
		r.Use(middleware.PrometheusMetrics)
		r.Use(rt.Authenticate)

		r.Get("/profile", rt.Profile)
		r.Get("/data", rt.Data)
		r.Get("/latest", rt.Latest)
		r.Get("/trend", rt.Trend)
		r.Get("/devices", rt.Devices)
		r.Get("/device-counts", rt.DeviceCounts)
	})

	return r
}

// corsMiddleware builds the CORS policy from configuration.
func (rt *Router) corsMiddleware() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   rt.cfg.Security.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// securityHeaders sets baseline response hardening headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
