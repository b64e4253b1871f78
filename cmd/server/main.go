// Salescope - Authorization-Scoped Device Sales Snapshot API
// Copyright 2026 Stormfield Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stormfield-io/salescope

// Package main is the entry point for the Salescope API server.
//
// Salescope exposes authorization-scoped read access to per-device
// sales snapshots held in an S3-compatible object store, plus derived
// views: the sorted latest-records table, day/hour trend series, and
// device record counts.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: settings from environment variables and config files (Koanf v2)
//  2. Object Store: S3 client wrapped in a circuit breaker
//  3. Token Verifier: bearer-token verification against the identity
//     provider's remote key set
//  4. HTTP Server: Chi router with CORS, rate limiting and Prometheus metrics
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (see .env.example)
//   - Config file (config.yaml)
//   - Built-in defaults
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM: it stops
// accepting new connections and waits up to 10s for in-flight requests.
//
// # Example Usage
//
//	export AUTH_AUTHORITY_URL=https://cognito-idp.eu-north-1.amazonaws.com
//	export AUTH_POOL_ID=eu-north-1_XXXXXXXXX
//	export AUTH_CLIENT_ID=your-app-client-id
//	export STORAGE_BUCKET=sales-snapshots
//	./salescope
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/stormfield-io/salescope/internal/api"
	"github.com/stormfield-io/salescope/internal/auth"
	"github.com/stormfield-io/salescope/internal/config"
	"github.com/stormfield-io/salescope/internal/logging"
	"github.com/stormfield-io/salescope/internal/store"
)

// version is set at build time via -ldflags.
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	// A local .env is optional; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Str("version", version).Msg("Starting Salescope")
	logging.Info().
		Str("bucket", cfg.Storage.Bucket).
		Str("prefix", cfg.Storage.Prefix).
		Str("issuer", cfg.Auth.Issuer()).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s3Store, err := store.NewS3Store(ctx, cfg.Storage)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize object store")
	}
	reader := store.NewSnapshotReader(store.NewBreakerStore(s3Store), cfg.Storage.Prefix)

	verifier := auth.NewVerifier(cfg.Auth)
	if !verifier.Configured() {
		logging.Warn().Msg("Token verification is not configured; all authenticated requests will be rejected")
	}

	router := api.NewRouter(cfg, verifier, reader, version)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logging.Fatal().Err(err).Msg("HTTP server failed")
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Graceful shutdown failed")
	}
	logging.Info().Msg("Salescope stopped")
}
