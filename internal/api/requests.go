// Salescope - Authorization-Scoped Device Sales Snapshot API
// Copyright 2026 Stormfield Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stormfield-io/salescope

package api

// Request validation structs with go-playground/validator tags. Handlers
// populate these from query parameters and pass them through
// validation.ValidateStruct before touching the store.

// LatestRequest represents the validated query parameters for the /latest endpoint.
//
// Fields:
//   - Limit: Maximum table rows to return (1-2000, default 200)
type LatestRequest struct {
	Limit int `validate:"min=1,max=2000"`
}

// TrendRequest represents the validated query parameters for the /trend endpoint.
//
// Fields:
//   - Bucket: Aggregation granularity (day or hour, default day)
type TrendRequest struct {
	Bucket string `validate:"oneof=day hour"`
}
