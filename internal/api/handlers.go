// Salescope - Authorization-Scoped Device Sales Snapshot API
// Copyright 2026 Stormfield Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stormfield-io/salescope

package api

import (
	"errors"
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/stormfield-io/salescope/internal/aggregate"
	"github.com/stormfield-io/salescope/internal/auth"
	"github.com/stormfield-io/salescope/internal/logging"
	"github.com/stormfield-io/salescope/internal/store"
	"github.com/stormfield-io/salescope/internal/validation"
)

const (
	defaultLimit = 200

	// deviceCountsConcurrency bounds parallel snapshot reads for the
	// all-devices rollup.
	deviceCountsConcurrency = 8
)

// Connect is an unauthenticated connectivity check for clients.
func (rt *Router) Connect(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Salescope API is reachable",
	})
}

// Healthz reports process liveness for orchestrators.
func (rt *Router) Healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": rt.version,
	})
}

// Profile returns the verified identity of the caller.
func (rt *Router) Profile(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		respondError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid or missing credentials")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sub":      claims.Subject,
		"username": claims.Username,
		"email":    claims.Email,
		"groups":   claims.Groups,
		"deviceId": claims.DeviceID,
		"isAdmin":  rt.scoper.IsAdmin(claims),
	})
}

// Data returns the raw snapshot document for the effective device.
func (rt *Router) Data(w http.ResponseWriter, r *http.Request) {
	access, ok := rt.resolveAccess(w, r)
	if !ok {
		return
	}

	doc, err := rt.reader.ReadLatest(r.Context(), access.DeviceID)
	if err != nil {
		writeStoreError(w, r, access.DeviceID, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"deviceId": access.DeviceID,
		"isAdmin":  access.IsAdmin,
		"data":     doc,
	})
}

// Latest returns the newest records for the effective device, sorted
// descending by timestamp, with the true total count.
func (rt *Router) Latest(w http.ResponseWriter, r *http.Request) {
	access, ok := rt.resolveAccess(w, r)
	if !ok {
		return
	}

	req := LatestRequest{Limit: defaultLimit}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "limit must be an integer")
			return
		}
		req.Limit = n
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, verr.Error())
		return
	}

	doc, err := rt.reader.ReadLatest(r.Context(), access.DeviceID)
	if err != nil {
		writeStoreError(w, r, access.DeviceID, err)
		return
	}

	records, total, err := aggregate.LatestTable(doc.Records, req.Limit)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("device_id", access.DeviceID).Msg("Snapshot records failed timestamp ordering")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Snapshot contains records with invalid timestamps")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"deviceId": access.DeviceID,
		"isAdmin":  access.IsAdmin,
		"count":    total,
		"records":  records,
	})
}

// Trend returns the time-bucketed quantity and value series for the
// effective device.
func (rt *Router) Trend(w http.ResponseWriter, r *http.Request) {
	access, ok := rt.resolveAccess(w, r)
	if !ok {
		return
	}

	req := TrendRequest{Bucket: r.URL.Query().Get("bucket")}
	if req.Bucket == "" {
		req.Bucket = aggregate.BucketDay
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, verr.Error())
		return
	}

	doc, err := rt.reader.ReadLatest(r.Context(), access.DeviceID)
	if err != nil {
		writeStoreError(w, r, access.DeviceID, err)
		return
	}

	series, err := aggregate.Trend(doc.Records, req.Bucket)
	if err != nil {
		if errors.Is(err, aggregate.ErrInvalidBucket) {
			respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "bucket must be one of: day, hour")
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Str("device_id", access.DeviceID).Msg("Trend aggregation failed")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Internal server error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"deviceId": access.DeviceID,
		"isAdmin":  access.IsAdmin,
		"bucket":   req.Bucket,
		"series":   series,
	})
}

// Devices lists every device that has a snapshot. Admin only.
func (rt *Router) Devices(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		respondError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid or missing credentials")
		return
	}
	if !rt.scoper.IsAdmin(claims) {
		respondError(w, r, http.StatusForbidden, ErrCodeForbidden, "Administrator access required")
		return
	}

	ids, err := rt.reader.ListDeviceIDs(r.Context())
	if err != nil {
		writeStoreError(w, r, "", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"devices": ids,
	})
}

// DeviceCounts returns record counts per device. Admins see every
// device; non-admins see only their assigned device. Snapshot reads
// fan out concurrently, and a single failed read fails the whole
// response rather than silently omitting a device.
func (rt *Router) DeviceCounts(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		respondError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid or missing credentials")
		return
	}

	var deviceIDs []string
	if rt.scoper.IsAdmin(claims) {
		ids, err := rt.reader.ListDeviceIDs(r.Context())
		if err != nil {
			writeStoreError(w, r, "", err)
			return
		}
		deviceIDs = ids
	} else {
		access, err := rt.scoper.ResolveAccess(claims, "")
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		deviceIDs = []string{access.DeviceID}
	}

	docs := make(map[string]*store.SnapshotDocument, len(deviceIDs))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(deviceCountsConcurrency)
	for _, id := range deviceIDs {
		g.Go(func() error {
			doc, err := rt.reader.ReadLatest(ctx, id)
			if errors.Is(err, store.ErrObjectNotFound) {
				// A listed device with no snapshot counts as zero records.
				doc = &store.SnapshotDocument{}
			} else if err != nil {
				return err
			}
			mu.Lock()
			docs[id] = doc
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		writeStoreError(w, r, "", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"devices": aggregate.DeviceCounts(docs),
	})
}

// resolveAccess extracts claims from the context and applies the
// device scoping rule. Writes the error response itself on failure.
func (rt *Router) resolveAccess(w http.ResponseWriter, r *http.Request) (auth.EffectiveAccess, bool) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		respondError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid or missing credentials")
		return auth.EffectiveAccess{}, false
	}

	access, err := rt.scoper.ResolveAccess(claims, r.URL.Query().Get("device_id"))
	if err != nil {
		writeAuthError(w, r, err)
		return auth.EffectiveAccess{}, false
	}
	return access, true
}

// writeStoreError maps snapshot read failures onto HTTP responses.
func writeStoreError(w http.ResponseWriter, r *http.Request, deviceID string, err error) {
	switch {
	case errors.Is(err, store.ErrObjectNotFound):
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "No snapshot found for device "+deviceID)

	case errors.Is(err, store.ErrCorruptDocument):
		logging.Ctx(r.Context()).Error().Err(err).Str("device_id", deviceID).Msg("Snapshot document is corrupt")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Snapshot document is not valid JSON")

	case errors.Is(err, store.ErrStoreUnavailable):
		logging.Ctx(r.Context()).Error().Err(err).Msg("Object store unavailable")
		respondError(w, r, http.StatusBadGateway, ErrCodeExternalServiceFail, "Object store unavailable")

	default:
		logging.Ctx(r.Context()).Error().Err(err).Msg("Unexpected store error")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Internal server error")
	}
}
