// Salescope - Authorization-Scoped Device Sales Snapshot API
// Copyright 2026 Stormfield Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stormfield-io/salescope

package store

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/stormfield-io/salescope/internal/logging"
)

// Record is one raw sales record from a snapshot document. Records are
// schemaless beyond a timestamp field; the aggregation layer knows
// which fields to interpret.
type Record map[string]interface{}

// SnapshotDocument is the latest known record set for one device.
type SnapshotDocument struct {
	Records []Record `json:"records"`
}

// corruptPreviewLen bounds how much of a malformed document is echoed
// into logs and errors.
const corruptPreviewLen = 200

// SnapshotReader resolves device identifiers to snapshot documents in
// the object store, under keys of the form <prefix>/<device_id>.json.
type SnapshotReader struct {
	store  ObjectStore
	prefix string
}

// NewSnapshotReader creates a reader over the given store and key prefix.
func NewSnapshotReader(store ObjectStore, prefix string) *SnapshotReader {
	return &SnapshotReader{store: store, prefix: strings.Trim(prefix, "/")}
}

// Key returns the object key for a device's snapshot document.
func (r *SnapshotReader) Key(deviceID string) string {
	if r.prefix == "" {
		return deviceID + ".json"
	}
	return r.prefix + "/" + deviceID + ".json"
}

// ReadLatest fetches and decodes the snapshot document for one device.
// Returns ErrObjectNotFound when the device has no snapshot and
// ErrCorruptDocument when the stored bytes are not a valid document.
func (r *SnapshotReader) ReadLatest(ctx context.Context, deviceID string) (*SnapshotDocument, error) {
	key := r.Key(deviceID)

	data, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	// Documents written by Windows tooling occasionally carry a UTF-8 BOM.
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	var doc SnapshotDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		// Some producers write the records array bare, without the wrapper.
		var records []Record
		if arrErr := json.Unmarshal(data, &records); arrErr == nil {
			doc.Records = records
			return &doc, nil
		}

		preview := string(data)
		if len(preview) > corruptPreviewLen {
			preview = preview[:corruptPreviewLen]
		}
		logging.Ctx(ctx).Error().Str("key", key).Str("preview", preview).Err(err).Msg("Snapshot document is not valid JSON")
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptDocument, key, err)
	}

	return &doc, nil
}

// ListDeviceIDs enumerates devices that have a snapshot document,
// sorted ascending.
func (r *SnapshotReader) ListDeviceIDs(ctx context.Context) ([]string, error) {
	listPrefix := ""
	if r.prefix != "" {
		listPrefix = r.prefix + "/"
	}

	keys, err := r.store.List(ctx, listPrefix)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		name := strings.TrimPrefix(key, listPrefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}

	sort.Strings(ids)
	return ids, nil
}
