// Salescope - Authorization-Scoped Device Sales Snapshot API
// Copyright 2026 Stormfield Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stormfield-io/salescope

// Package store provides read access to per-device sales snapshot
// documents held in an S3-compatible object store, with circuit
// breaker protection and corrupt-document diagnostics.
package store

import (
	"context"
	"errors"
)

var (
	// ErrObjectNotFound indicates the requested object key does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrStoreUnavailable indicates the object store could not be reached
	// or rejected the request.
	ErrStoreUnavailable = errors.New("object store unavailable")

	// ErrCorruptDocument indicates a snapshot object exists but does not
	// hold valid JSON of the expected shape.
	ErrCorruptDocument = errors.New("corrupt snapshot document")
)

// ObjectStore is the minimal read surface the snapshot reader needs.
type ObjectStore interface {
	// Get returns the raw bytes of the object at key, or
	// ErrObjectNotFound when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns all object keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
