// Salescope - Authorization-Scoped Device Sales Snapshot API
// Copyright 2026 Stormfield Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stormfield-io/salescope

// Package aggregate derives read models from raw snapshot records:
// the sorted latest-records table, day/hour trend series, and
// per-device record counts. All functions are pure.
package aggregate

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/stormfield-io/salescope/internal/store"
)

var (
	// ErrInvalidBucket indicates an unsupported trend bucket granularity.
	ErrInvalidBucket = errors.New("invalid trend bucket")

	// ErrBadTimestamp indicates a record whose timestamp is missing or
	// unparseable where ordering integrity is required.
	ErrBadTimestamp = errors.New("record has invalid timestamp")
)

// Bucket granularities accepted by Trend.
const (
	BucketDay  = "day"
	BucketHour = "hour"
)

// tsField names the timestamp field every record is expected to carry.
const tsField = "ts"

// TrendBucket is one row of a trend series.
type TrendBucket struct {
	Bucket     string  `json:"bucket"`
	TotalQty   float64 `json:"total_qty"`
	TotalValue float64 `json:"total_value"`
}

// DeviceCount is one row of the per-device record count rollup.
type DeviceCount struct {
	DeviceID    string `json:"deviceId"`
	RecordCount int    `json:"recordCount"`
}

// LatestTable sorts records descending by timestamp and returns at most
// limit of them together with the true total count, so callers can
// tell "returned 200 of 5000" apart from "only 5 exist".
//
// A record with a missing or unparseable timestamp fails the whole
// call; ordering integrity over a partially ordered table is worse
// than no table.
func LatestTable(records []store.Record, limit int) ([]store.Record, int, error) {
	type keyed struct {
		rec store.Record
		ts  time.Time
	}

	rows := make([]keyed, 0, len(records))
	for i, rec := range records {
		ts, err := recordTimestamp(rec)
		if err != nil {
			return nil, 0, fmt.Errorf("record %d: %w", i, err)
		}
		rows = append(rows, keyed{rec: rec, ts: ts})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].ts.After(rows[j].ts)
	})

	total := len(rows)
	if limit > 0 && limit < total {
		rows = rows[:limit]
	}

	out := make([]store.Record, len(rows))
	for i, row := range rows {
		out[i] = row.rec
	}
	return out, total, nil
}

// Trend groups records into day or hour buckets and accumulates
// quantity and value totals per bucket, returned ascending by label.
//
// Unlike LatestTable this is a best-effort rollup: records with a
// missing or unparseable timestamp are skipped, and qty/unit_price
// values that are absent or unparseable count as zero.
func Trend(records []store.Record, bucket string) ([]TrendBucket, error) {
	var layout string
	switch bucket {
	case BucketDay:
		layout = "2006-01-02"
	case BucketHour:
		layout = "2006-01-02 15:00"
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidBucket, bucket)
	}

	totals := make(map[string]*TrendBucket)
	for _, rec := range records {
		ts, err := recordTimestamp(rec)
		if err != nil {
			continue
		}
		label := ts.Format(layout)

		qty := numericField(rec, "qty")
		price := numericField(rec, "unit_price")

		row, ok := totals[label]
		if !ok {
			row = &TrendBucket{Bucket: label}
			totals[label] = row
		}
		row.TotalQty += qty
		row.TotalValue += qty * price
	}

	series := make([]TrendBucket, 0, len(totals))
	for _, row := range totals {
		row.TotalQty = round2(row.TotalQty)
		row.TotalValue = round2(row.TotalValue)
		series = append(series, *row)
	}
	sort.Slice(series, func(i, j int) bool {
		return series[i].Bucket < series[j].Bucket
	})
	return series, nil
}

// DeviceCounts computes record counts per device, sorted descending by
// count with ties broken by ascending device identifier.
func DeviceCounts(docs map[string]*store.SnapshotDocument) []DeviceCount {
	counts := make([]DeviceCount, 0, len(docs))
	for id, doc := range docs {
		n := 0
		if doc != nil {
			n = len(doc.Records)
		}
		counts = append(counts, DeviceCount{DeviceID: id, RecordCount: n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].RecordCount != counts[j].RecordCount {
			return counts[i].RecordCount > counts[j].RecordCount
		}
		return counts[i].DeviceID < counts[j].DeviceID
	})
	return counts
}

// recordTimestamp extracts and parses the record's ts field.
func recordTimestamp(rec store.Record) (time.Time, error) {
	raw, ok := rec[tsField]
	if !ok || raw == nil {
		return time.Time{}, fmt.Errorf("%w: missing %s field", ErrBadTimestamp, tsField)
	}
	s, ok := raw.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s is %T, want string", ErrBadTimestamp, tsField, raw)
	}
	return parseTimestamp(s)
}

// parseTimestamp parses an ISO-8601 timestamp. A trailing literal Z is
// the UTC offset; naive timestamps (no offset) are also accepted and
// read as UTC.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrBadTimestamp)
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
}

// numericField coerces a record field to float64, accepting numeric or
// numeric-as-text representations. Absent or unparseable values count
// as zero.
func numericField(rec store.Record, field string) float64 {
	switch v := rec[field].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// round2 rounds to 2 decimal places.
func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
