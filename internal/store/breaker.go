// Salescope - Authorization-Scoped Device Sales Snapshot API
// Copyright 2026 Stormfield Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stormfield-io/salescope

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/stormfield-io/salescope/internal/logging"
	"github.com/stormfield-io/salescope/internal/metrics"
)

// BreakerStore wraps an ObjectStore with circuit breaker protection so
// a struggling object store sheds load instead of stalling every
// request. Not-found results count as successes; only transport and
// service failures trip the breaker.
type BreakerStore struct {
	inner ObjectStore
	cb    *gobreaker.CircuitBreaker[interface{}]
	name  string
}

// NewBreakerStore wraps inner with a circuit breaker.
// The breaker opens after a 60% failure rate over at least 10 requests
// and probes recovery after 30 seconds.
func NewBreakerStore(inner ObjectStore) *BreakerStore {
	cbName := "object-store"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening object-store circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &BreakerStore{inner: inner, cb: cb, name: cbName}
}

// Get fetches the object at key with circuit breaker protection.
func (b *BreakerStore) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := b.execute(func() (interface{}, error) {
		data, err := b.inner.Get(ctx, key)
		if errors.Is(err, ErrObjectNotFound) {
			// A missing key is a valid answer, not a store failure.
			return notFoundResult{err: err}, nil
		}
		return data, err
	})
	if err != nil {
		return nil, err
	}
	if nf, ok := result.(notFoundResult); ok {
		return nil, nf.err
	}
	data, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return data, nil
}

// List returns keys under prefix with circuit breaker protection.
func (b *BreakerStore) List(ctx context.Context, prefix string) ([]string, error) {
	result, err := b.execute(func() (interface{}, error) {
		return b.inner.List(ctx, prefix)
	})
	if err != nil {
		return nil, err
	}
	keys, ok := result.([]string)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return keys, nil
}

type notFoundResult struct{ err error }

// execute wraps a store call with the breaker and maps open-circuit
// rejections onto ErrStoreUnavailable.
func (b *BreakerStore) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Object-store request rejected")
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil, err
	}
	return result, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
