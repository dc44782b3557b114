// Package cache provides the key/value store used for short-lived derived data
// (grade CMVs, comps results). Callers depend only on Store so the in-process
// LRU can be swapped for Redis without code changes.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Store is a byte-oriented key/value store with per-entry TTL.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// GetJSON decodes a cached JSON value into dst. It returns ErrMiss on a miss.
func GetJSON(ctx context.Context, s Store, key string, dst any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// SetJSON encodes value as JSON and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, data, ttl)
}
