// Package store persists job and batch state with expiry. A StatusStore
// writes through a primary Backend (redis or postgres) and falls back to
// an in-process map when the primary is unavailable.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("store: key not found")

// Backend is a raw key/value store with per-key expiry.
type Backend interface {
	Name() string
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}
