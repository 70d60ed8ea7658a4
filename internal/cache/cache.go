// Package cache provides the small key/value abstraction behind the rate
// limiter and the credential cache.
//
// Two implementations are available:
//   - Memory: a process-local map guarded by a mutex, with opportunistic
//     eviction of expired entries. Suitable for a single replica and tests.
//   - Redis: a shared store so limits hold across replicas.
//
// Both are safe for concurrent use and both guarantee that Incr is an atomic
// increment-or-create: concurrent increments on the same key never lose an
// update.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps failures of the backing store so callers can fail
// toward a safe default.
var ErrUnavailable = errors.New("cache unavailable")

// Store is the cache contract used by the rate limiter and credential cache.
type Store interface {
	// Get returns the value for key and whether it was present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for ttl. A non-positive ttl stores nothing.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Incr atomically increments the counter at key. When the key is absent
	// or expired a new counter is started at 1 expiring after window. It
	// returns the new count and the time the counter expires.
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)

	// Count reads the counter at key without changing it. An absent or
	// expired counter reads as 0 with a zero time.
	Count(ctx context.Context, key string) (int64, time.Time, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
