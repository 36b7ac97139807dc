package cache

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// ErrCacheMiss is returned when a key is absent or has expired
var ErrCacheMiss = errors.New("cache: key not found")

// Store is the expiring key-value substrate shared by the rate limiter,
// the session store and related guard state. All TTLs are absolute per call;
// Set and IncrBy restart the window, Touch extends it without a write.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Touch resets the TTL of an existing key. Missing keys return ErrCacheMiss.
	Touch(ctx context.Context, key string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// IncrBy atomically increments a numeric key (creating it at zero) and
	// refreshes its TTL, returning the new value.
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

// GetInt64 reads a counter key, treating absence as zero
func GetInt64(ctx context.Context, s Store, key string) (int64, error) {
	raw, err := s.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return 0, nil
		}
		return 0, err
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// Treat corrupt counters as empty rather than poisoning the guard
		return 0, nil
	}
	return n, nil
}
