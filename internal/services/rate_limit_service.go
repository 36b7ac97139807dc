package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/havenwell/aegis/internal/cache"
)

const (
	overLimitSuffix = ":over_limit"

	// Penalty windows stop doubling past 32x the base window
	maxPenaltyExponent = 5
)

// RateLimitService implements a sliding-window counter with escalating
// penalties for keys that keep exceeding their limit. All state lives in the
// expiring cache; once the penalty window lapses the key is clean again.
type RateLimitService struct {
	store  cache.Store
	logger *slog.Logger
}

// NewRateLimitService creates a new RateLimitService
func NewRateLimitService(store cache.Store, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		store:  store,
		logger: logger,
	}
}

// CheckAndIncrement checks key against limit and, when under it, consumes
// increment units of budget and refreshes the window. When over the limit the
// counter is left alone and the violation counter is bumped instead, extending
// the penalty window to window * 2^min(violations, 5).
//
// increment above 1 lets callers charge extra for suspicious requests, e.g.
// lookups of accounts that do not exist.
func (s *RateLimitService) CheckAndIncrement(ctx context.Context, key string, limit int64, window time.Duration, increment int64) (exceeded bool, count int64, err error) {
	current, err := cache.GetInt64(ctx, s.store, key)
	if err != nil {
		return false, 0, fmt.Errorf("failed to read rate limit counter: %w", err)
	}

	if current >= limit {
		violations, err := cache.GetInt64(ctx, s.store, key+overLimitSuffix)
		if err != nil {
			return true, current, fmt.Errorf("failed to read violation counter: %w", err)
		}

		violations++
		exponent := violations
		if exponent > maxPenaltyExponent {
			exponent = maxPenaltyExponent
		}
		penalty := window * time.Duration(int64(1)<<exponent)

		if err := s.store.Set(ctx, key+overLimitSuffix, strconv.FormatInt(violations, 10), penalty); err != nil {
			return true, current, fmt.Errorf("failed to record violation: %w", err)
		}

		s.logger.Warn("rate limit exceeded",
			slog.String("key", key),
			slog.Int64("count", current),
			slog.Int64("violations", violations),
			slog.Duration("penalty_window", penalty))

		return true, current, nil
	}

	newCount, err := s.store.IncrBy(ctx, key, increment, window)
	if err != nil {
		return false, current, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	return false, newCount, nil
}

// Reset clears the counters and violation state for the given keys
func (s *RateLimitService) Reset(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to reset rate limit key %q: %w", key, err)
		}
		if err := s.store.Delete(ctx, key+overLimitSuffix); err != nil {
			return fmt.Errorf("failed to reset violation key %q: %w", key, err)
		}
	}
	return nil
}
