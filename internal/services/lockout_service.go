package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/havenwell/aegis/internal/models"
)

// SecurityStateStore persists per-account guard state. Updates run under a
// row lock so concurrent failures against the same account are serialized.
type SecurityStateStore interface {
	UpdateSecurityState(ctx context.Context, userID string, fn func(*models.SecurityState) error) (*models.SecurityState, error)
}

// LockoutService tracks failed authentication attempts per account and
// enforces progressive lockout with security alerting decisions.
type LockoutService struct {
	store  SecurityStateStore
	policy models.SecurityPolicy
	logger *slog.Logger
	now    func() time.Time
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(store SecurityStateStore, policy models.SecurityPolicy, logger *slog.Logger) *LockoutService {
	return &LockoutService{
		store:  store,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// NewLockoutServiceWithClock creates a LockoutService with an injectable clock for tests
func NewLockoutServiceWithClock(store SecurityStateStore, policy models.SecurityPolicy, logger *slog.Logger, now func() time.Time) *LockoutService {
	svc := NewLockoutService(store, policy, logger)
	svc.now = now
	return svc
}

// IsLockedOut reports whether the account is currently locked and how long
// remains. A lockout whose expiry has passed is cleared and persisted as a
// side effect, so callers always see the live answer.
func (s *LockoutService) IsLockedOut(ctx context.Context, userID string) (bool, time.Duration, error) {
	var (
		locked    bool
		remaining time.Duration
	)

	_, err := s.store.UpdateSecurityState(ctx, userID, func(state *models.SecurityState) error {
		now := s.now()
		active, cleared := state.IsLockedOut(now)
		locked = active
		if active {
			remaining = state.LockoutRemaining(now)
		}
		if cleared {
			s.logger.Info("account lockout expired", slog.String("user_id", userID))
		}
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("failed to check lockout state: %w", err)
	}

	return locked, remaining, nil
}

// RecordFailedAttempt registers one failed authentication attempt and returns
// the resulting guard decision: whether the account is now locked, whether a
// security alert should be dispatched, and whether the failure cadence looks
// like an automated attack.
func (s *LockoutService) RecordFailedAttempt(ctx context.Context, userID string) (models.AttemptResult, error) {
	var result models.AttemptResult

	state, err := s.store.UpdateSecurityState(ctx, userID, func(state *models.SecurityState) error {
		result = state.RecordFailure(s.now(), s.policy)
		return nil
	})
	if err != nil {
		return models.AttemptResult{}, fmt.Errorf("failed to record failed attempt: %w", err)
	}

	if result.Locked {
		s.logger.Warn("account locked",
			slog.String("user_id", userID),
			slog.Int("failed_attempts", state.FailedAttempts))
	}

	return result, nil
}

// ResetFailedAttempts zeroes the failure counter after a successful
// authentication. Alert cooldown state is left intact so a burst of failures
// straddling a successful login cannot re-trigger alerts early.
func (s *LockoutService) ResetFailedAttempts(ctx context.Context, userID string) error {
	_, err := s.store.UpdateSecurityState(ctx, userID, func(state *models.SecurityState) error {
		state.ResetFailures()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reset failed attempts: %w", err)
	}
	return nil
}
