package models

import "time"

// Alert types attached to security notifications
const (
	AlertBruteForce       = "brute_force"
	AlertMultipleFailures = "multiple_failed_attempts"
)

// SecurityPolicy holds the thresholds driving lockout and alert decisions
type SecurityPolicy struct {
	LockoutThreshold   int           // Failed attempts before the account locks
	LockoutDuration    time.Duration // How long a lockout lasts
	AlertThreshold     int           // Failed attempts before an alert becomes eligible
	AlertCooldown      time.Duration // Minimum gap between alerts for one account
	BruteForceInterval time.Duration // Failures closer together than this are flagged
}

// DefaultSecurityPolicy returns the standard production thresholds
func DefaultSecurityPolicy() SecurityPolicy {
	return SecurityPolicy{
		LockoutThreshold:   5,
		LockoutDuration:    30 * time.Minute,
		AlertThreshold:     3,
		AlertCooldown:      1 * time.Hour,
		BruteForceInterval: 5 * time.Second,
	}
}

// SecurityState tracks per-account verification failures, lockout and alert
// bookkeeping. It is persisted on the user row and mutated only through the
// methods below.
type SecurityState struct {
	FailedAttempts     int
	Locked             bool
	LockoutUntil       *time.Time
	LastFailedAttempt  *time.Time
	AlertSent          bool // Whether an alert has ever fired for this account
	LastAlertSent      *time.Time
	AlertCooldownUntil *time.Time
}

// AttemptResult reports the outcome of recording one failed attempt
type AttemptResult struct {
	Locked          bool
	ShouldSendAlert bool
	BruteForce      bool
}

// AlertType maps the result to the notification kind to dispatch
func (r AttemptResult) AlertType() string {
	if r.BruteForce {
		return AlertBruteForce
	}
	return AlertMultipleFailures
}

// IsLockedOut reports whether the account is currently locked. A lockout whose
// window has elapsed is cleared in place; cleared=true tells the caller the
// mutation needs persisting.
func (s *SecurityState) IsLockedOut(now time.Time) (locked, cleared bool) {
	if !s.Locked {
		return false, false
	}
	if s.LockoutUntil != nil && !now.Before(*s.LockoutUntil) {
		s.Locked = false
		s.LockoutUntil = nil
		return false, true
	}
	return true, false
}

// LockoutRemaining returns how long until the lockout expires, zero when the
// account is not locked or the window has already elapsed.
func (s *SecurityState) LockoutRemaining(now time.Time) time.Duration {
	if !s.Locked || s.LockoutUntil == nil {
		return 0
	}
	remaining := s.LockoutUntil.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RecordFailure applies one failed verification attempt. The alert decision is
// evaluated before the lockout transition, so a single call can both request
// an alert and lock the account. The cooldown comparison treats
// now == AlertCooldownUntil as expired.
func (s *SecurityState) RecordFailure(now time.Time, policy SecurityPolicy) AttemptResult {
	bruteForce := s.LastFailedAttempt != nil &&
		now.Sub(*s.LastFailedAttempt) < policy.BruteForceInterval

	failedAt := now
	s.LastFailedAttempt = &failedAt
	s.FailedAttempts++

	eligible := bruteForce || s.FailedAttempts >= policy.AlertThreshold

	shouldSendAlert := false
	if eligible && !s.Locked {
		cooldownActive := s.AlertCooldownUntil != nil && now.Before(*s.AlertCooldownUntil)
		if !cooldownActive {
			s.AlertSent = true
			sentAt := now
			s.LastAlertSent = &sentAt
			cooldownUntil := now.Add(policy.AlertCooldown)
			s.AlertCooldownUntil = &cooldownUntil
			shouldSendAlert = true
		}
	}

	if s.FailedAttempts >= policy.LockoutThreshold {
		s.Locked = true
		lockedUntil := now.Add(policy.LockoutDuration)
		s.LockoutUntil = &lockedUntil
	}

	return AttemptResult{
		Locked:          s.Locked,
		ShouldSendAlert: shouldSendAlert,
		BruteForce:      bruteForce,
	}
}

// ResetFailures zeroes the failure counter after a successful verification.
// Lockout and cooldown fields are left untouched. Returns true when the state
// changed and needs persisting.
func (s *SecurityState) ResetFailures() bool {
	if s.FailedAttempts == 0 {
		return false
	}
	s.FailedAttempts = 0
	return true
}
