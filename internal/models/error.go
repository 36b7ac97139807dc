package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Guard errors
	ErrAccountLocked     = errors.New("account is temporarily locked")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrCodeInvalid       = errors.New("invalid verification code")
	ErrCodeExpired       = errors.New("verification code has expired")
	ErrCodeNotFound      = errors.New("no verification code found")
)

// AccountLockedError carries the remaining lockout time so handlers can
// surface it to the client. Unwraps to ErrAccountLocked.
type AccountLockedError struct {
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account is temporarily locked, retry in %s", e.RetryAfter.Round(time.Minute))
}

func (e *AccountLockedError) Unwrap() error { return ErrAccountLocked }

// RemainingMinutes returns the lockout remainder rounded up to whole minutes,
// never below zero.
func (e *AccountLockedError) RemainingMinutes() int {
	if e.RetryAfter <= 0 {
		return 0
	}
	return int((e.RetryAfter + time.Minute - 1) / time.Minute)
}

// RateLimitedError carries the current attempt count for the offending key.
// Unwraps to ErrRateLimitExceeded.
type RateLimitedError struct {
	Attempts int64
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded after %d attempts", e.Attempts)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimitExceeded }
