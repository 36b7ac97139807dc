package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/havenwell/aegis/internal/models"
)

var testPolicy = models.SecurityPolicy{
	LockoutThreshold:   5,
	LockoutDuration:    30 * time.Minute,
	AlertThreshold:     3,
	AlertCooldown:      1 * time.Hour,
	BruteForceInterval: 5 * time.Second,
}

func TestRecordFailure_IncrementsCounter(t *testing.T) {
	state := &models.SecurityState{}
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	result := state.RecordFailure(now, testPolicy)

	assert.Equal(t, 1, state.FailedAttempts)
	assert.False(t, result.Locked)
	assert.False(t, result.ShouldSendAlert)
	assert.False(t, result.BruteForce)
	assert.Equal(t, now, *state.LastFailedAttempt)
}

func TestRecordFailure_LocksAtThreshold(t *testing.T) {
	state := &models.SecurityState{}
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	// Failures spaced a minute apart so the cadence never looks automated
	var result models.AttemptResult
	for i := 0; i < 5; i++ {
		result = state.RecordFailure(now.Add(time.Duration(i)*time.Minute), testPolicy)
	}

	assert.True(t, result.Locked)
	assert.True(t, state.Locked)
	assert.Equal(t, 5, state.FailedAttempts)
	expectedUntil := now.Add(4 * time.Minute).Add(30 * time.Minute)
	assert.Equal(t, expectedUntil, *state.LockoutUntil)
}

func TestRecordFailure_NoLockBelowThreshold(t *testing.T) {
	state := &models.SecurityState{}
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	var result models.AttemptResult
	for i := 0; i < 4; i++ {
		result = state.RecordFailure(now.Add(time.Duration(i)*time.Minute), testPolicy)
	}

	assert.False(t, result.Locked)
	assert.False(t, state.Locked)
	assert.Equal(t, 4, state.FailedAttempts)
}

func TestRecordFailure_AlertAtThreshold(t *testing.T) {
	state := &models.SecurityState{}
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	r1 := state.RecordFailure(now, testPolicy)
	r2 := state.RecordFailure(now.Add(1*time.Minute), testPolicy)
	r3 := state.RecordFailure(now.Add(2*time.Minute), testPolicy)

	assert.False(t, r1.ShouldSendAlert)
	assert.False(t, r2.ShouldSendAlert)
	assert.True(t, r3.ShouldSendAlert)
	assert.False(t, r3.BruteForce)
	assert.Equal(t, models.AlertMultipleFailures, r3.AlertType())
	assert.True(t, state.AlertSent)
	assert.Equal(t, now.Add(2*time.Minute).Add(1*time.Hour), *state.AlertCooldownUntil)
}

func TestRecordFailure_AlertCooldownSuppressesRepeat(t *testing.T) {
	state := &models.SecurityState{}
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	state.RecordFailure(now, testPolicy)
	state.RecordFailure(now.Add(1*time.Minute), testPolicy)
	r3 := state.RecordFailure(now.Add(2*time.Minute), testPolicy)
	r4 := state.RecordFailure(now.Add(3*time.Minute), testPolicy)

	assert.True(t, r3.ShouldSendAlert)
	assert.False(t, r4.ShouldSendAlert)
}

func TestRecordFailure_CooldownBoundaryCountsAsExpired(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	state := &models.SecurityState{
		FailedAttempts:     3,
		AlertSent:          true,
		AlertCooldownUntil: &now,
	}

	// A failure at the exact cooldown expiry is eligible again
	result := state.RecordFailure(now, testPolicy)

	assert.True(t, result.ShouldSendAlert)
}

func TestRecordFailure_BruteForceDetection(t *testing.T) {
	state := &models.SecurityState{}
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	r1 := state.RecordFailure(now, testPolicy)
	r2 := state.RecordFailure(now.Add(3*time.Second), testPolicy)

	assert.False(t, r1.BruteForce)
	assert.True(t, r2.BruteForce)
	assert.True(t, r2.ShouldSendAlert, "rapid failures alert below the failure threshold")
	assert.Equal(t, models.AlertBruteForce, r2.AlertType())
}

func TestRecordFailure_SlowFailuresAreNotBruteForce(t *testing.T) {
	state := &models.SecurityState{}
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	state.RecordFailure(now, testPolicy)
	r2 := state.RecordFailure(now.Add(10*time.Second), testPolicy)

	assert.False(t, r2.BruteForce)
	assert.False(t, r2.ShouldSendAlert)
}

func TestRecordFailure_NoAlertWhileLocked(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	until := now.Add(30 * time.Minute)
	last := now.Add(-2 * time.Second)
	state := &models.SecurityState{
		FailedAttempts:    5,
		Locked:            true,
		LockoutUntil:      &until,
		LastFailedAttempt: &last,
	}

	result := state.RecordFailure(now, testPolicy)

	assert.True(t, result.BruteForce)
	assert.False(t, result.ShouldSendAlert)
}

func TestRecordFailure_RapidBurstAlertsExactlyOnce(t *testing.T) {
	state := &models.SecurityState{}
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	// Five failures two seconds apart: one brute force alert, then lockout
	alerts := 0
	var lastResult models.AttemptResult
	for i := 0; i < 5; i++ {
		lastResult = state.RecordFailure(now.Add(time.Duration(2*i)*time.Second), testPolicy)
		if lastResult.ShouldSendAlert {
			alerts++
			assert.Equal(t, models.AlertBruteForce, lastResult.AlertType())
		}
	}

	assert.Equal(t, 1, alerts)
	assert.True(t, lastResult.Locked)
}

func TestIsLockedOut_ActiveLockout(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	until := now.Add(10 * time.Minute)
	state := &models.SecurityState{Locked: true, LockoutUntil: &until}

	locked, cleared := state.IsLockedOut(now)

	assert.True(t, locked)
	assert.False(t, cleared)
	assert.Equal(t, 10*time.Minute, state.LockoutRemaining(now))
}

func TestIsLockedOut_ClearsExpiredLockout(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	until := now.Add(-1 * time.Second)
	state := &models.SecurityState{Locked: true, LockoutUntil: &until, FailedAttempts: 5}

	locked, cleared := state.IsLockedOut(now)

	assert.False(t, locked)
	assert.True(t, cleared)
	assert.False(t, state.Locked)
	assert.Nil(t, state.LockoutUntil)
	// Failure history survives the lockout expiring
	assert.Equal(t, 5, state.FailedAttempts)
}

func TestIsLockedOut_BoundaryCountsAsExpired(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	state := &models.SecurityState{Locked: true, LockoutUntil: &now}

	locked, cleared := state.IsLockedOut(now)

	assert.False(t, locked)
	assert.True(t, cleared)
}

func TestIsLockedOut_NotLocked(t *testing.T) {
	state := &models.SecurityState{}

	locked, cleared := state.IsLockedOut(time.Now())

	assert.False(t, locked)
	assert.False(t, cleared)
}

func TestResetFailures(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	cooldown := now.Add(1 * time.Hour)
	state := &models.SecurityState{
		FailedAttempts:     4,
		AlertSent:          true,
		AlertCooldownUntil: &cooldown,
	}

	changed := state.ResetFailures()

	assert.True(t, changed)
	assert.Equal(t, 0, state.FailedAttempts)
	// Cooldown survives so a burst straddling a success cannot re-alert early
	assert.True(t, state.AlertSent)
	assert.Equal(t, cooldown, *state.AlertCooldownUntil)
}

func TestResetFailures_NoOpWhenZero(t *testing.T) {
	state := &models.SecurityState{}

	assert.False(t, state.ResetFailures())
}
