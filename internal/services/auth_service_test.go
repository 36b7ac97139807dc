package services_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenwell/aegis/internal/auth"
	"github.com/havenwell/aegis/internal/cache"
	"github.com/havenwell/aegis/internal/config"
	"github.com/havenwell/aegis/internal/models"
	"github.com/havenwell/aegis/internal/services"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		SessionIdleTimeout: 45 * time.Minute,
		CodeExpiry:         10 * time.Minute,
		LockoutThreshold:   5,
		LockoutDuration:    30 * time.Minute,
		AlertThreshold:     3,
		AlertCooldown:      1 * time.Hour,
		BruteForceInterval: 5 * time.Second,
		LoginRequestLimit:  5,
		LoginRequestWindow: 5 * time.Minute,
		VerifyLimit:        3,
		VerifyWindow:       3 * time.Minute,
		ResendLimit:        3,
		ResendWindow:       5 * time.Minute,
	}
}

type authFixture struct {
	svc        *services.AuthService
	users      *services.MockUserRepository
	guardStore *services.MockSecurityStateStore
	codes      *services.MockCodeManager
	sessions   *services.MockSessionManager
	email      *services.MockEmailService
	now        *time.Time
}

func newAuthFixture(users *services.MockUserRepository) *authFixture {
	return newAuthFixtureWithConfig(users, testAuthConfig())
}

func newAuthFixtureWithConfig(users *services.MockUserRepository, cfg config.AuthConfig) *authFixture {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	guardStore := services.NewMockSecurityStateStore()
	guard := services.NewLockoutServiceWithClock(guardStore, models.SecurityPolicy{
		LockoutThreshold:   cfg.LockoutThreshold,
		LockoutDuration:    cfg.LockoutDuration,
		AlertThreshold:     cfg.AlertThreshold,
		AlertCooldown:      cfg.AlertCooldown,
		BruteForceInterval: cfg.BruteForceInterval,
	}, logger, clock)

	limiter := services.NewRateLimitService(cache.NewMemoryStoreWithClock(clock), logger)
	codes := &services.MockCodeManager{}
	sessions := &services.MockSessionManager{}
	email := &services.MockEmailService{}
	timing := auth.NewTimingDelay(auth.TimingConfig{})

	fixture := &authFixture{
		users:      users,
		guardStore: guardStore,
		codes:      codes,
		sessions:   sessions,
		email:      email,
	}
	fixture.svc = services.NewAuthService(users, guard, limiter, codes, sessions, email, timing, cfg, logger)
	fixture.now = &now
	return fixture
}

func knownUserRepo() *services.MockUserRepository {
	return &services.MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			if email == "alice@example.com" {
				return &models.User{ID: "user-1", Email: email, Role: "user"}, nil
			}
			return nil, models.ErrNotFound
		},
	}
}

func TestAuthService_RequestLoginCode_SendsCode(t *testing.T) {
	f := newAuthFixture(knownUserRepo())

	err := f.svc.RequestLoginCode(context.Background(), "alice@example.com", "192.0.2.1", "test-agent")
	require.NoError(t, err)

	require.Len(t, f.email.Codes, 1)
	assert.Equal(t, "alice@example.com", f.email.Codes[0].Email)
	assert.Equal(t, models.CodePurposeLogin, f.email.Codes[0].Purpose)
}

func TestAuthService_RequestLoginCode_UnknownAccountLooksIdentical(t *testing.T) {
	f := newAuthFixture(knownUserRepo())

	err := f.svc.RequestLoginCode(context.Background(), "nobody@example.com", "192.0.2.1", "test-agent")
	require.NoError(t, err)
	assert.Empty(t, f.email.Codes, "no code is sent for an unknown account")
}

func TestAuthService_RequestLoginCode_UnknownAccountBurnsDoubleBudget(t *testing.T) {
	f := newAuthFixture(knownUserRepo())
	ctx := context.Background()

	// Unknown accounts are charged 2 per request against a budget of 5, so
	// the fourth request trips the limit (counter reaches 6 on the third)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.RequestLoginCode(ctx, "nobody@example.com", "192.0.2.1", "test-agent"))
	}

	err := f.svc.RequestLoginCode(ctx, "nobody@example.com", "192.0.2.1", "test-agent")
	var rateErr *models.RateLimitedError
	require.ErrorAs(t, err, &rateErr)
}

func TestAuthService_RequestLoginCode_RateLimited(t *testing.T) {
	f := newAuthFixture(knownUserRepo())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, f.svc.RequestLoginCode(ctx, "alice@example.com", "192.0.2.1", "test-agent"))
	}

	err := f.svc.RequestLoginCode(ctx, "alice@example.com", "192.0.2.1", "test-agent")

	var rateErr *models.RateLimitedError
	require.ErrorAs(t, err, &rateErr)
	assert.ErrorIs(t, err, models.ErrRateLimitExceeded)
	assert.Equal(t, int64(5), rateErr.Attempts)
	assert.Len(t, f.email.Codes, 5)
}

func TestAuthService_RequestLoginCode_LockedAccount(t *testing.T) {
	f := newAuthFixture(knownUserRepo())
	ctx := context.Background()

	until := f.now.Add(20 * time.Minute)
	_, err := f.guardStore.UpdateSecurityState(ctx, "user-1", func(s *models.SecurityState) error {
		s.Locked = true
		s.LockoutUntil = &until
		s.FailedAttempts = 5
		return nil
	})
	require.NoError(t, err)

	err = f.svc.RequestLoginCode(ctx, "alice@example.com", "192.0.2.1", "test-agent")

	var lockedErr *models.AccountLockedError
	require.ErrorAs(t, err, &lockedErr)
	assert.ErrorIs(t, err, models.ErrAccountLocked)
	assert.Equal(t, 20, lockedErr.RemainingMinutes())
	assert.Empty(t, f.email.Codes)
}

func TestAuthService_VerifyLoginCode_Success(t *testing.T) {
	var lastLogin time.Time
	users := knownUserRepo()
	users.SetLastLoginFunc = func(ctx context.Context, userID string, at time.Time) error {
		lastLogin = at
		return nil
	}
	f := newAuthFixture(users)

	resp, err := f.svc.VerifyLoginCode(context.Background(), "alice@example.com", "123456", "192.0.2.1", "test-agent")
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com:testsecret", resp.Token)
	assert.Equal(t, "user-1", resp.User.ID)
	assert.False(t, lastLogin.IsZero())
}

func TestAuthService_VerifyLoginCode_SuccessResetsFailureCounter(t *testing.T) {
	f := newAuthFixture(knownUserRepo())
	ctx := context.Background()

	_, err := f.guardStore.UpdateSecurityState(ctx, "user-1", func(s *models.SecurityState) error {
		s.FailedAttempts = 4
		return nil
	})
	require.NoError(t, err)

	_, err = f.svc.VerifyLoginCode(ctx, "alice@example.com", "123456", "192.0.2.1", "test-agent")
	require.NoError(t, err)

	assert.Zero(t, f.guardStore.State("user-1").FailedAttempts)
}

func TestAuthService_VerifyLoginCode_WrongCodeFeedsGuard(t *testing.T) {
	f := newAuthFixture(knownUserRepo())
	f.codes.VerifyFunc = func(ctx context.Context, email, purpose, submitted string) error {
		return models.ErrCodeInvalid
	}

	_, err := f.svc.VerifyLoginCode(context.Background(), "alice@example.com", "000000", "192.0.2.1", "test-agent")

	assert.ErrorIs(t, err, models.ErrCodeInvalid)
	assert.Equal(t, 1, f.guardStore.State("user-1").FailedAttempts)
}

func TestAuthService_VerifyLoginCode_BruteForceDispatchesAlert(t *testing.T) {
	// Generous verify budget so the account guard, not the rate limiter,
	// sees every failure
	cfg := testAuthConfig()
	cfg.VerifyLimit = 100
	f := newAuthFixtureWithConfig(knownUserRepo(), cfg)
	f.codes.VerifyFunc = func(ctx context.Context, email, purpose, submitted string) error {
		return models.ErrCodeInvalid
	}
	ctx := context.Background()

	_, err := f.svc.VerifyLoginCode(ctx, "alice@example.com", "000000", "192.0.2.1", "test-agent")
	assert.ErrorIs(t, err, models.ErrCodeInvalid)

	// A second failure two seconds later looks automated and alerts
	*f.now = f.now.Add(2 * time.Second)
	_, err = f.svc.VerifyLoginCode(ctx, "alice@example.com", "111111", "192.0.2.1", "test-agent")
	assert.ErrorIs(t, err, models.ErrCodeInvalid)

	require.Len(t, f.email.Alerts, 1)
	assert.Equal(t, models.AlertBruteForce, f.email.Alerts[0].AlertType)
	assert.Equal(t, "alice@example.com", f.email.Alerts[0].Email)
}

func TestAuthService_VerifyLoginCode_AlertFailureIsNotSurfaced(t *testing.T) {
	cfg := testAuthConfig()
	cfg.VerifyLimit = 100
	f := newAuthFixtureWithConfig(knownUserRepo(), cfg)
	f.codes.VerifyFunc = func(ctx context.Context, email, purpose, submitted string) error {
		return models.ErrCodeInvalid
	}
	f.email.AlertErr = errors.New("ses unavailable")
	ctx := context.Background()

	_, err := f.svc.VerifyLoginCode(ctx, "alice@example.com", "000000", "192.0.2.1", "test-agent")
	assert.ErrorIs(t, err, models.ErrCodeInvalid)

	*f.now = f.now.Add(2 * time.Second)
	_, err = f.svc.VerifyLoginCode(ctx, "alice@example.com", "111111", "192.0.2.1", "test-agent")

	// Still the plain code error; the delivery failure stays internal
	assert.ErrorIs(t, err, models.ErrCodeInvalid)
}

func TestAuthService_VerifyLoginCode_LocksAtThreshold(t *testing.T) {
	f := newAuthFixture(knownUserRepo())
	f.codes.VerifyFunc = func(ctx context.Context, email, purpose, submitted string) error {
		return models.ErrCodeInvalid
	}
	ctx := context.Background()

	_, err := f.guardStore.UpdateSecurityState(ctx, "user-1", func(s *models.SecurityState) error {
		s.FailedAttempts = 4
		return nil
	})
	require.NoError(t, err)

	_, err = f.svc.VerifyLoginCode(ctx, "alice@example.com", "000000", "192.0.2.1", "test-agent")

	var lockedErr *models.AccountLockedError
	require.ErrorAs(t, err, &lockedErr)
	assert.True(t, f.guardStore.State("user-1").Locked)
}

func TestAuthService_VerifyLoginCode_RateLimitedBeforeCodeCheck(t *testing.T) {
	f := newAuthFixture(knownUserRepo())
	verifyCalls := 0
	f.codes.VerifyFunc = func(ctx context.Context, email, purpose, submitted string) error {
		verifyCalls++
		return models.ErrCodeInvalid
	}
	ctx := context.Background()

	// A failed verification charges 1 up front plus 2 extra, exhausting the
	// budget of 3 in a single miss
	_, _ = f.svc.VerifyLoginCode(ctx, "alice@example.com", "000000", "192.0.2.1", "test-agent")
	*f.now = f.now.Add(time.Minute)

	_, err := f.svc.VerifyLoginCode(ctx, "alice@example.com", "000000", "192.0.2.1", "test-agent")

	var rateErr *models.RateLimitedError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, 1, verifyCalls)
}

func TestAuthService_VerifyLoginCode_UnknownAccountGetsCodeError(t *testing.T) {
	f := newAuthFixture(knownUserRepo())
	f.codes.VerifyFunc = func(ctx context.Context, email, purpose, submitted string) error {
		return models.ErrCodeNotFound
	}

	_, err := f.svc.VerifyLoginCode(context.Background(), "nobody@example.com", "123456", "192.0.2.1", "test-agent")

	// Identical to a known account that never requested a code
	assert.ErrorIs(t, err, models.ErrCodeNotFound)
}

func TestAuthService_RequestRegistration_NewEmail(t *testing.T) {
	f := newAuthFixture(knownUserRepo())

	err := f.svc.RequestRegistration(context.Background(), "new@example.com")
	require.NoError(t, err)

	require.Len(t, f.email.Codes, 1)
	assert.Equal(t, models.CodePurposeRegistration, f.email.Codes[0].Purpose)
}

func TestAuthService_RequestRegistration_ExistingEmailLooksIdentical(t *testing.T) {
	f := newAuthFixture(knownUserRepo())

	err := f.svc.RequestRegistration(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Empty(t, f.email.Codes)
}

func TestAuthService_CompleteRegistration_CreatesVerifiedAccount(t *testing.T) {
	var created *models.User
	users := knownUserRepo()
	users.CreateFunc = func(ctx context.Context, user *models.User) (*models.User, error) {
		user.ID = "user-2"
		created = user
		return user, nil
	}
	f := newAuthFixture(users)

	user, err := f.svc.CompleteRegistration(context.Background(), services.RegistrationRequest{
		Email:     "new@example.com",
		FirstName: "New",
		LastName:  "Person",
	}, "123456")
	require.NoError(t, err)

	require.NotNil(t, created)
	assert.Equal(t, "user-2", user.ID)
	assert.True(t, created.EmailVerified)
	assert.NotEmpty(t, created.PasswordHash)
}

func TestAuthService_CompleteRegistration_BadCode(t *testing.T) {
	f := newAuthFixture(knownUserRepo())
	f.codes.VerifyFunc = func(ctx context.Context, email, purpose, submitted string) error {
		return models.ErrCodeInvalid
	}

	_, err := f.svc.CompleteRegistration(context.Background(), services.RegistrationRequest{
		Email: "new@example.com",
	}, "000000")

	assert.ErrorIs(t, err, models.ErrCodeInvalid)
}

func TestAuthService_ResendLoginCode_RateLimited(t *testing.T) {
	f := newAuthFixture(knownUserRepo())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.ResendLoginCode(ctx, "alice@example.com", "192.0.2.1", "test-agent"))
	}

	err := f.svc.ResendLoginCode(ctx, "alice@example.com", "192.0.2.1", "test-agent")

	var rateErr *models.RateLimitedError
	require.ErrorAs(t, err, &rateErr)
	assert.Len(t, f.email.Codes, 3)
}

func TestAuthService_ResendRegistrationCode_ExistingAccountLooksIdentical(t *testing.T) {
	f := newAuthFixture(knownUserRepo())

	err := f.svc.ResendRegistrationCode(context.Background(), "alice@example.com", "192.0.2.1", "test-agent")
	require.NoError(t, err)
	assert.Empty(t, f.email.Codes)
}

func TestAuthService_ResetRateLimits_RestoresAccess(t *testing.T) {
	f := newAuthFixture(knownUserRepo())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, f.svc.RequestLoginCode(ctx, "alice@example.com", "192.0.2.1", "test-agent"))
	}
	err := f.svc.RequestLoginCode(ctx, "alice@example.com", "192.0.2.1", "test-agent")
	require.ErrorIs(t, err, models.ErrRateLimitExceeded)

	require.NoError(t, f.svc.ResetRateLimits(ctx, "alice@example.com"))

	err = f.svc.RequestLoginCode(ctx, "alice@example.com", "192.0.2.1", "test-agent")
	require.NoError(t, err)
}

func TestAuthService_Logout(t *testing.T) {
	loggedOut := ""
	f := newAuthFixture(knownUserRepo())
	f.sessions.LogoutFunc = func(ctx context.Context, userID string) error {
		loggedOut = userID
		return nil
	}

	require.NoError(t, f.svc.Logout(context.Background(), "user-1"))
	assert.Equal(t, "user-1", loggedOut)
}
