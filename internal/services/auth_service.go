package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/havenwell/aegis/internal/auth"
	"github.com/havenwell/aegis/internal/config"
	"github.com/havenwell/aegis/internal/models"
	pkgauth "github.com/havenwell/aegis/pkg/auth"
	"github.com/havenwell/aegis/pkg/logger"
)

// Rate limit key prefixes, one bucket per email per operation
const (
	keyLoginRequest       = "login_attempt:"
	keyLoginVerify        = "login_verify_attempt:"
	keyResendLogin        = "resend_login_code:"
	keyResendRegistration = "resend_registration_code:"
)

// Extra budget charged for requests that probe nonexistent accounts or submit
// codes that fail verification
const suspiciousIncrement = 2

// UserRepository defines account persistence for the auth flows
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	SetLastLogin(ctx context.Context, userID string, at time.Time) error
	SetLastLogout(ctx context.Context, userID string, at time.Time) error
}

// AccountGuard tracks failed attempts and lockout per account
type AccountGuard interface {
	IsLockedOut(ctx context.Context, userID string) (bool, time.Duration, error)
	RecordFailedAttempt(ctx context.Context, userID string) (models.AttemptResult, error)
	ResetFailedAttempts(ctx context.Context, userID string) error
}

// RateLimiter enforces per-key request budgets
type RateLimiter interface {
	CheckAndIncrement(ctx context.Context, key string, limit int64, window time.Duration, increment int64) (bool, int64, error)
	Reset(ctx context.Context, keys ...string) error
}

// CodeManager issues and verifies one-time codes
type CodeManager interface {
	Issue(ctx context.Context, email, purpose string) (*models.VerificationCode, error)
	Verify(ctx context.Context, email, purpose, submitted string) error
}

// SessionManager issues session tokens and records logouts
type SessionManager interface {
	Issue(ctx context.Context, email, userID string) (string, error)
	Logout(ctx context.Context, userID string) error
}

// RegistrationRequest carries the profile details collected at sign-up
type RegistrationRequest struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
	Gender    string
}

// AuthResponse is returned on successful login
type AuthResponse struct {
	Token string
	User  *models.User
}

// AuthService orchestrates passwordless registration and login. Every flow is
// wrapped by the authentication guard: per-email rate limits with escalating
// penalties, per-account lockout, and security alerting on suspicious failure
// patterns. Responses never reveal whether an account exists.
type AuthService struct {
	users    UserRepository
	guard    AccountGuard
	limiter  RateLimiter
	codes    CodeManager
	sessions SessionManager
	email    EmailService
	timing   *auth.TimingDelay
	cfg      config.AuthConfig
	logger   *slog.Logger
	audit    *logger.AuditLogger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	users UserRepository,
	guard AccountGuard,
	limiter RateLimiter,
	codes CodeManager,
	sessions SessionManager,
	email EmailService,
	timing *auth.TimingDelay,
	cfg config.AuthConfig,
	log *slog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		guard:    guard,
		limiter:  limiter,
		codes:    codes,
		sessions: sessions,
		email:    email,
		timing:   timing,
		cfg:      cfg,
		logger:   log,
		audit:    logger.NewAuditLogger(log),
	}
}

// RequestRegistration starts sign-up by emailing a verification code. The
// response is identical whether or not the email is already registered.
func (s *AuthService) RequestRegistration(ctx context.Context, email string) error {
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to look up account: %w", err)
	}
	if existing != nil {
		s.logger.Info("registration requested for existing account",
			slog.String("email", logger.SanitizedEmail(email)))
		return nil
	}

	code, err := s.codes.Issue(ctx, email, models.CodePurposeRegistration)
	if err != nil {
		return err
	}
	s.deliverCode(ctx, email, code.Code, models.CodePurposeRegistration)
	return nil
}

// CompleteRegistration verifies the emailed code and creates the account
func (s *AuthService) CompleteRegistration(ctx context.Context, req RegistrationRequest, code string) (*models.User, error) {
	if err := s.codes.Verify(ctx, req.Email, models.CodePurposeRegistration, code); err != nil {
		s.timing.Wait(false)
		return nil, err
	}

	// Accounts authenticate with emailed codes; the stored hash is an unusable
	// random placeholder so the column is never empty.
	placeholder, err := randomString(sessionSecretLen)
	if err != nil {
		return nil, fmt.Errorf("failed to generate placeholder credential: %w", err)
	}
	hash, err := pkgauth.HashPassword(placeholder)
	if err != nil {
		return nil, fmt.Errorf("failed to hash placeholder credential: %w", err)
	}

	user, err := s.users.Create(ctx, &models.User{
		Email:         req.Email,
		PasswordHash:  hash,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Phone:         req.Phone,
		Gender:        req.Gender,
		EmailVerified: true,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			// Registration raced with another verification; keep the response generic
			return nil, models.ErrCodeInvalid
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.audit.LogAccountAction("registration_completed", user.ID, "", map[string]string{
		"email": logger.SanitizedEmail(user.Email),
	})

	return user, nil
}

// RequestLoginCode starts login by emailing a verification code. Lockout is
// checked first, then the per-email request budget. Requests for unknown
// accounts consume double budget and still succeed from the caller's view.
func (s *AuthService) RequestLoginCode(ctx context.Context, email, ipAddress, userAgent string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to look up account: %w", err)
	}

	if user != nil {
		if lockErr := s.checkLockout(ctx, user.ID); lockErr != nil {
			return lockErr
		}
	}

	key := keyLoginRequest + email
	increment := int64(1)
	if user == nil {
		increment = suspiciousIncrement
	}

	exceeded, count, err := s.limiter.CheckAndIncrement(ctx, key,
		int64(s.cfg.LoginRequestLimit), s.cfg.LoginRequestWindow, increment)
	if err != nil {
		return err
	}
	if exceeded {
		return &models.RateLimitedError{Attempts: count}
	}

	if user == nil {
		s.audit.LogAuthAttempt(logger.AuditEvent{
			EventType:     "login_code_request",
			IPAddress:     ipAddress,
			UserAgent:     userAgent,
			Success:       false,
			FailureReason: "unknown_account",
		})
		s.timing.Wait(false)
		return nil
	}

	code, err := s.codes.Issue(ctx, email, models.CodePurposeLogin)
	if err != nil {
		return err
	}
	s.deliverCode(ctx, email, code.Code, models.CodePurposeLogin)

	s.audit.LogAuthAttempt(logger.AuditEvent{
		EventType: "login_code_request",
		UserID:    user.ID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Success:   true,
	})

	return nil
}

// VerifyLoginCode completes login. Failed verifications feed the account
// guard, which may dispatch a security alert or lock the account; alert
// delivery failures are logged but never surfaced to the caller.
func (s *AuthService) VerifyLoginCode(ctx context.Context, email, code, ipAddress, userAgent string) (*AuthResponse, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	if user != nil {
		if lockErr := s.checkLockout(ctx, user.ID); lockErr != nil {
			return nil, lockErr
		}
	}

	key := keyLoginVerify + email
	exceeded, count, err := s.limiter.CheckAndIncrement(ctx, key,
		int64(s.cfg.VerifyLimit), s.cfg.VerifyWindow, 1)
	if err != nil {
		return nil, err
	}
	if exceeded {
		return nil, &models.RateLimitedError{Attempts: count}
	}

	verifyErr := s.codes.Verify(ctx, email, models.CodePurposeLogin, code)
	if verifyErr != nil {
		if !errors.Is(verifyErr, models.ErrCodeExpired) &&
			!errors.Is(verifyErr, models.ErrCodeInvalid) &&
			!errors.Is(verifyErr, models.ErrCodeNotFound) {
			return nil, verifyErr
		}

		// Failed verifications burn extra budget on top of the one already charged
		if _, _, limErr := s.limiter.CheckAndIncrement(ctx, key,
			int64(s.cfg.VerifyLimit), s.cfg.VerifyWindow, suspiciousIncrement); limErr != nil {
			s.logger.Warn("failed to charge verification failure",
				slog.String("error", limErr.Error()))
		}

		if user != nil {
			result, guardErr := s.guard.RecordFailedAttempt(ctx, user.ID)
			if guardErr != nil {
				return nil, guardErr
			}

			if result.ShouldSendAlert {
				s.dispatchAlert(ctx, user, result.AlertType(), ipAddress, userAgent)
			}

			s.audit.LogAuthAttempt(logger.AuditEvent{
				EventType:     "login_verify",
				UserID:        user.ID,
				IPAddress:     ipAddress,
				UserAgent:     userAgent,
				Success:       false,
				FailureReason: verifyErr.Error(),
			})

			if result.Locked {
				s.timing.Wait(false)
				return nil, &models.AccountLockedError{RetryAfter: s.cfg.LockoutDuration}
			}
		}

		s.timing.Wait(false)
		return nil, verifyErr
	}

	if user == nil {
		// A login code should never verify for an email with no account
		s.timing.Wait(false)
		return nil, models.ErrUnauthorized
	}

	if err := s.guard.ResetFailedAttempts(ctx, user.ID); err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.users.SetLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to record login time",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()))
	}
	user.LastLogin = &now

	token, err := s.sessions.Issue(ctx, user.Email, user.ID)
	if err != nil {
		return nil, err
	}

	s.audit.LogAuthAttempt(logger.AuditEvent{
		EventType: "login_verify",
		UserID:    user.ID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Success:   true,
	})

	return &AuthResponse{Token: token, User: user}, nil
}

// ResendLoginCode re-issues a login code under its own tighter budget
func (s *AuthService) ResendLoginCode(ctx context.Context, email, ipAddress, userAgent string) error {
	return s.resendCode(ctx, email, models.CodePurposeLogin, keyResendLogin+email, ipAddress, userAgent)
}

// ResendRegistrationCode re-issues a registration code under its own tighter budget
func (s *AuthService) ResendRegistrationCode(ctx context.Context, email, ipAddress, userAgent string) error {
	return s.resendCode(ctx, email, models.CodePurposeRegistration, keyResendRegistration+email, ipAddress, userAgent)
}

func (s *AuthService) resendCode(ctx context.Context, email, purpose, key, ipAddress, userAgent string) error {
	exceeded, count, err := s.limiter.CheckAndIncrement(ctx, key,
		int64(s.cfg.ResendLimit), s.cfg.ResendWindow, 1)
	if err != nil {
		return err
	}
	if exceeded {
		return &models.RateLimitedError{Attempts: count}
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to look up account: %w", err)
	}

	// Resending a registration code is only valid before the account exists;
	// a login code only after. Anything else gets the generic response.
	eligible := (purpose == models.CodePurposeLogin && user != nil) ||
		(purpose == models.CodePurposeRegistration && user == nil)
	if !eligible {
		if _, _, limErr := s.limiter.CheckAndIncrement(ctx, key,
			int64(s.cfg.ResendLimit), s.cfg.ResendWindow, 1); limErr != nil {
			s.logger.Warn("failed to charge ineligible resend",
				slog.String("error", limErr.Error()))
		}
		s.timing.Wait(false)
		return nil
	}

	if purpose == models.CodePurposeLogin {
		if lockErr := s.checkLockout(ctx, user.ID); lockErr != nil {
			return lockErr
		}
	}

	code, err := s.codes.Issue(ctx, email, purpose)
	if err != nil {
		return err
	}
	s.deliverCode(ctx, email, code.Code, purpose)

	s.audit.LogAccountAction("code_resent", userIDOrEmpty(user), ipAddress, map[string]string{
		"purpose":    purpose,
		"user_agent": userAgent,
	})

	return nil
}

// Logout records the logout time. Outstanding session tokens lapse on their
// own when the idle timeout passes.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.sessions.Logout(ctx, userID); err != nil {
		return err
	}
	s.audit.LogAccountAction("logout", userID, "", nil)
	return nil
}

// GetUser fetches an account by ID for the session endpoint
func (s *AuthService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.users.GetByID(ctx, userID)
}

// ResetRateLimits clears all guard counters for an email across every flow
func (s *AuthService) ResetRateLimits(ctx context.Context, email string) error {
	return s.limiter.Reset(ctx,
		keyLoginRequest+email,
		keyLoginVerify+email,
		keyResendLogin+email,
		keyResendRegistration+email,
	)
}

// checkLockout returns an AccountLockedError when the account is locked
func (s *AuthService) checkLockout(ctx context.Context, userID string) error {
	locked, remaining, err := s.guard.IsLockedOut(ctx, userID)
	if err != nil {
		return err
	}
	if locked {
		return &models.AccountLockedError{RetryAfter: remaining}
	}
	return nil
}

// deliverCode sends the code by email. Delivery failures are logged only so
// the response stays indistinguishable from the unknown-account path.
func (s *AuthService) deliverCode(ctx context.Context, email, code, purpose string) {
	if err := s.email.SendVerificationCode(ctx, email, code, purpose, s.cfg.CodeExpiry); err != nil {
		s.logger.Error("failed to deliver verification code",
			slog.String("email", logger.SanitizedEmail(email)),
			slog.String("purpose", purpose),
			slog.String("error", err.Error()))
	}
}

// dispatchAlert sends a security alert. Failures are logged, never surfaced.
func (s *AuthService) dispatchAlert(ctx context.Context, user *models.User, alertType, ipAddress, userAgent string) {
	if err := s.email.SendSecurityAlert(ctx, user.Email, alertType, ipAddress, userAgent); err != nil {
		s.logger.Error("failed to dispatch security alert",
			slog.String("user_id", user.ID),
			slog.String("alert_type", alertType),
			slog.String("error", err.Error()))
		return
	}

	s.audit.LogAccountAction("security_alert_sent", user.ID, ipAddress, map[string]string{
		"alert_type": alertType,
		"user_agent": userAgent,
	})
}

func userIDOrEmpty(user *models.User) string {
	if user == nil {
		return ""
	}
	return user.ID
}
