package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/havenwell/aegis/internal/cache"
	"github.com/havenwell/aegis/internal/models"
	"github.com/havenwell/aegis/pkg/logger"
)

const (
	sessionKeyPrefix   = "token:"
	sessionSecretChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	sessionSecretLen   = 32
)

// UserDirectory resolves accounts by email for session re-admission
type UserDirectory interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	SetLastLogout(ctx context.Context, userID string, at time.Time) error
}

// SessionService manages opaque session tokens of the form
// "<email>:<secret>" backed by the expiring cache. Every successful
// validation refreshes the idle timeout, so sessions survive as long as the
// client stays active.
type SessionService struct {
	store       cache.Store
	users       UserDirectory
	idleTimeout time.Duration
	logger      *slog.Logger
}

// NewSessionService creates a new SessionService
func NewSessionService(store cache.Store, users UserDirectory, idleTimeout time.Duration, logger *slog.Logger) *SessionService {
	return &SessionService{
		store:       store,
		users:       users,
		idleTimeout: idleTimeout,
		logger:      logger,
	}
}

// Issue creates a fresh session token for the account and stores the mapping
// under the idle timeout
func (s *SessionService) Issue(ctx context.Context, email, userID string) (string, error) {
	secret, err := randomString(sessionSecretLen)
	if err != nil {
		return "", fmt.Errorf("failed to generate session secret: %w", err)
	}

	token := email + ":" + secret
	if err := s.store.Set(ctx, sessionKeyPrefix+token, userID, s.idleTimeout); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	s.logger.Info("session issued", slog.String("email", logger.SanitizedEmail(email)))
	return token, nil
}

// Validate resolves a token to the owning user ID and refreshes the idle
// timeout. When the cache entry has lapsed, the email prefix embedded in the
// token is used to re-admit the session if the account still exists; a token
// that resolves to nothing returns ErrUnauthorized.
func (s *SessionService) Validate(ctx context.Context, token string) (string, error) {
	key := sessionKeyPrefix + token

	userID, err := s.store.Get(ctx, key)
	if err == nil {
		if touchErr := s.store.Touch(ctx, key, s.idleTimeout); touchErr != nil && !errors.Is(touchErr, cache.ErrCacheMiss) {
			s.logger.Warn("failed to refresh session timeout", slog.String("error", touchErr.Error()))
		}
		return userID, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		return "", fmt.Errorf("failed to look up session: %w", err)
	}

	email, secret, ok := strings.Cut(token, ":")
	if !ok || email == "" || secret == "" {
		return "", models.ErrUnauthorized
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", models.ErrUnauthorized
		}
		return "", fmt.Errorf("failed to resolve session account: %w", err)
	}

	if err := s.store.Set(ctx, key, user.ID, s.idleTimeout); err != nil {
		return "", fmt.Errorf("failed to re-admit session: %w", err)
	}

	s.logger.Info("session re-admitted after cache expiry", slog.String("email", logger.SanitizedEmail(email)))
	return user.ID, nil
}

// Logout records the logout time on the account. Tokens are not revoked
// server side; they lapse on their own once the idle timeout passes.
func (s *SessionService) Logout(ctx context.Context, userID string) error {
	if err := s.users.SetLastLogout(ctx, userID, time.Now()); err != nil {
		return fmt.Errorf("failed to record logout: %w", err)
	}
	return nil
}

// randomString returns a cryptographically random alphanumeric string
func randomString(n int) (string, error) {
	max := big.NewInt(int64(len(sessionSecretChars)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = sessionSecretChars[idx.Int64()]
	}
	return string(b), nil
}
