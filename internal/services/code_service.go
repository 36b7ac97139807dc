package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/havenwell/aegis/internal/models"
	"github.com/havenwell/aegis/pkg/logger"
)

const codeLength = 6

// VerificationCodeStore persists one-time verification codes
type VerificationCodeStore interface {
	Create(ctx context.Context, code *models.VerificationCode) error
	GetLatestUnverified(ctx context.Context, email, purpose string) (*models.VerificationCode, error)
	MarkVerified(ctx context.Context, id string) error
}

// CodeService issues and verifies short-lived numeric codes for registration
// and login. Only the most recent unverified code per email and purpose is
// honored; older codes are superseded the moment a new one is issued.
type CodeService struct {
	store  VerificationCodeStore
	expiry time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewCodeService creates a new CodeService
func NewCodeService(store VerificationCodeStore, expiry time.Duration, logger *slog.Logger) *CodeService {
	return &CodeService{
		store:  store,
		expiry: expiry,
		logger: logger,
		now:    time.Now,
	}
}

// NewCodeServiceWithClock creates a CodeService with an injectable clock for tests
func NewCodeServiceWithClock(store VerificationCodeStore, expiry time.Duration, logger *slog.Logger, now func() time.Time) *CodeService {
	svc := NewCodeService(store, expiry, logger)
	svc.now = now
	return svc
}

// Issue generates and stores a fresh code for the email and purpose
func (s *CodeService) Issue(ctx context.Context, email, purpose string) (*models.VerificationCode, error) {
	digits, err := generateCode(codeLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification code: %w", err)
	}

	code := &models.VerificationCode{
		Email:   email,
		Code:    digits,
		Purpose: purpose,
	}
	if err := s.store.Create(ctx, code); err != nil {
		return nil, fmt.Errorf("failed to store verification code: %w", err)
	}

	s.logger.Info("verification code issued",
		slog.String("email", logger.SanitizedEmail(email)),
		slog.String("purpose", purpose))

	return code, nil
}

// Verify checks the submitted code against the latest unverified code for the
// email and purpose. Returns ErrCodeNotFound when none exists, ErrCodeExpired
// when the latest has lapsed, and ErrCodeInvalid on a mismatch. A successful
// match marks the code verified so it cannot be replayed.
func (s *CodeService) Verify(ctx context.Context, email, purpose, submitted string) error {
	code, err := s.store.GetLatestUnverified(ctx, email, purpose)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrCodeNotFound
		}
		return fmt.Errorf("failed to look up verification code: %w", err)
	}

	if code.IsExpired(s.expiry, s.now()) {
		return models.ErrCodeExpired
	}

	if subtle.ConstantTimeCompare([]byte(code.Code), []byte(submitted)) != 1 {
		return models.ErrCodeInvalid
	}

	if err := s.store.MarkVerified(ctx, code.ID); err != nil {
		return fmt.Errorf("failed to mark code verified: %w", err)
	}

	return nil
}

// generateCode returns n cryptographically random decimal digits
func generateCode(n int) (string, error) {
	b := make([]byte, n)
	for i := range b {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b[i] = byte('0' + d.Int64())
	}
	return string(b), nil
}
