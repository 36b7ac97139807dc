package services

import (
	"context"
	"sync"
	"time"

	"github.com/havenwell/aegis/internal/models"
)

// MockUserRepository implements UserRepository and UserDirectory for testing
type MockUserRepository struct {
	GetByIDFunc       func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc    func(ctx context.Context, email string) (*models.User, error)
	CreateFunc        func(ctx context.Context, user *models.User) (*models.User, error)
	SetLastLoginFunc  func(ctx context.Context, userID string, at time.Time) error
	SetLastLogoutFunc func(ctx context.Context, userID string, at time.Time) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return user, nil
}

func (m *MockUserRepository) SetLastLogin(ctx context.Context, userID string, at time.Time) error {
	if m.SetLastLoginFunc != nil {
		return m.SetLastLoginFunc(ctx, userID, at)
	}
	return nil
}

func (m *MockUserRepository) SetLastLogout(ctx context.Context, userID string, at time.Time) error {
	if m.SetLastLogoutFunc != nil {
		return m.SetLastLogoutFunc(ctx, userID, at)
	}
	return nil
}

// MockSecurityStateStore keeps guard state in memory, applying updates the way
// the row-locked repository would
type MockSecurityStateStore struct {
	mu     sync.Mutex
	states map[string]*models.SecurityState
}

func NewMockSecurityStateStore() *MockSecurityStateStore {
	return &MockSecurityStateStore{states: make(map[string]*models.SecurityState)}
}

func (m *MockSecurityStateStore) UpdateSecurityState(ctx context.Context, userID string, fn func(*models.SecurityState) error) (*models.SecurityState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[userID]
	if !ok {
		state = &models.SecurityState{}
		m.states[userID] = state
	}
	if err := fn(state); err != nil {
		return nil, err
	}

	snapshot := *state
	return &snapshot, nil
}

func (m *MockSecurityStateStore) State(userID string) models.SecurityState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.states[userID]; ok {
		return *state
	}
	return models.SecurityState{}
}

// MockCodeStore implements VerificationCodeStore for testing
type MockCodeStore struct {
	CreateFunc              func(ctx context.Context, code *models.VerificationCode) error
	GetLatestUnverifiedFunc func(ctx context.Context, email, purpose string) (*models.VerificationCode, error)
	MarkVerifiedFunc        func(ctx context.Context, id string) error
}

func (m *MockCodeStore) Create(ctx context.Context, code *models.VerificationCode) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, code)
	}
	code.ID = "code-1"
	code.CreatedAt = time.Now()
	return nil
}

func (m *MockCodeStore) GetLatestUnverified(ctx context.Context, email, purpose string) (*models.VerificationCode, error) {
	if m.GetLatestUnverifiedFunc != nil {
		return m.GetLatestUnverifiedFunc(ctx, email, purpose)
	}
	return nil, models.ErrNotFound
}

func (m *MockCodeStore) MarkVerified(ctx context.Context, id string) error {
	if m.MarkVerifiedFunc != nil {
		return m.MarkVerifiedFunc(ctx, id)
	}
	return nil
}

// SentEmail records one delivery made through MockEmailService
type SentEmail struct {
	Email     string
	Code      string
	Purpose   string
	AlertType string
}

// MockEmailService implements EmailService and records deliveries
type MockEmailService struct {
	mu       sync.Mutex
	Codes    []SentEmail
	Alerts   []SentEmail
	CodeErr  error
	AlertErr error
}

func (m *MockEmailService) SendVerificationCode(ctx context.Context, email, code, purpose string, expiresIn time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CodeErr != nil {
		return m.CodeErr
	}
	m.Codes = append(m.Codes, SentEmail{Email: email, Code: code, Purpose: purpose})
	return nil
}

func (m *MockEmailService) SendSecurityAlert(ctx context.Context, email, alertType, ipAddress, userAgent string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AlertErr != nil {
		return m.AlertErr
	}
	m.Alerts = append(m.Alerts, SentEmail{Email: email, AlertType: alertType})
	return nil
}

// MockCodeManager implements CodeManager for testing
type MockCodeManager struct {
	IssueFunc  func(ctx context.Context, email, purpose string) (*models.VerificationCode, error)
	VerifyFunc func(ctx context.Context, email, purpose, submitted string) error
}

func (m *MockCodeManager) Issue(ctx context.Context, email, purpose string) (*models.VerificationCode, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, email, purpose)
	}
	return &models.VerificationCode{ID: "code-1", Email: email, Code: "123456", Purpose: purpose, CreatedAt: time.Now()}, nil
}

func (m *MockCodeManager) Verify(ctx context.Context, email, purpose, submitted string) error {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, email, purpose, submitted)
	}
	return nil
}

// MockSessionManager implements SessionManager for testing
type MockSessionManager struct {
	IssueFunc  func(ctx context.Context, email, userID string) (string, error)
	LogoutFunc func(ctx context.Context, userID string) error
}

func (m *MockSessionManager) Issue(ctx context.Context, email, userID string) (string, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, email, userID)
	}
	return email + ":testsecret", nil
}

func (m *MockSessionManager) Logout(ctx context.Context, userID string) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, userID)
	}
	return nil
}
