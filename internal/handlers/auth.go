package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/havenwell/aegis/internal/auth"
	"github.com/havenwell/aegis/internal/models"
	"github.com/havenwell/aegis/internal/services"
	pkghttp "github.com/havenwell/aegis/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	RequestRegistration(ctx context.Context, email string) error
	CompleteRegistration(ctx context.Context, req services.RegistrationRequest, code string) (*models.User, error)
	RequestLoginCode(ctx context.Context, email, ipAddress, userAgent string) error
	VerifyLoginCode(ctx context.Context, email, code, ipAddress, userAgent string) (*services.AuthResponse, error)
	ResendLoginCode(ctx context.Context, email, ipAddress, userAgent string) error
	ResendRegistrationCode(ctx context.Context, email, ipAddress, userAgent string) error
	Logout(ctx context.Context, userID string) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// Request DTOs

// RegisterRequest represents the request body for starting registration
type RegisterRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// VerifyRegistrationRequest represents the request body for completing registration
type VerifyRegistrationRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Code      string `json:"code" validate:"required,len=6,numeric"`
	FirstName string `json:"first_name" validate:"required,min=1,max=100"`
	LastName  string `json:"last_name" validate:"required,min=1,max=100"`
	Phone     string `json:"phone" validate:"omitempty,max=20"`
	Gender    string `json:"gender" validate:"omitempty,oneof=M F O"`
}

// LoginRequest represents the request body for requesting a login code
type LoginRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// VerifyLoginRequest represents the request body for completing login
type VerifyLoginRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// ResendRequest represents the request body for re-sending a code
type ResendRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// Response DTOs

// UserResponse is the public view of an account
type UserResponse struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Phone         string     `json:"phone,omitempty"`
	Gender        string     `json:"gender,omitempty"`
	EmailVerified bool       `json:"email_verified"`
	Role          string     `json:"role"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// LoginResponse is returned on successful login
type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

func toUserResponse(user *models.User) UserResponse {
	return UserResponse{
		ID:            user.ID,
		Email:         user.Email,
		FirstName:     user.FirstName,
		LastName:      user.LastName,
		Phone:         user.Phone,
		Gender:        user.Gender,
		EmailVerified: user.EmailVerified,
		Role:          user.Role,
		LastLogin:     user.LastLogin,
		CreatedAt:     user.CreatedAt,
	}
}

const codeSentMessage = "If the email address is valid, a verification code has been sent."

// Register starts registration by sending a code to the email
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	req.Email = normalizeEmail(req.Email)

	if err := h.service.RequestRegistration(r.Context(), req.Email); err != nil {
		if h.writeGuardError(w, err) {
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"message": codeSentMessage})
}

// VerifyRegistration completes registration with the emailed code
func (h *AuthHandler) VerifyRegistration(w http.ResponseWriter, r *http.Request) {
	var req VerifyRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	req.Email = normalizeEmail(req.Email)

	user, err := h.service.CompleteRegistration(r.Context(), services.RegistrationRequest{
		Email:     req.Email,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Phone:     strings.TrimSpace(req.Phone),
		Gender:    req.Gender,
	}, req.Code)
	if err != nil {
		if h.writeGuardError(w, err) {
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// Login requests a login code for the email
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	req.Email = normalizeEmail(req.Email)

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	if err := h.service.RequestLoginCode(r.Context(), req.Email, ipAddress, userAgent); err != nil {
		if h.writeGuardError(w, err) {
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"message": codeSentMessage})
}

// VerifyLogin completes login with the emailed code
func (h *AuthHandler) VerifyLogin(w http.ResponseWriter, r *http.Request) {
	var req VerifyLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	req.Email = normalizeEmail(req.Email)

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	authResp, err := h.service.VerifyLoginCode(r.Context(), req.Email, req.Code, ipAddress, userAgent)
	if err != nil {
		if h.writeGuardError(w, err) {
			return
		}
		if errors.Is(err, models.ErrUnauthorized) {
			pkghttp.WriteUnauthorized(w, "Authentication failed")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token: authResp.Token,
		User:  toUserResponse(authResp.User),
	})
}

// ResendLoginCode re-sends a login code
func (h *AuthHandler) ResendLoginCode(w http.ResponseWriter, r *http.Request) {
	h.resend(w, r, h.service.ResendLoginCode)
}

// ResendRegistrationCode re-sends a registration code
func (h *AuthHandler) ResendRegistrationCode(w http.ResponseWriter, r *http.Request) {
	h.resend(w, r, h.service.ResendRegistrationCode)
}

func (h *AuthHandler) resend(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, email, ipAddress, userAgent string) error) {
	var req ResendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	req.Email = normalizeEmail(req.Email)

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	if err := fn(r.Context(), req.Email, ipAddress, userAgent); err != nil {
		if h.writeGuardError(w, err) {
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"message": codeSentMessage})
}

// Logout records the logout time for the authenticated user
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	if err := h.service.Logout(r.Context(), userID); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// GetSession returns the authenticated user's profile
func (h *AuthHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteUnauthorized(w, "Invalid or expired session")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// writeGuardError maps guard errors to their HTTP responses. Code errors stay
// distinct (they describe the caller's own code), while lockout and rate
// limit responses carry their retry context. Returns true when a response was
// written.
func (h *AuthHandler) writeGuardError(w http.ResponseWriter, err error) bool {
	var lockedErr *models.AccountLockedError
	if errors.As(err, &lockedErr) {
		minutes := lockedErr.RemainingMinutes()
		w.Header().Set("Retry-After", strconv.Itoa(minutes*60))
		pkghttp.WriteError(w, http.StatusForbidden, "account_locked",
			fmt.Sprintf("Account temporarily locked due to multiple failed attempts. Try again in %d minutes.", minutes))
		return true
	}

	var rateErr *models.RateLimitedError
	if errors.As(err, &rateErr) {
		pkghttp.WriteTooManyRequests(w,
			fmt.Sprintf("Too many attempts (%d). Please try again later.", rateErr.Attempts))
		return true
	}

	switch {
	case errors.Is(err, models.ErrCodeNotFound):
		pkghttp.WriteBadRequest(w, "No verification code found. Please request a new one.")
	case errors.Is(err, models.ErrCodeExpired):
		pkghttp.WriteBadRequest(w, "Verification code has expired. Please request a new one.")
	case errors.Is(err, models.ErrCodeInvalid):
		pkghttp.WriteBadRequest(w, "Invalid verification code.")
	default:
		return false
	}
	return true
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
