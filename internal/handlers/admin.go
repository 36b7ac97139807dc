package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	pkghttp "github.com/havenwell/aegis/pkg/http"
)

// RateLimitResetter clears guard counters for an email
type RateLimitResetter interface {
	ResetRateLimits(ctx context.Context, email string) error
}

// AdminHandler handles administrative HTTP requests
type AdminHandler struct {
	resetter RateLimitResetter
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(resetter RateLimitResetter) *AdminHandler {
	return &AdminHandler{resetter: resetter}
}

// ResetRateLimitsRequest represents the request body for a rate limit reset
type ResetRateLimitsRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetRateLimits clears all rate limit counters and penalty state for an
// email across every authentication flow
func (h *AdminHandler) ResetRateLimits(w http.ResponseWriter, r *http.Request) {
	var req ResetRateLimitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	req.Email = normalizeEmail(req.Email)

	if err := h.resetter.ResetRateLimits(r.Context(), req.Email); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Rate limits reset"})
}
