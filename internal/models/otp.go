package models

import "time"

// Verification code purposes
const (
	CodePurposeRegistration = "registration"
	CodePurposeLogin        = "login"
)

// VerificationCode is a short-lived numeric credential emailed to the user
type VerificationCode struct {
	ID        string
	Email     string
	Code      string
	Purpose   string
	Verified  bool
	CreatedAt time.Time
}

// IsExpired reports whether the code has outlived its validity window
func (c *VerificationCode) IsExpired(ttl time.Duration, now time.Time) bool {
	return now.After(c.CreatedAt.Add(ttl))
}
