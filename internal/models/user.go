package models

import (
	"time"
)

type User struct {
	ID           string
	Email        string
	PasswordHash string // Placeholder hash; accounts authenticate via emailed codes
	FirstName    string
	LastName     string
	Phone        string
	Gender       string // "M", "F", "O" or empty
	EmailVerified bool
	Role         string // e.g., "user", "admin"
	LastLogin    *time.Time
	LastLogout   *time.Time // Advisory only; does not invalidate cached sessions
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Security SecurityState // Guard counters, stored alongside the user row
}
