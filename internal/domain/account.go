package domain

import (
	"time"

	"github.com/google/uuid"
)

type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusLocked AccountStatus = "locked"
)

// Account is the credential record of an identity. Its ID is the identity
// id that keys the profile row.
type Account struct {
	ID           uuid.UUID     `json:"id" db:"id"`
	Email        string        `json:"email" db:"email"`
	PasswordHash string        `json:"-" db:"password_hash"`
	Status       AccountStatus `json:"status" db:"status"`
	FailedLogins int           `json:"-" db:"failed_logins"`
	LockedUntil  *time.Time    `json:"-" db:"locked_until"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
	LastSignInAt *time.Time    `json:"last_sign_in_at" db:"last_sign_in_at"`
}

// IsLocked reports whether the lock window is still open at now.
func (a *Account) IsLocked(now time.Time) bool {
	return a.Status == AccountStatusLocked && a.LockedUntil != nil && now.Before(*a.LockedUntil)
}
