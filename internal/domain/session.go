package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session is the server side record of a signed-in browser.
type Session struct {
	ID               uuid.UUID `json:"id" db:"id"`
	AccountID        uuid.UUID `json:"account_id" db:"account_id"`
	RefreshTokenHash string    `json:"-" db:"refresh_token_hash"`
	UserAgent        string    `json:"user_agent,omitempty" db:"user_agent"`
	IPAddress        string    `json:"ip_address,omitempty" db:"ip_address"`
	ExpiresAt        time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// SessionUser is the subject of an AuthSession.
type SessionUser struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// AuthSession is what the browser holds in the shared session cookie.
type AuthSession struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresAt    time.Time   `json:"expires_at"`
	User         SessionUser `json:"user"`
}

// Expired reports whether the access token has expired at now.
func (s *AuthSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ClientInfo describes the browser that opened a session.
type ClientInfo struct {
	UserAgent string
	IPAddress string
}
