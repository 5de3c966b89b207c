package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserProfile is the single profile row of an identity.
type UserProfile struct {
	ID                 uuid.UUID  `json:"id" db:"id"`
	Username           *string    `json:"username" db:"username"`
	WalletAddress      *string    `json:"wallet_address" db:"wallet_address"`
	ProfileImageURL    *string    `json:"profile_image_url" db:"profile_image_url"`
	Email              *string    `json:"email" db:"email"`
	VibzBalance        int64      `json:"vibz_balance" db:"vibz_balance"`
	MessagesSent       int        `json:"messages_sent" db:"messages_sent"`
	MessagesReceived   int        `json:"messages_received" db:"messages_received"`
	PendingMessages    int        `json:"pending_messages" db:"pending_messages"`
	RewardPoints       int64      `json:"rewardpoints" db:"rewardpoints"`
	LatestRewardAmount int64      `json:"latest_reward_amount" db:"latest_reward_amount"`
	LastSignInAt       *time.Time `json:"last_sign_in_at" db:"last_sign_in_at"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// NewUserProfile builds the defaults used when an identity is seen for the
// first time.
func NewUserProfile(id uuid.UUID, email string, now time.Time) *UserProfile {
	p := &UserProfile{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if email != "" {
		p.Email = &email
	}
	return p
}

// DisplayName falls back to the email when no username is set.
func (p *UserProfile) DisplayName() string {
	if p.Username != nil && *p.Username != "" {
		return *p.Username
	}
	if p.Email != nil {
		return *p.Email
	}
	return ""
}

// ProfileUpdate carries the editable fields. Nil keeps the stored value.
type ProfileUpdate struct {
	Username        *string `json:"username" validate:"omitempty,min=2,max=32"`
	WalletAddress   *string `json:"wallet_address" validate:"omitempty,solana_address"`
	Email           *string `json:"email" validate:"omitempty,email"`
	ProfileImageURL *string `json:"profile_image_url" validate:"omitempty,url"`
}

// Apply merges the update into p and reports whether the username changed.
// An empty string clears the field to NULL.
func (u ProfileUpdate) Apply(p *UserProfile) bool {
	usernameChanged := false
	if u.Username != nil {
		next := nullable(u.Username)
		usernameChanged = deref(p.Username) != deref(next)
		p.Username = next
	}
	if u.WalletAddress != nil {
		p.WalletAddress = nullable(u.WalletAddress)
	}
	if u.Email != nil {
		p.Email = nullable(u.Email)
	}
	if u.ProfileImageURL != nil {
		p.ProfileImageURL = nullable(u.ProfileImageURL)
	}
	return usernameChanged
}

func nullable(s *string) *string {
	if *s == "" {
		return nil
	}
	v := *s
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
