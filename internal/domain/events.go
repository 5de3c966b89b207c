package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionEventType names a change of the signed-in state.
type SessionEventType string

const (
	SessionSignedIn       SessionEventType = "SIGNED_IN"
	SessionTokenRefreshed SessionEventType = "TOKEN_REFRESHED"
	SessionSignedOut      SessionEventType = "SIGNED_OUT"
)

// Topics carried by the event bus.
const (
	TopicSessionChanged = "session.changed"
	TopicProfileUpdated = "profile.updated"
	TopicBalanceChanged = "balance.changed"
)

// SessionEvent is published on every sign in, refresh and sign out.
// Session is nil for SIGNED_OUT.
type SessionEvent struct {
	Type       SessionEventType
	IdentityID uuid.UUID
	Session    *AuthSession
	OccurredAt time.Time
}

func (SessionEvent) Topic() string { return TopicSessionChanged }

// ProfileUpdated is published after a profile save.
type ProfileUpdated struct {
	Profile         *UserProfile
	UsernameChanged bool
	OccurredAt      time.Time
}

func (ProfileUpdated) Topic() string { return TopicProfileUpdated }

// BalanceChanged is published after every committed increment. Balance
// is only set when BalanceKnown; the read back after the increment can
// fail on its own.
type BalanceChanged struct {
	IdentityID   uuid.UUID
	Amount       int64
	Balance      int64
	BalanceKnown bool
	Reason       string
	OccurredAt   time.Time
}

func (BalanceChanged) Topic() string { return TopicBalanceChanged }
