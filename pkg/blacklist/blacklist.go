package blacklist

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenBlacklist tracks revoked access tokens and signed-out sessions in
// Redis until the tokens would have expired anyway.
type TokenBlacklist struct {
	redis *redis.Client
}

// NewTokenBlacklist creates a new token blacklist service
func NewTokenBlacklist(redisClient *redis.Client) *TokenBlacklist {
	return &TokenBlacklist{
		redis: redisClient,
	}
}

func tokenKey(tokenID string) string {
	return fmt.Sprintf("blacklist:token:%s", tokenID)
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("blacklist:session:%s", sessionID)
}

// AddAccessToken revokes the token with the given jti until expiresAt.
func (b *TokenBlacklist) AddAccessToken(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	// An expired token is already rejected
	if ttl <= 0 {
		return nil
	}

	if err := b.redis.Set(ctx, tokenKey(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to add token to blacklist: %w", err)
	}
	return nil
}

// IsBlacklisted checks whether the token with the given jti was revoked
func (b *TokenBlacklist) IsBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	exists, err := b.redis.Exists(ctx, tokenKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return exists > 0, nil
}

// RevokeSession marks every token bound to sessionID as revoked for ttl.
func (b *TokenBlacklist) RevokeSession(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if err := b.redis.Set(ctx, sessionKey(sessionID), time.Now().Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// IsSessionRevoked reports whether sessionID was signed out
func (b *TokenBlacklist) IsSessionRevoked(ctx context.Context, sessionID string) (bool, error) {
	exists, err := b.redis.Exists(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session revocation: %w", err)
	}
	return exists > 0, nil
}
