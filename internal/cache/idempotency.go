package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore remembers processed external deliveries, e.g. payment
// webhooks that the provider may send more than once.
type IdempotencyStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewIdempotencyStore creates a store with an existing Redis client
func NewIdempotencyStore(client *redis.Client, keyPrefix string) *IdempotencyStore {
	if keyPrefix == "" {
		keyPrefix = "idempotency:"
	}
	return &IdempotencyStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// MarkProcessed returns true if id was newly marked, false if it was
// already processed. Uses SETNX with TTL in one command.
func (s *IdempotencyStore) MarkProcessed(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	result, err := s.client.SetNX(ctx, s.keyPrefix+id, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark %s as processed: %w", id, err)
	}
	return result, nil
}

// Forget removes the mark so a failed delivery can be retried.
func (s *IdempotencyStore) Forget(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to forget %s: %w", id, err)
	}
	return nil
}
