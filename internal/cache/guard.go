package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// InFlightGuard marks an operation as running so a concurrent duplicate
// can be refused. It does not queue or retry.
type InFlightGuard struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewInFlightGuard creates a guard whose marks expire after ttl even if
// never released.
func NewInFlightGuard(client *redis.Client, keyPrefix string, ttl time.Duration) *InFlightGuard {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &InFlightGuard{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

// Acquire marks key as in flight. ok is false when another holder has it.
// release must be called once the operation is done.
func (g *InFlightGuard) Acquire(ctx context.Context, key string) (release func(), ok bool, err error) {
	fullKey := g.keyPrefix + key
	token := uuid.NewString()

	ok, err = g.client.SetNX(ctx, fullKey, token, g.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire in-flight mark: %w", err)
	}
	if !ok {
		return func() {}, false, nil
	}

	return func() {
		// The request context may already be done here
		_ = releaseScript.Run(context.Background(), g.client, []string{fullKey}, token).Err()
	}, true, nil
}
