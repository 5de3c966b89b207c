package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MatsTornblom/Vibzprofile/internal/domain"
	"github.com/MatsTornblom/Vibzprofile/internal/events"
)

// Counters and balances are written by other vibz.world services too, so
// entries are short lived.
const defaultProfileTTL = 30 * time.Second

// generationTTL outlives any in-flight read.
const generationTTL = time.Hour

// setIfGeneration writes the profile only while the generation counter is
// still the one read before the database query.
var setIfGeneration = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[2]) or "0")
if current ~= tonumber(ARGV[2]) then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
return 1
`)

// ProfileCache is the cache-aside layer in front of the users table.
type ProfileCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// ProfileCacheOption configures a ProfileCache
type ProfileCacheOption func(*ProfileCache)

// WithProfileTTL sets how long a profile stays cached
func WithProfileTTL(ttl time.Duration) ProfileCacheOption {
	return func(c *ProfileCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheLogger sets the logger for the cache
func WithCacheLogger(logger *zap.Logger) ProfileCacheOption {
	return func(c *ProfileCache) {
		c.logger = logger
	}
}

// NewProfileCache creates a cache on an existing client. The caller keeps
// ownership of the client.
func NewProfileCache(client *redis.Client, opts ...ProfileCacheOption) *ProfileCache {
	c := &ProfileCache{
		client: client,
		ttl:    defaultProfileTTL,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func profileKey(id uuid.UUID) string {
	return fmt.Sprintf("profile:%s", id)
}

func generationKey(id uuid.UUID) string {
	return fmt.Sprintf("profile:gen:%s", id)
}

// Generation returns the eviction counter of id. Read it before loading a
// profile from the database and pass it to Set.
func (c *ProfileCache) Generation(ctx context.Context, id uuid.UUID) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read profile generation: %w", err)
	}
	return gen, nil
}

// Get returns the cached profile, or nil on a miss.
func (c *ProfileCache) Get(ctx context.Context, id uuid.UUID) (*domain.UserProfile, error) {
	data, err := c.client.Get(ctx, profileKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile from cache: %w", err)
	}

	var profile domain.UserProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		// Drop entries written by an older layout
		c.logger.Warn("evicting unreadable cached profile", zap.String("id", id.String()), zap.Error(err))
		_ = c.Delete(ctx, id)
		return nil, nil
	}
	return &profile, nil
}

// Set stores profile for the configured TTL unless the profile was evicted
// after generation was read. It reports whether the entry was written.
func (c *ProfileCache) Set(ctx context.Context, profile *domain.UserProfile, generation int64) (bool, error) {
	data, err := json.Marshal(profile)
	if err != nil {
		return false, fmt.Errorf("failed to marshal profile: %w", err)
	}
	keys := []string{profileKey(profile.ID), generationKey(profile.ID)}
	written, err := setIfGeneration.Run(ctx, c.client, keys, data, generation, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to cache profile: %w", err)
	}
	return written == 1, nil
}

// Delete evicts the profile of id and bumps its generation so a read that
// started earlier cannot store its result.
func (c *ProfileCache) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, profileKey(id))
		pipe.Incr(ctx, generationKey(id))
		pipe.Expire(ctx, generationKey(id), generationTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to evict profile: %w", err)
	}
	return nil
}

// EvictOn subscribes the cache to the events that make a cached profile
// stale. The returned function removes the subscriptions.
func (c *ProfileCache) EvictOn(sub events.Subscriber) func() {
	evict := func(ctx context.Context, id uuid.UUID) error {
		if id == uuid.Nil {
			return nil
		}
		return c.Delete(ctx, id)
	}

	unsubscribers := []func(){
		sub.Subscribe(domain.TopicProfileUpdated, func(ctx context.Context, e events.Event) error {
			if ev, ok := e.(domain.ProfileUpdated); ok && ev.Profile != nil {
				return evict(ctx, ev.Profile.ID)
			}
			return nil
		}),
		sub.Subscribe(domain.TopicBalanceChanged, func(ctx context.Context, e events.Event) error {
			if ev, ok := e.(domain.BalanceChanged); ok {
				return evict(ctx, ev.IdentityID)
			}
			return nil
		}),
		sub.Subscribe(domain.TopicSessionChanged, func(ctx context.Context, e events.Event) error {
			if ev, ok := e.(domain.SessionEvent); ok && ev.Type == domain.SessionSignedOut {
				return evict(ctx, ev.IdentityID)
			}
			return nil
		}),
	}

	return func() {
		for _, unsubscribe := range unsubscribers {
			unsubscribe()
		}
	}
}
