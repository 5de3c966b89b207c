package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MatsTornblom/Vibzprofile/internal/domain"
	"github.com/MatsTornblom/Vibzprofile/internal/events"
)

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestProfileCache_GetSetDelete(t *testing.T) {
	client, mr := newRedis(t)
	c := NewProfileCache(client, WithProfileTTL(time.Minute))
	ctx := context.Background()
	username := "vibe"
	profile := &domain.UserProfile{ID: uuid.New(), Username: &username, VibzBalance: 100}

	got, err := c.Get(ctx, profile.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	written, err := c.Set(ctx, profile, 0)
	require.NoError(t, err)
	assert.True(t, written)
	assert.Equal(t, time.Minute, mr.TTL("profile:"+profile.ID.String()))

	got, err = c.Get(ctx, profile.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "vibe", *got.Username)
	assert.Equal(t, int64(100), got.VibzBalance)

	require.NoError(t, c.Delete(ctx, profile.ID))
	got, err = c.Get(ctx, profile.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestProfileCache_SetAfterEvictionIsDropped(t *testing.T) {
	client, mr := newRedis(t)
	c := NewProfileCache(client)
	ctx := context.Background()
	id := uuid.New()

	gen, err := c.Generation(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, gen)

	// A balance change lands between the database read and the cache write
	require.NoError(t, c.Delete(ctx, id))

	written, err := c.Set(ctx, &domain.UserProfile{ID: id, VibzBalance: 0}, gen)
	require.NoError(t, err)
	assert.False(t, written)
	assert.False(t, mr.Exists("profile:"+id.String()))

	gen, err = c.Generation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)

	written, err = c.Set(ctx, &domain.UserProfile{ID: id, VibzBalance: 100}, gen)
	require.NoError(t, err)
	assert.True(t, written)
	got, err := c.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(100), got.VibzBalance)
}

func TestProfileCache_DefaultTTLIsShort(t *testing.T) {
	client, mr := newRedis(t)
	c := NewProfileCache(client)
	id := uuid.New()

	_, err := c.Set(context.Background(), &domain.UserProfile{ID: id}, 0)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, mr.TTL("profile:"+id.String()))
}

func TestProfileCache_UnreadableEntryIsEvicted(t *testing.T) {
	client, mr := newRedis(t)
	c := NewProfileCache(client)
	id := uuid.New()
	require.NoError(t, mr.Set("profile:"+id.String(), "not json"))

	got, err := c.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, mr.Exists("profile:"+id.String()))
}

func TestProfileCache_EvictOn(t *testing.T) {
	client, mr := newRedis(t)
	c := NewProfileCache(client)
	bus := events.NewBus(nil)
	ctx := context.Background()
	unsubscribe := c.EvictOn(bus)

	seed := func() *domain.UserProfile {
		p := &domain.UserProfile{ID: uuid.New()}
		written, err := c.Set(ctx, p, 0)
		require.NoError(t, err)
		require.True(t, written)
		return p
	}

	p := seed()
	bus.Publish(ctx, domain.ProfileUpdated{Profile: p})
	assert.False(t, mr.Exists("profile:"+p.ID.String()))

	p = seed()
	bus.Publish(ctx, domain.BalanceChanged{IdentityID: p.ID, Amount: 100})
	assert.False(t, mr.Exists("profile:"+p.ID.String()))

	p = seed()
	bus.Publish(ctx, domain.BalanceChanged{IdentityID: p.ID, Amount: 100, BalanceKnown: false})
	assert.False(t, mr.Exists("profile:"+p.ID.String()))

	p = seed()
	bus.Publish(ctx, domain.SessionEvent{Type: domain.SessionTokenRefreshed, IdentityID: p.ID})
	assert.True(t, mr.Exists("profile:"+p.ID.String()))
	bus.Publish(ctx, domain.SessionEvent{Type: domain.SessionSignedOut, IdentityID: p.ID})
	assert.False(t, mr.Exists("profile:"+p.ID.String()))

	unsubscribe()
	assert.Zero(t, bus.SubscriberCount(domain.TopicProfileUpdated))
	assert.Zero(t, bus.SubscriberCount(domain.TopicBalanceChanged))
	assert.Zero(t, bus.SubscriberCount(domain.TopicSessionChanged))
}

func TestInFlightGuard(t *testing.T) {
	client, mr := newRedis(t)
	guard := NewInFlightGuard(client, "grant:", 10*time.Second)
	ctx := context.Background()

	release, ok, err := guard.Acquire(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = guard.Acquire(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok)

	other, ok, err := guard.Acquire(ctx, "user-2")
	require.NoError(t, err)
	assert.True(t, ok)
	other()

	release()
	assert.False(t, mr.Exists("grant:user-1"))

	release, ok, err = guard.Acquire(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, ok)
	release()
}

func TestInFlightGuard_ReleaseKeepsForeignMark(t *testing.T) {
	client, mr := newRedis(t)
	guard := NewInFlightGuard(client, "grant:", time.Second)
	ctx := context.Background()

	release, ok, err := guard.Acquire(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, ok)

	// The mark expired and someone else took it
	mr.FastForward(2 * time.Second)
	_, ok, err = guard.Acquire(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, ok)

	release()
	assert.True(t, mr.Exists("grant:user-1"))
}

func TestIdempotencyStore(t *testing.T) {
	client, _ := newRedis(t)
	store := NewIdempotencyStore(client, "")
	ctx := context.Background()

	first, err := store.MarkProcessed(ctx, "evt_1", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := store.MarkProcessed(ctx, "evt_1", time.Hour)
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, store.Forget(ctx, "evt_1"))
	retried, err := store.MarkProcessed(ctx, "evt_1", time.Hour)
	require.NoError(t, err)
	assert.True(t, retried)
}
