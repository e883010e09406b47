package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/finchat/pkg/adapters/redis"
	"github.com/aretw0/finchat/pkg/domain"
	"github.com/aretw0/finchat/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)
	ports.RunConversationStoreContract(t, redis.NewFromClient(client))
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newClient(t)

	now := time.Now()
	store := redis.NewFromClient(client,
		redis.WithTTL(time.Second),
		redis.WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.NewConversation("conv-ttl")))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, "conv-ttl")

	mr.FastForward(2 * time.Second)
	_, err = store.Load(ctx, "conv-ttl")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)

	now = now.Add(2 * time.Second)
	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids, "expired entries are pruned from the index")
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := newClient(t)

	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.NewConversation("my-conv")))

	assert.True(t, mr.Exists("custom:app:conv:my-conv"), "Expected key with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:meta:index"), "Expected index with custom prefix to exist")
	require.NoError(t, store.Ping(ctx))
}

func TestRedisStore_IDsCannotReachIndexOrLocks(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client)
	locker := redis.NewLocker(client, "finchat:")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.NewConversation("alice")))
	require.NoError(t, store.Save(ctx, domain.NewConversation("index")))
	require.NoError(t, store.Save(ctx, domain.NewConversation("meta:index")))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "index", "meta:index"}, ids)
	require.NoError(t, store.Save(ctx, domain.NewConversation("bob")), "the index is still a sorted set")

	unlock, err := locker.Lock(ctx, "abc", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, domain.NewConversation("lock:abc")))
	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("finchat:lock:abc"), "the lock token was not overwritten")

	lockCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlock, err = locker.Lock(lockCtx, "abc", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))
}
