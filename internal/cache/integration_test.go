//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	platformredis "idrealm/internal/platform/redis"
	"idrealm/pkg/testutil/containers"
)

func newRedisCache(t *testing.T, ttl time.Duration) *RedisRolesCache {
	t.Helper()
	url := containers.StartRedis(t)

	client, err := platformredis.New(platformredis.Config{URL: url})
	require.NoError(t, err)
	require.NotNil(t, client)
	t.Cleanup(func() { client.Close() })

	return NewRedis(client.Client, "server-a", ttl, nil)
}

func TestRedisRolesCache(t *testing.T) {
	c := newRedisCache(t, time.Minute)
	ctx := context.Background()

	_, ok := c.Get(ctx, "carbon.super", "PRIMARY/alice")
	assert.False(t, ok)

	c.Put(ctx, "carbon.super", "PRIMARY/alice", []string{"Internal/everyone", "PRIMARY/ops"})

	roles, ok := c.Get(ctx, "carbon.super", "PRIMARY/alice")
	require.True(t, ok)
	assert.Equal(t, []string{"Internal/everyone", "PRIMARY/ops"}, roles, "list order survives the round trip")

	// Re-putting replaces the whole list rather than appending.
	c.Put(ctx, "carbon.super", "PRIMARY/alice", []string{"Internal/everyone"})
	roles, ok = c.Get(ctx, "carbon.super", "PRIMARY/alice")
	require.True(t, ok)
	assert.Equal(t, []string{"Internal/everyone"}, roles)

	_, ok = c.Get(ctx, "other.tenant", "PRIMARY/alice")
	assert.False(t, ok, "tenants do not share entries")

	c.Invalidate(ctx, "carbon.super", "PRIMARY/alice")
	_, ok = c.Get(ctx, "carbon.super", "PRIMARY/alice")
	assert.False(t, ok)
}

func TestRedisRolesCacheTTL(t *testing.T) {
	c := newRedisCache(t, 100*time.Millisecond)
	ctx := context.Background()

	c.Put(ctx, "carbon.super", "PRIMARY/bob", []string{"Internal/everyone"})
	_, ok := c.Get(ctx, "carbon.super", "PRIMARY/bob")
	require.True(t, ok)

	time.Sleep(200 * time.Millisecond)
	_, ok = c.Get(ctx, "carbon.super", "PRIMARY/bob")
	assert.False(t, ok)
}
