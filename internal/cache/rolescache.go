// Package cache provides the user-roles cache. Entries are keyed by
// (server, tenant, case-normalized user); writers invalidate, never patch.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryRolesCache is the in-process cache with TTL expiry. Expired entries
// are dropped lazily on read.
type MemoryRolesCache struct {
	mu       sync.RWMutex
	serverID string
	ttl      time.Duration
	entries  map[string]memoryEntry
}

type memoryEntry struct {
	roles     []string
	expiresAt time.Time
}

// NewMemory builds a memory cache. A zero TTL means entries never expire on
// their own and only invalidation removes them.
func NewMemory(serverID string, ttl time.Duration) *MemoryRolesCache {
	return &MemoryRolesCache{
		serverID: serverID,
		ttl:      ttl,
		entries:  make(map[string]memoryEntry),
	}
}

func cacheKey(serverID, tenant, username string) string {
	return fmt.Sprintf("%s:%s:%s", serverID, tenant, username)
}

func (c *MemoryRolesCache) Get(_ context.Context, tenant, username string) ([]string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[cacheKey(c.serverID, tenant, username)]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.Invalidate(context.Background(), tenant, username)
		return nil, false
	}
	out := make([]string, len(entry.roles))
	copy(out, entry.roles)
	return out, true
}

func (c *MemoryRolesCache) Put(_ context.Context, tenant, username string, roles []string) {
	entry := memoryEntry{roles: make([]string, len(roles))}
	copy(entry.roles, roles)
	if c.ttl > 0 {
		entry.expiresAt = time.Now().Add(c.ttl)
	}
	c.mu.Lock()
	c.entries[cacheKey(c.serverID, tenant, username)] = entry
	c.mu.Unlock()
}

func (c *MemoryRolesCache) Invalidate(_ context.Context, tenant, username string) {
	c.mu.Lock()
	delete(c.entries, cacheKey(c.serverID, tenant, username))
	c.mu.Unlock()
}

// RedisRolesCache shares the cache across servers through Redis. Role lists
// are stored as Redis lists under a TTL; any Redis failure degrades to a
// cache miss and is logged at debug.
type RedisRolesCache struct {
	client   *redis.Client
	serverID string
	ttl      time.Duration
	logger   *slog.Logger
}

// NewRedis builds a Redis-backed cache.
func NewRedis(client *redis.Client, serverID string, ttl time.Duration, logger *slog.Logger) *RedisRolesCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRolesCache{client: client, serverID: serverID, ttl: ttl, logger: logger}
}

func (c *RedisRolesCache) redisKey(tenant, username string) string {
	return "userroles:" + cacheKey(c.serverID, tenant, username)
}

func (c *RedisRolesCache) Get(ctx context.Context, tenant, username string) ([]string, bool) {
	roles, err := c.client.LRange(ctx, c.redisKey(tenant, username), 0, -1).Result()
	if err != nil || len(roles) == 0 {
		if err != nil && err != redis.Nil {
			c.logger.DebugContext(ctx, "roles cache read failed", "error", err.Error())
		}
		return nil, false
	}
	return roles, true
}

func (c *RedisRolesCache) Put(ctx context.Context, tenant, username string, roles []string) {
	if len(roles) == 0 {
		return
	}
	key := c.redisKey(tenant, username)
	vals := make([]any, len(roles))
	for i, r := range roles {
		vals[i] = r
	}
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.RPush(ctx, key, vals...)
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.DebugContext(ctx, "roles cache write failed", "error", err.Error())
	}
}

func (c *RedisRolesCache) Invalidate(ctx context.Context, tenant, username string) {
	if err := c.client.Del(ctx, c.redisKey(tenant, username)).Err(); err != nil {
		c.logger.DebugContext(ctx, "roles cache invalidation failed", "error", err.Error())
	}
}
