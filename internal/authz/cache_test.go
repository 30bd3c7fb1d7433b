package authz

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*DecisionCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewDecisionCache(client, time.Minute, nil), mr
}

func TestDecisionCachePutGet(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	scope := UnitScope("TPE")

	_, ok := cache.Get(ctx, 7, PermProjectsRead, scope)
	require.False(t, ok)

	want := Decision{Allowed: true, RoleID: "project_manager", Scope: "TPE"}
	cache.Put(ctx, 7, PermProjectsRead, scope, want)

	got, ok := cache.Get(ctx, 7, PermProjectsRead, scope)
	require.True(t, ok)
	require.Equal(t, want, got)

	// Deny outcomes are cached too.
	cache.Put(ctx, 7, PermFinancePost, scope, Decision{})
	got, ok = cache.Get(ctx, 7, PermFinancePost, scope)
	require.True(t, ok)
	require.False(t, got.Allowed)
}

func TestDecisionCacheScopeIsolation(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	cache.Put(ctx, 7, PermProjectsRead, UnitScope("TPE"), Decision{Allowed: true, RoleID: "pm", Scope: "TPE"})

	_, ok := cache.Get(ctx, 7, PermProjectsRead, UnitScope("KHH"))
	require.False(t, ok, "entries are keyed per scope")
	_, ok = cache.Get(ctx, 7, PermProjectsRead, GlobalScope())
	require.False(t, ok)
	_, ok = cache.Get(ctx, 8, PermProjectsRead, UnitScope("TPE"))
	require.False(t, ok, "entries are keyed per user")
}

func TestDecisionCacheInvalidateUser(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	scope := GlobalScope()

	cache.Put(ctx, 7, PermProjectsRead, scope, Decision{Allowed: true})
	cache.Put(ctx, 8, PermProjectsRead, scope, Decision{Allowed: true})

	require.NoError(t, cache.InvalidateUser(ctx, 7))

	_, ok := cache.Get(ctx, 7, PermProjectsRead, scope)
	require.False(t, ok, "user 7 entries dropped")
	_, ok = cache.Get(ctx, 8, PermProjectsRead, scope)
	require.True(t, ok, "other users untouched")
}

func TestDecisionCacheInvalidateAll(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	scope := GlobalScope()

	cache.Put(ctx, 7, PermProjectsRead, scope, Decision{Allowed: true})
	cache.Put(ctx, 8, PermRolesRead, scope, Decision{Allowed: true})

	require.NoError(t, cache.InvalidateAll(ctx))

	_, ok := cache.Get(ctx, 7, PermProjectsRead, scope)
	require.False(t, ok)
	_, ok = cache.Get(ctx, 8, PermRolesRead, scope)
	require.False(t, ok)
}

func TestDecisionCacheTTL(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	scope := GlobalScope()

	cache.Put(ctx, 7, PermProjectsRead, scope, Decision{Allowed: true})
	mr.FastForward(2 * time.Minute)

	_, ok := cache.Get(ctx, 7, PermProjectsRead, scope)
	require.False(t, ok, "entries expire with the safety-net TTL")
}

func TestDecisionCacheEvictedVersionOpensFreshGeneration(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	scope := GlobalScope()

	cache.Put(ctx, 7, PermProjectsRead, scope, Decision{Allowed: true})
	_, ok := cache.Get(ctx, 7, PermProjectsRead, scope)
	require.True(t, ok)

	// Redis can evict a version counter under memory pressure while the
	// decision entries stored under it live on within their TTL. The
	// re-seeded counter must not make those entries reachable again.
	mr.Del(cacheUserVersionKey + "7")
	_, ok = cache.Get(ctx, 7, PermProjectsRead, scope)
	require.False(t, ok, "old user generation stays stranded")

	cache.Put(ctx, 8, PermRolesRead, scope, Decision{Allowed: true})
	mr.Del(cacheGlobalVersionKey)
	_, ok = cache.Get(ctx, 8, PermRolesRead, scope)
	require.False(t, ok, "old global generation stays stranded")

	// Invalidating a counter that was evicted re-seeds it too.
	cache.Put(ctx, 9, PermProjectsRead, scope, Decision{Allowed: true})
	mr.Del(cacheUserVersionKey + "9")
	require.NoError(t, cache.InvalidateUser(ctx, 9))
	_, ok = cache.Get(ctx, 9, PermProjectsRead, scope)
	require.False(t, ok)
}

func TestDecisionCacheRedisDownDegradesToMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewDecisionCache(client, time.Minute, nil)
	ctx := context.Background()

	mr.Close()

	_, ok := cache.Get(ctx, 7, PermProjectsRead, GlobalScope())
	require.False(t, ok)
	cache.Put(ctx, 7, PermProjectsRead, GlobalScope(), Decision{Allowed: true})
	require.Error(t, cache.InvalidateUser(ctx, 7), "invalidation failures must surface")
}

func TestDecisionCacheNilSafe(t *testing.T) {
	var cache *DecisionCache
	ctx := context.Background()

	_, ok := cache.Get(ctx, 1, PermProjectsRead, GlobalScope())
	require.False(t, ok)
	cache.Put(ctx, 1, PermProjectsRead, GlobalScope(), Decision{})
	require.NoError(t, cache.InvalidateUser(ctx, 1))
	require.NoError(t, cache.InvalidateAll(ctx))
}
