package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheGlobalVersionKey = "authz:version"
	cacheUserVersionKey   = "authz:uversion:"
	cacheDecisionKey      = "authz:decision:"
)

// DecisionCache memoizes resolution outcomes per principal in Redis.
//
// Keys embed a global version and a per-user version. Invalidation bumps the
// relevant version synchronously, and writers snapshot the key before
// resolving (EntryKey/PutAt), so once an invalidation returns, no later
// Authorize call can read a pre-invalidation entry. Entries carry a short TTL
// as a safety net against any unreported invalidation path.
type DecisionCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewDecisionCache wraps the redis client. A nil client disables caching.
func NewDecisionCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *DecisionCache {
	return &DecisionCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached decision for (user, permission, scope), or a miss.
// Redis failures degrade to a miss; the store stays the source of truth.
func (c *DecisionCache) Get(ctx context.Context, userID int64, permissionID string, scope Scope) (Decision, bool) {
	if c == nil || c.client == nil {
		return Decision{}, false
	}
	key, err := c.entryKey(ctx, userID, permissionID, scope)
	if err != nil {
		c.warn("cache key", err)
		return Decision{}, false
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.warn("cache get", err)
		}
		return Decision{}, false
	}
	var d Decision
	if err := json.Unmarshal(payload, &d); err != nil {
		c.warn("cache decode", err)
		return Decision{}, false
	}
	return d, true
}

// Put stores the decision under the versions current now. Failures are logged
// and ignored.
func (c *DecisionCache) Put(ctx context.Context, userID int64, permissionID string, scope Scope, d Decision) {
	key, ok := c.EntryKey(ctx, userID, permissionID, scope)
	if !ok {
		return
	}
	c.PutAt(ctx, key, d)
}

// EntryKey snapshots the versioned key for (user, permission, scope). Callers
// that resolve a decision must take the snapshot before reading the store and
// write through PutAt: an invalidation landing mid-resolution then bumps the
// version past the snapshot, stranding the stale write in the dead
// generation. Returns false when caching is disabled or the versions cannot
// be read.
func (c *DecisionCache) EntryKey(ctx context.Context, userID int64, permissionID string, scope Scope) (string, bool) {
	if c == nil || c.client == nil {
		return "", false
	}
	key, err := c.entryKey(ctx, userID, permissionID, scope)
	if err != nil {
		c.warn("cache key", err)
		return "", false
	}
	return key, true
}

// PutAt stores the decision under a key snapshotted with EntryKey. Failures
// are logged and ignored.
func (c *DecisionCache) PutAt(ctx context.Context, key string, d Decision) {
	if c == nil || c.client == nil || key == "" {
		return
	}
	payload, err := json.Marshal(d)
	if err != nil {
		c.warn("cache encode", err)
		return
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.warn("cache put", err)
	}
}

// InvalidateUser drops every cached decision for the user by bumping the
// user's version. Must be called inside the operation that commits the
// assignment change, before it returns.
func (c *DecisionCache) InvalidateUser(ctx context.Context, userID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.bump(ctx, userVersionKey(userID))
}

// InvalidateAll drops the whole cache by bumping the global version. Used on
// role mutations, whose blast radius is every holder of the role.
func (c *DecisionCache) InvalidateAll(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.bump(ctx, cacheGlobalVersionKey)
}

// bump increments a version counter, seeding it first so a counter lost to
// eviction restarts in a fresh generation instead of counting up from 1 into
// one that older entries were stored under.
func (c *DecisionCache) bump(ctx context.Context, key string) error {
	if err := c.client.SetNX(ctx, key, newVersionSeed(), 0).Err(); err != nil {
		return err
	}
	return c.client.Incr(ctx, key).Err()
}

func (c *DecisionCache) entryKey(ctx context.Context, userID int64, permissionID string, scope Scope) (string, error) {
	global, err := c.version(ctx, cacheGlobalVersionKey)
	if err != nil {
		return "", err
	}
	user, err := c.version(ctx, userVersionKey(userID))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d:%d:%d:%s:%s", cacheDecisionKey, global, user, userID, permissionID, scope.Token()), nil
}

// version reads a version counter, seeding it when missing.
func (c *DecisionCache) version(ctx context.Context, key string) (int64, error) {
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, key, newVersionSeed(), 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, key).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

var lastVersionSeed atomic.Int64

// newVersionSeed returns a clock-derived counter seed, strictly increasing
// within the process so consecutive re-seeds never collide.
func newVersionSeed() int64 {
	seed := time.Now().UnixNano()
	for {
		last := lastVersionSeed.Load()
		if seed <= last {
			seed = last + 1
		}
		if lastVersionSeed.CompareAndSwap(last, seed) {
			return seed
		}
	}
}

func (c *DecisionCache) warn(msg string, err error) {
	if c.logger != nil {
		c.logger.Warn(msg, slog.Any("error", err))
	}
}

func userVersionKey(userID int64) string {
	return cacheUserVersionKey + strconv.FormatInt(userID, 10)
}
