package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	versionKeyPrefix  = "authz:ver:"
	decisionKeyPrefix = "authz:dec:"
	// InvalidationChannel carries user IDs whose verdicts were dropped, for
	// other instances holding warmer caches than the shared keyspace.
	InvalidationChannel = "authz.invalidate"
)

// Cache memoizes verdicts in Redis, keyed by (user, code, resource id) under
// a per-user version. Invalidation bumps the version, which orphans every
// cached entry for that user at once; orphans expire by TTL. The bump happens
// synchronously before the mutating call returns, so the mutating actor
// always observes its own write.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Get returns a memoized decision, reporting a miss when none is stored.
func (c *Cache) Get(ctx context.Context, userID int64, code, resourceID string) (Decision, bool, error) {
	if c == nil || c.client == nil {
		return Decision{}, false, nil
	}
	key, err := c.decisionKey(ctx, userID, code, resourceID)
	if err != nil {
		return Decision{}, false, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Decision{}, false, nil
	}
	if err != nil {
		return Decision{}, false, err
	}
	var d Decision
	if err := json.Unmarshal(payload, &d); err != nil {
		return Decision{}, false, err
	}
	return d, true, nil
}

// Put memoizes a decision under the user's current version.
func (c *Cache) Put(ctx context.Context, userID int64, code, resourceID string, d Decision) error {
	if c == nil || c.client == nil {
		return nil
	}
	key, err := c.decisionKey(ctx, userID, code, resourceID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, c.ttl).Err()
}

// Invalidate drops all cached verdicts for the user by bumping their version
// and announces the bump for other instances.
func (c *Cache) Invalidate(ctx context.Context, userID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Incr(ctx, c.versionKey(userID)).Err(); err != nil {
		return err
	}
	return c.client.Publish(ctx, InvalidationChannel, strconv.FormatInt(userID, 10)).Err()
}

// ListenForInvalidation subscribes to bump announcements and invokes fn with
// each affected user ID until the context is cancelled.
func (c *Cache) ListenForInvalidation(ctx context.Context, fn func(userID int64)) error {
	if c == nil || c.client == nil {
		return nil
	}
	sub := c.client.Subscribe(ctx, InvalidationChannel)
	defer func() { _ = sub.Close() }()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			userID, err := strconv.ParseInt(msg.Payload, 10, 64)
			if err != nil {
				continue
			}
			if fn != nil {
				fn(userID)
			}
		}
	}
}

func (c *Cache) version(ctx context.Context, userID int64) (int64, error) {
	ver, err := c.client.Get(ctx, c.versionKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
	}
	return ver, nil
}

func (c *Cache) versionKey(userID int64) string {
	return versionKeyPrefix + strconv.FormatInt(userID, 10)
}

func (c *Cache) decisionKey(ctx context.Context, userID int64, code, resourceID string) (string, error) {
	ver, err := c.version(ctx, userID)
	if err != nil {
		return "", err
	}
	if resourceID == "" {
		resourceID = "-"
	}
	return fmt.Sprintf("%s%d:%d:%s:%s", decisionKeyPrefix, userID, ver, code, resourceID), nil
}
