// Package adapters backs the engine's optional coordination ports with redis.
package adapters

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"smart-campus-maintenance/maintenance/internal/engine"
	"smart-campus-maintenance/shared/cachex"
	"smart-campus-maintenance/shared/lockx"
)

const breachKeyPrefix = "maintenance:sla:notified:"

var (
	_ engine.Locker        = (*RedisLocker)(nil)
	_ engine.BreachTracker = (*BreachTracker)(nil)
)

type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	return lockx.TryLock(ctx, l.client, key, ttl)
}

// BreachTracker remembers which complaints were reported as breached within
// the renotify window.
type BreachTracker struct {
	cache *cachex.Client
}

func NewBreachTracker(cache *cachex.Client) *BreachTracker {
	return &BreachTracker{cache: cache}
}

func (b *BreachTracker) Claim(ctx context.Context, complaintID uuid.UUID, ttl time.Duration) (bool, error) {
	return b.cache.MarkOnce(ctx, breachKeyPrefix+complaintID.String(), ttl)
}
