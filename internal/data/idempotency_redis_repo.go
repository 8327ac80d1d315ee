package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edunexus/governance/internal/core"
	"github.com/edunexus/governance/internal/domain/model"
)

const redisIdempotencyPrefix = "idem:"

// RedisIdempotencyRepo stores replay snapshots as JSON values with a native Redis TTL.
type RedisIdempotencyRepo struct {
	client redis.UniversalClient
}

// NewRedisIdempotencyRepo creates a Redis-backed idempotency repository.
func NewRedisIdempotencyRepo(client redis.UniversalClient) *RedisIdempotencyRepo {
	return &RedisIdempotencyRepo{client: client}
}

func redisIdempotencyKey(scope, key string) string {
	return redisIdempotencyPrefix + scope + ":" + key
}

// Find returns the unexpired record for (scope, key) or nil when none exists.
func (r *RedisIdempotencyRepo) Find(
	ctx context.Context,
	scope, key string,
	now time.Time,
) (*model.IdempotencyRecord, error) {
	if err := requireScopeAndKey(scope, key); err != nil {
		return nil, err
	}

	raw, err := r.client.Get(ctx, redisIdempotencyKey(scope, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var rec model.IdempotencyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	if rec.Expired(now) {
		return nil, nil
	}
	return &rec, nil
}

// Insert stores rec with SET NX so the first writer's snapshot wins.
func (r *RedisIdempotencyRepo) Insert(ctx context.Context, rec *model.IdempotencyRecord) (bool, error) {
	if rec == nil {
		return false, errors.New("idempotency record is required")
	}
	if err := requireScopeAndKey(rec.Scope, rec.Key); err != nil {
		return false, err
	}

	ttl := rec.ExpiresAt.Sub(rec.CreatedAt)
	if ttl <= 0 {
		return false, errors.New("idempotency record already expired")
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("encode idempotency record: %w", err)
	}

	status, err := r.client.SetArgs(ctx, redisIdempotencyKey(rec.Scope, rec.Key), value,
		redis.SetArgs{Mode: "NX", TTL: ttl}).Result()
	if err != nil {
		// NX not met comes back as a nil reply.
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis SET NX: %w", err)
	}
	return status == "OK", nil
}

// DeleteExpired is a no-op: Redis evicts keys when their TTL elapses.
func (r *RedisIdempotencyRepo) DeleteExpired(context.Context, time.Time, int) (int64, error) {
	return 0, nil
}

// Health pings the Redis connection.
func (r *RedisIdempotencyRepo) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

var _ core.IdempotencyRepository = (*RedisIdempotencyRepo)(nil)
