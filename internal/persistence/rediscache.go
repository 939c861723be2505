package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/workforge/flowengine/internal/execution"
)

const keyPrefix = "flowengine:execution:"

// RedisCache is a State Persistence backend that keeps execution snapshots
// in Redis. The engine writes snapshots through Save; its status lookups
// (pause/resume/cancel, list) use in-memory state and do not read from here.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisCache connects to a Redis instance at addr.
func NewRedisCache(addr, password string, db int, logger *zap.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisCache{client: client, logger: logger.With(zap.String("component", "persistence_redis"))}, nil
}

func (c *RedisCache) Close() error { return c.client.Close() }

func (c *RedisCache) key(executionID string) string { return keyPrefix + executionID }

// Save caches exec's current snapshot with no expiration; the entry stays
// until Delete is called, which the engine does not do.
func (c *RedisCache) Save(ctx context.Context, exec *execution.Execution) error {
	data, err := marshal(exec)
	if err != nil {
		return fmt.Errorf("marshaling execution snapshot: %w", err)
	}
	if err := c.client.Set(ctx, c.key(exec.ExecutionID), data, 0).Err(); err != nil {
		return fmt.Errorf("caching execution snapshot: %w", err)
	}
	return nil
}

// Delete evicts executionID's cached snapshot.
func (c *RedisCache) Delete(ctx context.Context, executionID string) error {
	if err := c.client.Del(ctx, c.key(executionID)).Err(); err != nil {
		return fmt.Errorf("evicting cached snapshot: %w", err)
	}
	return nil
}

// Get returns the cached Record for executionID, if present.
func (c *RedisCache) Get(ctx context.Context, executionID string) (*Record, bool, error) {
	val, err := c.client.Get(ctx, c.key(executionID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cached snapshot: %w", err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, false, fmt.Errorf("decoding cached snapshot: %w", err)
	}
	return &rec, true, nil
}
