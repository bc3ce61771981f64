package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKey is the key the preference set is stored under.
const redisKey = "gridpulse:prefs"

// redisTimeout bounds each Redis round trip.
const redisTimeout = 3 * time.Second

// RedisStore persists preferences in Redis, for deployments where the
// dashboard backend has no stable local disk.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store backed by the Redis instance at addr.
func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Load reads the persisted preferences. An absent key returns ok=false.
func (r *RedisStore) Load() (Preferences, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, redisKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Preferences{}, false, nil
		}
		return Preferences{}, false, fmt.Errorf("reading preferences from redis: %w", err)
	}

	var p Preferences
	if err := json.Unmarshal(data, &p); err != nil {
		return Preferences{}, false, fmt.Errorf("parsing preferences from redis: %w", err)
	}
	return p, true, nil
}

// Save writes the preferences without expiration.
func (r *RedisStore) Save(p Preferences) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	if err := r.client.Set(ctx, redisKey, data, 0).Err(); err != nil {
		return fmt.Errorf("writing preferences to redis: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
