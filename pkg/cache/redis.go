package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brightdesk/crm-backend/pkg/config"
	"github.com/brightdesk/crm-backend/pkg/logger"
)

// ErrMiss is returned when a key is absent from the shared cache.
var ErrMiss = errors.New("cache miss")

// Redis wraps the Redis client with JSON helpers
type Redis struct {
	rdb    *redis.Client
	logger *logger.Logger
}

// NewRedis connects to Redis and verifies the connection
func NewRedis(cfg *config.RedisConfig, log *logger.Logger) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	log.Info().Str("addr", cfg.Addr).Msg("connected to Redis")

	return &Redis{rdb: rdb, logger: log}, nil
}

// Close closes the Redis connection
func (r *Redis) Close() error {
	return r.rdb.Close()
}

// Health returns the health status of Redis
func (r *Redis) Health(ctx context.Context) map[string]string {
	status := map[string]string{"status": "up"}
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		status["status"] = "down"
		status["error"] = err.Error()
	}
	return status
}

// GetJSON decodes the value at key into v. Returns ErrMiss when absent.
func (r *Redis) GetJSON(ctx context.Context, key string, v any) error {
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("redis decode %s: %w", key, err)
	}
	return nil
}

// SetJSON stores v at key with the given expiration
func (r *Redis) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis encode %s: %w", key, err)
	}
	if err := r.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
