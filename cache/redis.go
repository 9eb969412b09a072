package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/isdmx/sandpool/config"
)

// redisCmdable is the slice of the go-redis client the adapter uses, split
// out so tests can substitute a scripted fake.
type redisCmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Redis implements Store over a Redis-compatible backend.
type Redis struct {
	logger     *zap.Logger
	client     redisCmdable
	opTimeout  time.Duration
	retryDelay time.Duration
}

// RedisOption defines a functional option for Redis
type RedisOption func(*Redis)

// WithRedisClient sets the underlying client, mainly for tests
func WithRedisClient(client redisCmdable) RedisOption {
	return func(r *Redis) {
		r.client = client
	}
}

// NewRedis creates a Store backed by the configured Redis endpoint
func NewRedis(log *zap.Logger, cfg *config.RedisConfig, opts ...RedisOption) (*Redis, error) {
	r := &Redis{
		logger:     log,
		opTimeout:  time.Duration(cfg.OpTimeoutSec) * time.Second,
		retryDelay: time.Duration(cfg.RetryDelayMs) * time.Millisecond,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.client == nil {
		options, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		options.PoolSize = cfg.MaxConns
		options.DialTimeout = r.opTimeout
		options.ReadTimeout = r.opTimeout
		options.WriteTimeout = r.opTimeout
		r.client = redis.NewClient(options)
	}

	return r, nil
}

// Get returns the cached value for key
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	if err := r.Ping(ctx); err != nil {
		return "", err
	}

	var value string
	err := r.withRetry(ctx, func(ctx context.Context) error {
		result, err := r.client.Get(ctx, key).Result()
		if err != nil {
			return err
		}
		value = result
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		r.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return "", ErrUnavailable
	}
	return value, nil
}

// Set writes key with the given TTL
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.Ping(ctx); err != nil {
		return err
	}

	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.client.Set(ctx, key, value, ttl).Err()
	})
	if err != nil {
		r.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		return ErrUnavailable
	}
	return nil
}

// Delete removes key
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.Ping(ctx); err != nil {
		return err
	}

	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.client.Del(ctx, key).Err()
	})
	if err != nil {
		r.logger.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
		return ErrUnavailable
	}
	return nil
}

// Ping verifies the backend is reachable
func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return ErrUnavailable
	}
	return nil
}

// Close releases backend connections
func (r *Redis) Close() error {
	return r.client.Close()
}

// withRetry runs op with the operation timeout and retries once after a short
// fixed delay. A miss (redis.Nil) is a result, not a failure, and is never
// retried.
func (r *Redis) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(r.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		opCtx, cancel := context.WithTimeout(ctx, r.opTimeout)
		err := op(opCtx)
		cancel()

		if err == nil || errors.Is(err, redis.Nil) {
			return err
		}
		lastErr = err
	}
	return lastErr
}
