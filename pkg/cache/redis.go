package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis client.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RedisStore is a distributed implementation of Store using Redis.
// Each entry is kept as a JSON envelope carrying its own StoredAt, and the
// Redis key TTL is set to the entry TTL plus the stale retention window, or
// left unset when retention is KeepForever.
type RedisStore struct {
	redisClient redis.UniversalClient
	logger      zerolog.Logger
	retention   time.Duration
	now         Clock
}

// NewRedisStore creates and connects a new RedisStore.
// It pings the Redis server to ensure connectivity before returning.
func NewRedisStore(
	ctx context.Context,
	cfg *RedisConfig,
	retention time.Duration,
	logger zerolog.Logger,
) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis.")

	return NewRedisStoreFromClient(rdb, retention, logger)
}

// NewRedisStoreFromClient wraps an existing client. The store takes ownership
// and closes the client on Close.
func NewRedisStoreFromClient(client redis.UniversalClient, retention time.Duration, logger zerolog.Logger) (*RedisStore, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return &RedisStore{
		redisClient: client,
		logger:      logger.With().Str("component", "RedisStore").Logger(),
		retention:   retention,
		now:         time.Now,
	}, nil
}

// Get retrieves an unexpired entry.
func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	e, ok, err := s.GetStale(ctx, key)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	if e.IsExpired(s.now()) {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// GetStale retrieves an entry that Redis still holds, ignoring logical expiry.
func (s *RedisStore) GetStale(ctx context.Context, key string) (Entry, bool, error) {
	if err := ValidateKey(key); err != nil {
		return Entry{}, false, err
	}

	data, err := s.redisClient.Get(ctx, key).Bytes()
	if err != nil {
		// A redis.Nil error is a normal cache miss.
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		s.logger.Error().Err(err).Str("key", key).Msg("Unexpected Redis error during fetch.")
		return Entry{}, false, fmt.Errorf("redis get failed for key %s: %w", key, err)
	}

	e, err := unmarshalEntry(data)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to unmarshal cached data.")
		return Entry{}, false, fmt.Errorf("failed to unmarshal data for key %s: %w", key, err)
	}

	s.logger.Debug().Str("key", key).Msg("Redis cache hit.")
	return e, true, nil
}

// Set stores the entry envelope with a Redis TTL of ttl plus retention.
// A zero expiration tells Redis to keep the key.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	data, err := marshalEntry(Entry{Value: value, StoredAt: s.now(), TTL: ttl})
	if err != nil {
		return fmt.Errorf("failed to marshal data for key %s: %w", key, err)
	}

	expiration := ttl + s.retention
	if s.retention <= KeepForever {
		expiration = 0
	}
	if err := s.redisClient.Set(ctx, key, data, expiration).Err(); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to set data in Redis cache.")
		return fmt.Errorf("failed to set in redis for key %s: %w", key, err)
	}

	s.logger.Debug().Str("key", key).Msg("Successfully stored data in Redis cache.")
	return nil
}

// Delete removes a key from Redis.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := s.redisClient.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del failed for key %s: %w", key, err)
	}
	return nil
}

// GetTimestamp returns when an unexpired entry was stored.
func (s *RedisStore) GetTimestamp(ctx context.Context, key string) (time.Time, bool, error) {
	e, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return e.StoredAt, true, nil
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	if s.redisClient != nil {
		s.logger.Info().Msg("Closing Redis client connection...")
		return s.redisClient.Close()
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
