package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mimic/internal/config"
)

// RedisClient is the subset of the go-redis client the store needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisStore keeps each document as a string value under prefix+key.
type RedisStore struct {
	client RedisClient
	prefix string
	log    *zap.Logger
}

// OpenRedis dials the configured redis server.
func OpenRedis(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	s, err := NewRedisStore(ctx, client, cfg.KeyPrefix, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

// NewRedisStore verifies the client can reach the server.
func NewRedisStore(ctx context.Context, client RedisClient, prefix string, logger *zap.Logger) (*RedisStore, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisStore{client: client, prefix: prefix, log: logger.Named("store.redis")}, nil
}

// Load reads the document stored under key.
func (s *RedisStore) Load(ctx context.Context, key string, v interface{}) error {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("%w: get %q: %w", ErrPersistence, key, err)
	}
	return decode(key, data, v)
}

// Save stores the document under key without expiry.
func (s *RedisStore) Save(ctx context.Context, key string, v interface{}) error {
	data, err := encode(key, v)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.prefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("%w: set %q: %w", ErrPersistence, key, err)
	}
	s.log.Debug("Document saved.", zap.String("key", s.prefix+key), zap.Int("bytes", len(data)))
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
