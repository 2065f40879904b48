package resultx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix is the namespace Celery-compatible producers store task
// outcomes under.
const DefaultKeyPrefix = "celery-task-meta-"

// Store is key-value access to stored task outcomes, keyed by task id.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put writes payload under taskID, replacing any previous value.
	Put(ctx context.Context, taskID string, payload []byte) error
	// Get returns the stored payload and true, or false if nothing is stored.
	Get(ctx context.Context, taskID string) ([]byte, bool, error)
	// Delete removes the value stored under taskID, if any.
	Delete(ctx context.Context, taskID string) error
}

// StoreConfig locates the result store. Addr is either host:port or a
// redis:// URL; URL credentials and database win over Password and DB.
type StoreConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// Expires is the TTL set on every written value; zero keeps values forever.
	Expires time.Duration
}

// RedisOptions converts the config to go-redis client options.
func (c StoreConfig) RedisOptions() (*redis.Options, error) {
	if strings.Contains(c.Addr, "://") {
		opts, err := redis.ParseURL(c.Addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opts, nil
	}
	addr := c.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	return &redis.Options{Addr: addr, Password: c.Password, DB: c.DB}, nil
}

// RedisStore is a Store backed by Redis strings.
type RedisStore struct {
	client  redis.UniversalClient
	prefix  string
	expires time.Duration
}

// NewRedisStore connects a RedisStore from cfg. The connection is lazy: an
// unreachable server surfaces on the first operation.
func NewRedisStore(cfg StoreConfig) (*RedisStore, error) {
	opts, err := cfg.RedisOptions()
	if err != nil {
		return nil, err
	}
	return NewRedisStoreFromClient(redis.NewClient(opts), cfg.KeyPrefix, cfg.Expires), nil
}

// NewRedisStoreFromClient wraps an existing client. An empty prefix means
// DefaultKeyPrefix.
func NewRedisStoreFromClient(client redis.UniversalClient, prefix string, expires time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix, expires: expires}
}

// Key returns the Redis key a task's outcome is stored under.
func (s *RedisStore) Key(taskID string) string {
	return s.prefix + taskID
}

func (s *RedisStore) Put(ctx context.Context, taskID string, payload []byte) error {
	if err := s.client.Set(ctx, s.Key(taskID), payload, s.expires).Err(); err != nil {
		return newError(ErrCodeBackendUnavailable, taskID, err, "redis set")
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, taskID string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.Key(taskID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, newError(ErrCodeBackendUnavailable, taskID, err, "redis get")
	}
	return data, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, taskID string) error {
	if err := s.client.Del(ctx, s.Key(taskID)).Err(); err != nil {
		return newError(ErrCodeBackendUnavailable, taskID, err, "redis del")
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
