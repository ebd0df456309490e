package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is internal to the cache layer; callers of Lookup never see
// it. A miss is not a failure and does not trip the breaker.
var ErrCacheMiss = errors.New("cache miss")

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

type redisStore struct {
	cli *redis.Client
}

func NewRedisStore(cli *redis.Client) Store {
	return &redisStore{cli: cli}
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.cli.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return data, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.cli.Set(ctx, key, value, ttl).Err()
}

func (s *redisStore) Del(ctx context.Context, key string) error {
	return s.cli.Del(ctx, key).Err()
}
