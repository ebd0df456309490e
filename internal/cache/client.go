// Package cache implements the cache-aside read layer. Every call into the
// remote store goes through a circuit breaker and a short per-operation
// timeout; any cache failure falls back to the loader, so correctness never
// depends on the cache being up.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/eapache/go-resiliency/breaker"

	"github.com/vogiaan1904/ticketbottle-allocation/config"
	"github.com/vogiaan1904/ticketbottle-allocation/pkg/logger"
)

type Client struct {
	store     Store
	brk       *breaker.Breaker
	opTimeout time.Duration
	l         logger.Logger
}

func NewClient(store Store, cfg config.CacheConfig, l logger.Logger) *Client {
	return &Client{
		store:     store,
		brk:       breaker.New(cfg.BreakerMaxFailures, 1, cfg.BreakerResetTimeout),
		opTimeout: cfg.OpTimeout,
		l:         l,
	}
}

// Lookup implements cache-aside for a single key: read through the breaker,
// fall back to loader on miss or any cache trouble, then write back best
// effort. Loader errors are the only errors the caller ever sees.
func Lookup[T any](ctx context.Context, c *Client, key string, ttl time.Duration, loader func(context.Context) (T, error)) (T, error) {
	if data, ok := c.get(ctx, key); ok {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			return v, nil
		}
		c.l.Warn("Discarding undecodable cache entry", "key", key)
	}

	v, err := loader(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	c.set(ctx, key, v, ttl)
	return v, nil
}

// Invalidate drops a key, best effort. Used after ledger mutations that
// change availability.
func (c *Client) Invalidate(ctx context.Context, key string) {
	err := c.brk.Run(func() error {
		opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
		defer cancel()
		return c.store.Del(opCtx, key)
	})
	if err != nil {
		c.logCacheError("invalidate", key, err)
	}
}

func (c *Client) get(ctx context.Context, key string) ([]byte, bool) {
	var data []byte
	var found bool

	err := c.brk.Run(func() error {
		opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
		defer cancel()

		b, err := c.store.Get(opCtx, key)
		if err != nil {
			if errors.Is(err, ErrCacheMiss) {
				return nil
			}
			return err
		}

		data = b
		found = true
		return nil
	})
	if err != nil {
		c.logCacheError("get", key, err)
		return nil, false
	}

	return data, found
}

func (c *Client) set(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		c.l.Error("Failed to marshal cache value", "key", key, "error", err)
		return
	}

	err = c.brk.Run(func() error {
		opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
		defer cancel()
		return c.store.Set(opCtx, key, data, ttl)
	})
	if err != nil {
		c.logCacheError("set", key, err)
	}
}

func (c *Client) logCacheError(op, key string, err error) {
	if errors.Is(err, breaker.ErrBreakerOpen) {
		c.l.Debug("Cache breaker open, bypassing cache", "op", op, "key", key)
		return
	}
	c.l.Warn("Cache operation failed", "op", op, "key", key, "error", err)
}
