package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AlibekovAA/user-directory/backend/internal/common/constants"
	"github.com/AlibekovAA/user-directory/backend/internal/common/logger"
	"github.com/AlibekovAA/user-directory/backend/internal/common/resilience"
	"github.com/AlibekovAA/user-directory/backend/internal/observability/metrics"
	"github.com/AlibekovAA/user-directory/backend/internal/user/domain"
)

type RedisConfig struct {
	Enabled       bool
	Retention     time.Duration
	Timeout       time.Duration
	RetryAttempts int
	RetryBase     time.Duration
	KeyPrefix     string
}

type RedisCache struct {
	client redis.Cmdable
	cfg    RedisConfig
	retry  resilience.RetryPolicy
	log    *logger.Logger
}

func NewRedisCache(client redis.Cmdable, cfg RedisConfig, log *logger.Logger) *RedisCache {
	if cfg.Retention <= 0 {
		cfg.Retention = constants.DefaultCacheRetention
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = constants.DefaultCacheRetryBase
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = constants.CacheKeyPrefix
	}

	return &RedisCache{
		client: client,
		cfg:    cfg,
		retry:  resilience.FibonacciPolicy(cfg.RetryAttempts, cfg.RetryBase),
		log:    log,
	}
}

func (c *RedisCache) key(username string) string {
	return c.cfg.KeyPrefix + username
}

func (c *RedisCache) do(ctx context.Context, operation string, fn func(context.Context) error) error {
	start := time.Now()
	err := resilience.WithRetry(ctx, c.retry, func(ctx context.Context) error {
		return resilience.WithTimeout(ctx, c.cfg.Timeout, fn)
	})
	metrics.CacheOperationDurationSeconds.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	return err
}

func (c *RedisCache) Persist(ctx context.Context, entry domain.CacheEntry) bool {
	if !c.cfg.Enabled {
		metrics.CacheOperationsTotal.WithLabelValues("persist", "disabled").Inc()
		return true
	}

	data, err := entry.Marshal()
	if err != nil {
		c.log.WithFields(ctx, logger.Fields{
			"username": entry.Username,
			"action":   "cache_persist_encode_failed",
		}).Errorf("cache persist failed: %v", err)
		metrics.CacheOperationsTotal.WithLabelValues("persist", "error").Inc()
		return true
	}

	err = c.do(ctx, "persist", func(ctx context.Context) error {
		return c.client.Set(ctx, c.key(entry.Username), data, c.cfg.Retention).Err()
	})
	if err != nil {
		c.log.WithFields(ctx, logger.Fields{
			"username": entry.Username,
			"action":   "cache_persist_failed",
		}).Warnf("cache persist degraded: %v", err)
		metrics.CacheOperationsTotal.WithLabelValues("persist", "error").Inc()
		return true
	}

	metrics.CacheOperationsTotal.WithLabelValues("persist", "ok").Inc()
	return true
}

func (c *RedisCache) Find(ctx context.Context, username string) (domain.CacheEntry, bool) {
	if !c.cfg.Enabled {
		metrics.CacheOperationsTotal.WithLabelValues("find", "disabled").Inc()
		return domain.CacheEntry{}, false
	}

	var data []byte
	err := c.do(ctx, "find", func(ctx context.Context) error {
		value, err := c.client.Get(ctx, c.key(username)).Bytes()
		if errors.Is(err, redis.Nil) {
			return resilience.Permanent(err)
		}
		data = value
		return err
	})
	if errors.Is(err, redis.Nil) {
		metrics.CacheOperationsTotal.WithLabelValues("find", "miss").Inc()
		return domain.CacheEntry{}, false
	}
	if err != nil {
		c.log.WithFields(ctx, logger.Fields{
			"username": username,
			"action":   "cache_find_failed",
		}).Warnf("cache find degraded to miss: %v", err)
		metrics.CacheOperationsTotal.WithLabelValues("find", "error").Inc()
		return domain.CacheEntry{}, false
	}

	entry, err := domain.UnmarshalCacheEntry(data)
	if err != nil {
		c.log.WithFields(ctx, logger.Fields{
			"username": username,
			"action":   "cache_find_decode_failed",
		}).Warnf("cache entry is corrupt: %v", err)
		metrics.CacheOperationsTotal.WithLabelValues("find", "error").Inc()
		return domain.CacheEntry{}, false
	}

	metrics.CacheOperationsTotal.WithLabelValues("find", "hit").Inc()
	return entry, true
}

func (c *RedisCache) Remove(ctx context.Context, username string) bool {
	if !c.cfg.Enabled {
		metrics.CacheOperationsTotal.WithLabelValues("remove", "disabled").Inc()
		return true
	}

	err := c.do(ctx, "remove", func(ctx context.Context) error {
		return c.client.Del(ctx, c.key(username)).Err()
	})
	if err != nil {
		c.log.WithFields(ctx, logger.Fields{
			"username": username,
			"action":   "cache_remove_failed",
		}).Warnf("cache remove degraded: %v", err)
		metrics.CacheOperationsTotal.WithLabelValues("remove", "error").Inc()
		return true
	}

	metrics.CacheOperationsTotal.WithLabelValues("remove", "ok").Inc()
	return true
}
