package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	ErrCacheDown = errors.New("cache unavailable")
)

// RedisCache stores JSON values under a common key prefix.
type RedisCache struct {
	client  *redis.Client
	prefix  string
	breaker *CircuitBreaker

	hits     atomic.Uint64
	misses   atomic.Uint64
	sets     atomic.Uint64
	deletes  atomic.Uint64
	failures atomic.Uint64
}

type CacheConfig struct {
	Addr         string
	Password     string
	DB           int
	Prefix       string
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Breaker      *CircuitBreakerConfig
}

type StatsSnapshot struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Sets      uint64  `json:"sets"`
	Deletes   uint64  `json:"deletes"`
	Errors    uint64  `json:"errors"`
	HitRate   float64 `json:"hit_rate"`
	TotalGets uint64  `json:"total_gets"`
	Breaker   string  `json:"breaker"`
}

func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		Prefix:       "devlab:",
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func NewRedisCache(config *CacheConfig) *RedisCache {
	if config == nil {
		config = DefaultCacheConfig()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	return &RedisCache{
		client:  rdb,
		prefix:  config.Prefix,
		breaker: NewCircuitBreaker(config.Breaker),
	}
}

// guard runs fn through the circuit breaker. Misses do not count as failures.
func (r *RedisCache) guard(fn func() error) error {
	var miss bool
	err := r.breaker.Execute(func() error {
		err := fn()
		if errors.Is(err, redis.Nil) {
			miss = true
			return nil
		}
		return err
	})
	switch {
	case errors.Is(err, ErrCircuitBreakerOpen):
		return ErrCacheDown
	case err != nil:
		r.failures.Add(1)
		return err
	case miss:
		return redis.Nil
	}
	return nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		r.failures.Add(1)
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	err = r.guard(func() error {
		return r.client.Set(ctx, r.prefix+key, data, expiration).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}

	r.sets.Add(1)
	return nil
}

// Get decodes the value under key into dest. A missing key yields ErrCacheMiss.
func (r *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	var data []byte
	err := r.guard(func() error {
		var err error
		data, err = r.client.Get(ctx, r.prefix+key).Bytes()
		return err
	})
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.misses.Add(1)
			return ErrCacheMiss
		}
		return fmt.Errorf("failed to get from cache: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		r.failures.Add(1)
		return fmt.Errorf("failed to unmarshal cached data: %w", err)
	}

	r.hits.Add(1)
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = r.prefix + key
	}

	var removed int64
	err := r.guard(func() error {
		var err error
		removed, err = r.client.Del(ctx, full...).Result()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete from cache: %w", err)
	}

	r.deletes.Add(uint64(removed))
	return nil
}

// DeletePattern removes every key matching pattern using SCAN so the server
// is never blocked by KEYS.
func (r *RedisCache) DeletePattern(ctx context.Context, pattern string) error {
	fullPattern := r.prefix + pattern

	var cursor uint64
	for {
		var keys []string
		err := r.guard(func() error {
			var err error
			keys, cursor, err = r.client.Scan(ctx, cursor, fullPattern, 100).Result()
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to scan keys for pattern %s: %w", pattern, err)
		}

		if len(keys) > 0 {
			var removed int64
			err := r.guard(func() error {
				var err error
				removed, err = r.client.Del(ctx, keys...).Result()
				return err
			})
			if err != nil {
				return fmt.Errorf("failed to delete keys for pattern %s: %w", pattern, err)
			}
			r.deletes.Add(uint64(removed))
		}

		if cursor == 0 {
			return nil
		}
	}
}

// Generation returns the counter stored under key, zero when it is absent.
func (r *RedisCache) Generation(ctx context.Context, key string) (int64, error) {
	var gen int64
	err := r.guard(func() error {
		var err error
		gen, err = r.client.Get(ctx, r.prefix+key).Int64()
		return err
	})
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read generation %s: %w", key, err)
	}
	return gen, nil
}

// Bump atomically increments the counter under key and keeps it for ttl.
// It returns the new value.
func (r *RedisCache) Bump(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	err := r.guard(func() error {
		_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, r.prefix+key)
			if ttl > 0 {
				pipe.Expire(ctx, r.prefix+key, ttl)
			}
			return nil
		})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to bump generation %s: %w", key, err)
	}
	return incr.Val(), nil
}

func (r *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	var n int64
	err := r.guard(func() error {
		var err error
		n, err = r.client.Exists(ctx, r.prefix+key).Result()
		return err
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisCache) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Stats() StatsSnapshot {
	hits := r.hits.Load()
	misses := r.misses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	return StatsSnapshot{
		Hits:      hits,
		Misses:    misses,
		Sets:      r.sets.Load(),
		Deletes:   r.deletes.Load(),
		Errors:    r.failures.Load(),
		HitRate:   hitRate,
		TotalGets: total,
		Breaker:   r.breaker.GetState().String(),
	}
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
