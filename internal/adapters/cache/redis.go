package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/manthysbr/aule-weather/internal/core/domain"
	"github.com/manthysbr/aule-weather/internal/core/ports"
)

var _ ports.WeatherCache = (*RedisCache)(nil)

// RedisCache stores weather reports as JSON strings with a TTL.
type RedisCache struct {
	cli *redis.Client
}

func NewRedisCache(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	c := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisCache{cli: c}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (domain.WeatherReport, error) {
	val, err := c.cli.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.WeatherReport{}, domain.ErrCacheMiss
	}
	if err != nil {
		return domain.WeatherReport{}, err
	}
	var report domain.WeatherReport
	if err := json.Unmarshal(val, &report); err != nil {
		// a corrupt entry behaves like a miss and is overwritten on the next Set
		return domain.WeatherReport{}, domain.ErrCacheMiss
	}
	return report, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, report domain.WeatherReport, ttl time.Duration) error {
	b, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return c.cli.Set(ctx, key, b, ttl).Err()
}

func (c *RedisCache) Close() error { return c.cli.Close() }
