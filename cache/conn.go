package cache

import (
	"context"
	"time"

	"github.com/dualtier/dtman/config"
	"github.com/dualtier/dtman/model"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrKeyMiss reports a missing key, which is not a failure for
	// breaker accounting.
	ErrKeyMiss = errors.New("cache key miss")

	ErrCacheUnavailable = errors.New("cache tier unavailable")
	ErrBreakerOpen      = errors.New("circuit breaker is open")
)

// Conn is one live connection to a cache endpoint.
type Conn interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key, field, value string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key, field string) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// ConnFactory dials an endpoint. Swappable so tests can inject fakes.
type ConnFactory func(ep *model.Endpoint, cfg *config.CacheConfig) Conn

type redisConn struct {
	client redis.UniversalClient
}

// newRedisConn dials one endpoint. In cluster mode the endpoint is a seed
// node and go-redis discovers the rest of the topology from it.
func newRedisConn(ep *model.Endpoint, cfg *config.CacheConfig) Conn {
	if cfg.ClusterMode {
		return &redisConn{client: redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        []string{ep.Addr()},
			Password:     ep.Password,
			DialTimeout:  time.Duration(cfg.ConnectTimeout) * time.Millisecond,
			ReadTimeout:  time.Duration(cfg.CommandTimeout) * time.Millisecond,
			WriteTimeout: time.Duration(cfg.CommandTimeout) * time.Millisecond,
			PoolSize:     10,
		})}
	}
	return &redisConn{client: redis.NewClient(&redis.Options{
		Addr:         ep.Addr(),
		Password:     ep.Password,
		DialTimeout:  time.Duration(cfg.ConnectTimeout) * time.Millisecond,
		ReadTimeout:  time.Duration(cfg.CommandTimeout) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.CommandTimeout) * time.Millisecond,
		PoolSize:     10,
	})}
}

func (rc *redisConn) Get(ctx context.Context, key string) (string, error) {
	val, err := rc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrKeyMiss
	}
	return val, err
}

func (rc *redisConn) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return rc.client.Set(ctx, key, value, ttl).Err()
}

func (rc *redisConn) HGet(ctx context.Context, key, field string) (string, error) {
	val, err := rc.client.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", ErrKeyMiss
	}
	return val, err
}

func (rc *redisConn) HSet(ctx context.Context, key, field, value string) error {
	return rc.client.HSet(ctx, key, field, value).Err()
}

func (rc *redisConn) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return rc.client.HGetAll(ctx, key).Result()
}

func (rc *redisConn) HDel(ctx context.Context, key, field string) error {
	return rc.client.HDel(ctx, key, field).Err()
}

func (rc *redisConn) Del(ctx context.Context, key string) error {
	return rc.client.Del(ctx, key).Err()
}

func (rc *redisConn) Exists(ctx context.Context, key string) (bool, error) {
	n, err := rc.client.Exists(ctx, key).Result()
	return n > 0, err
}

func (rc *redisConn) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

func (rc *redisConn) Close() error {
	return rc.client.Close()
}
