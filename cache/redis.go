package cache

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

type redisCache struct {
	client redis.UniversalClient
	cfg    config
}

var _ Cache = (*redisCache)(nil)

// NewRedis returns a Cache backed by Redis. Values are msgpack encoded and
// expire through native Redis TTLs. The caller owns the client; Close does not
// close it.
func NewRedis(client redis.UniversalClient, opts ...Option) Cache {
	return &redisCache{client: client, cfg: applyOptions(opts)}
}

func (c *redisCache) Get(ctx context.Context, key string) (bool, any, error) {
	qctx, cancel := context.WithTimeout(ctx, c.cfg.queryTimeout)
	defer cancel()
	data, err := c.client.Get(qctx, c.cfg.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, errors.Wrap(err, "redis get")
	}
	return true, data, nil
}

func (c *redisCache) Set(ctx context.Context, key string, val any, expires time.Duration) error {
	if expires <= 0 {
		expires = c.cfg.defaultExpires
	}
	data, err := msgpack.Marshal(val)
	if err != nil {
		return errors.Wrapf(err, "encode %q", key)
	}
	qctx, cancel := context.WithTimeout(ctx, c.cfg.queryTimeout)
	defer cancel()
	return errors.Wrap(c.client.Set(qctx, c.cfg.key(key), data, expires).Err(), "redis set")
}

func (c *redisCache) Delete(ctx context.Context, key string) (bool, error) {
	qctx, cancel := context.WithTimeout(ctx, c.cfg.queryTimeout)
	defer cancel()
	n, err := c.client.Del(qctx, c.cfg.key(key)).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis del")
	}
	return n > 0, nil
}

func (c *redisCache) Close() error {
	return nil
}
