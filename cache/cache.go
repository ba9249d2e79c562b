package cache

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Cache is a keyed store of values with a per-entry TTL.
type Cache interface {
	// Get returns the value stored under key. Expired entries are reported as
	// not found.
	Get(ctx context.Context, key string) (bool, any, error)
	// Set stores val under key. If expires <= 0 the configured default TTL is used.
	Set(ctx context.Context, key string, val any, expires time.Duration) error
	// Delete removes key and reports whether it was present.
	Delete(ctx context.Context, key string) (bool, error)
	// Close stops background work and releases the backend.
	Close() error
}

// ErrDecode is returned by Get when a serialized value cannot be decoded into
// the requested type.
var ErrDecode = errors.New("cache: cannot decode value")

// Get retrieves a typed value. In-memory values are type asserted, serialized
// values ([]byte from Redis or SQLite) are decoded with msgpack.
func Get[T any](ctx context.Context, c Cache, key string) (bool, T, error) {
	var zero T
	found, val, err := c.Get(ctx, key)
	if !found || err != nil {
		return false, zero, err
	}
	if typed, ok := val.(T); ok {
		return true, typed, nil
	}
	if data, ok := val.([]byte); ok {
		var result T
		if err := msgpack.Unmarshal(data, &result); err != nil {
			return false, zero, errors.Mark(errors.Wrapf(err, "cache: key %q", key), ErrDecode)
		}
		return true, result, nil
	}
	return false, zero, errors.Mark(errors.Newf("cache: key %q holds %T, not %T", key, val, zero), ErrDecode)
}

// DefaultExpires is the TTL used when Set is called without one.
const DefaultExpires = 5 * time.Minute

// DefaultQueryTimeout bounds a single Redis or SQLite operation.
const DefaultQueryTimeout = 5 * time.Second

type config struct {
	defaultExpires time.Duration
	queryTimeout   time.Duration
	expiryCheck    time.Duration
	prefix         string
}

// Option configures a Cache implementation.
type Option func(*config)

func applyOptions(opts []Option) config {
	cfg := config{
		defaultExpires: DefaultExpires,
		queryTimeout:   DefaultQueryTimeout,
		expiryCheck:    time.Minute,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithExpires sets the default TTL.
func WithExpires(d time.Duration) Option {
	return func(c *config) { c.defaultExpires = d }
}

// WithQueryTimeout sets the per-operation timeout for Redis and SQLite.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *config) { c.queryTimeout = d }
}

// WithExpiryCheck sets how often InMemory and SQLite sweep expired entries.
func WithExpiryCheck(d time.Duration) Option {
	return func(c *config) { c.expiryCheck = d }
}

// WithPrefix namespaces keys. Applies to Redis and SQLite.
func WithPrefix(p string) Option {
	return func(c *config) { c.prefix = p }
}

func (c config) key(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

// CacheConfig configures Exec.
type CacheConfig struct {
	// Key is the cache key. Required.
	Key string
	// Expires is the TTL for the produced value. Zero uses the cache default.
	Expires time.Duration
}

// Invoker produces a value on a cache miss. Returning found=false skips
// caching so absent records are looked up again next time.
type Invoker[T any] func(ctx context.Context) (T, bool, error)

// Exec is a read-through helper: a hit is returned as is, a miss calls invoke
// and caches what it found. Cache read errors and invoker errors are returned;
// a failed Set after a successful invoke is ignored.
func Exec[T any](ctx context.Context, cfg CacheConfig, c Cache, invoke Invoker[T]) (bool, T, error) {
	var zero T
	found, val, err := Get[T](ctx, c, cfg.Key)
	if err != nil {
		return false, zero, err
	}
	if found {
		return true, val, nil
	}
	result, ok, err := invoke(ctx)
	if err != nil {
		return false, zero, err
	}
	if !ok {
		return false, zero, nil
	}
	_ = c.Set(ctx, cfg.Key, result, cfg.Expires)
	return true, result, nil
}
