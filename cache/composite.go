package cache

import (
	"context"
	"time"
)

type compositeCache struct {
	caches []Cache
}

var _ Cache = (*compositeCache)(nil)

// NewComposite chains caches: Get returns the first hit in order, Set and
// Delete apply to every tier. It panics without at least one cache.
func NewComposite(caches ...Cache) Cache {
	if len(caches) == 0 {
		panic("cache: NewComposite requires at least one cache")
	}
	return &compositeCache{caches: caches}
}

func (c *compositeCache) Get(ctx context.Context, key string) (bool, any, error) {
	for _, tier := range c.caches {
		found, val, err := tier.Get(ctx, key)
		if err != nil {
			return false, nil, err
		}
		if found {
			return true, val, nil
		}
	}
	return false, nil, nil
}

func (c *compositeCache) Set(ctx context.Context, key string, val any, expires time.Duration) error {
	var firstErr error
	for _, tier := range c.caches {
		if err := tier.Set(ctx, key, val, expires); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *compositeCache) Delete(ctx context.Context, key string) (bool, error) {
	anyFound := false
	for _, tier := range c.caches {
		found, err := tier.Delete(ctx, key)
		if err != nil {
			return anyFound, err
		}
		anyFound = anyFound || found
	}
	return anyFound, nil
}

func (c *compositeCache) Close() error {
	var firstErr error
	for _, tier := range c.caches {
		if err := tier.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
