package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	object  any
	expires time.Time
}

type inMemoryCache struct {
	ctx       context.Context
	cancel    context.CancelFunc
	entries   map[string]entry
	mutex     sync.Mutex
	waitGroup sync.WaitGroup
	once      sync.Once
	cfg       config
	now       func() time.Time
}

var _ Cache = (*inMemoryCache)(nil)

func (c *inMemoryCache) Get(_ context.Context, key string) (bool, any, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	val, ok := c.entries[key]
	if !ok {
		return false, nil, nil
	}
	if !val.expires.After(c.now()) {
		delete(c.entries, key)
		return false, nil, nil
	}
	return true, val.object, nil
}

func (c *inMemoryCache) Set(_ context.Context, key string, val any, expires time.Duration) error {
	if expires <= 0 {
		expires = c.cfg.defaultExpires
	}
	c.mutex.Lock()
	c.entries[key] = entry{object: val, expires: c.now().Add(expires)}
	c.mutex.Unlock()
	return nil
}

func (c *inMemoryCache) Delete(_ context.Context, key string) (bool, error) {
	c.mutex.Lock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	c.mutex.Unlock()
	return ok, nil
}

func (c *inMemoryCache) Close() error {
	c.once.Do(func() {
		c.cancel()
		c.waitGroup.Wait()
	})
	return nil
}

func (c *inMemoryCache) sweep() {
	now := c.now()
	c.mutex.Lock()
	for key, val := range c.entries {
		if !val.expires.After(now) {
			delete(c.entries, key)
		}
	}
	c.mutex.Unlock()
}

func (c *inMemoryCache) run() {
	defer c.waitGroup.Done()
	ticker := time.NewTicker(c.cfg.expiryCheck)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// NewInMemory returns a Cache held in process memory. Values are stored as is,
// so callers must not mutate what they Set.
func NewInMemory(parent context.Context, opts ...Option) Cache {
	ctx, cancel := context.WithCancel(parent)
	c := &inMemoryCache{
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]entry),
		cfg:     applyOptions(opts),
		now:     time.Now,
	}
	c.waitGroup.Add(1)
	go c.run()
	return c
}
