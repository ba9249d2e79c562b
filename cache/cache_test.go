package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineItem struct {
	ID  string `msgpack:"id"`
	Qty int    `msgpack:"qty"`
}

func TestInMemorySetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory(ctx)
	defer c.Close()

	found, val, err := c.Get(ctx, "missing")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)

	require.NoError(t, c.Set(ctx, "key", "value", time.Minute))
	ok, str, err := Get[string](ctx, c, "key")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "value", str)

	deleted, err := c.Delete(ctx, "key")
	assert.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = c.Delete(ctx, "key")
	assert.NoError(t, err)
	assert.False(t, deleted)
}

func TestInMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory(ctx, WithExpires(time.Second)).(*inMemoryCache)
	defer c.Close()
	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "key", 1, 0))
	found, _, _ := c.Get(ctx, "key")
	assert.True(t, found)

	now = now.Add(2 * time.Second)
	found, _, _ = c.Get(ctx, "key")
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "other", 1, time.Millisecond))
	now = now.Add(time.Second)
	c.sweep()
	c.mutex.Lock()
	assert.Empty(t, c.entries)
	c.mutex.Unlock()
}

func TestGetWrongType(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory(ctx)
	defer c.Close()
	require.NoError(t, c.Set(ctx, "key", 42, time.Minute))
	found, _, err := Get[string](ctx, c, "key")
	assert.False(t, found)
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestExecCacheMissThenHit(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory(ctx)
	defer c.Close()

	calls := 0
	invoke := func(ctx context.Context) (string, bool, error) {
		calls++
		return "fresh", true, nil
	}
	for range 3 {
		found, val, err := Exec(ctx, CacheConfig{Key: "key", Expires: time.Minute}, c, invoke)
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "fresh", val)
	}
	assert.Equal(t, 1, calls)
}

func TestExecNotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory(ctx)
	defer c.Close()

	calls := 0
	for range 2 {
		found, val, err := Exec(ctx, CacheConfig{Key: "key"}, c, func(ctx context.Context) (string, bool, error) {
			calls++
			return "", false, nil
		})
		assert.NoError(t, err)
		assert.False(t, found)
		assert.Empty(t, val)
	}
	assert.Equal(t, 2, calls)
}

func TestExecInvokerError(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory(ctx)
	defer c.Close()

	expected := fmt.Errorf("invoke failed")
	found, _, err := Exec(ctx, CacheConfig{Key: "key"}, c, func(ctx context.Context) (int, bool, error) {
		return 0, false, expected
	})
	assert.False(t, found)
	assert.Equal(t, expected, err)
	found, _, _ = c.Get(ctx, "key")
	assert.False(t, found)
}

func TestCompositeReadsFirstHitAndWritesAll(t *testing.T) {
	ctx := context.Background()
	l1 := NewInMemory(ctx)
	l2, err := NewSQLite(ctx, ":memory:")
	require.NoError(t, err)
	c := NewComposite(l1, l2)
	defer c.Close()

	require.NoError(t, l2.Set(ctx, "only-l2", lineItem{ID: "7", Qty: 2}, time.Minute))
	found, item, err := Get[lineItem](ctx, c, "only-l2")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, lineItem{ID: "7", Qty: 2}, item)

	require.NoError(t, c.Set(ctx, "both", "v", time.Minute))
	found, _, _ = l1.Get(ctx, "both")
	assert.True(t, found)
	found, _, _ = l2.Get(ctx, "both")
	assert.True(t, found)

	deleted, err := c.Delete(ctx, "both")
	assert.NoError(t, err)
	assert.True(t, deleted)
	found, _, _ = l2.Get(ctx, "both")
	assert.False(t, found)
}

func TestCompositeRequiresCache(t *testing.T) {
	assert.Panics(t, func() { NewComposite() })
}
