package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/agentuity/storefront/logger"
	"github.com/agentuity/storefront/menu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMirrorAppliesInOrder(t *testing.T) {
	remote := newFakeStore()
	m := NewMirror(logger.NewTestLogger(), remote, fastRetry())
	ctx := context.Background()

	m.Enqueue(*upsertItem(menu.Item{ID: 1, Name: "Tea", Quantity: 3}))
	m.Enqueue(*upsertItem(menu.Item{ID: 1, Name: "Tea", Quantity: 2}))
	m.Enqueue(Task{Kind: KindCategories, Op: OpDelete, ID: 4})
	queued := m.Queued()
	require.Len(t, queued, 3)
	assert.Equal(t, uint64(1), queued[0].Seq)
	assert.Equal(t, "upsert items/1", queued[0].String())

	assert.Equal(t, 0, m.Drain(ctx))
	require.Len(t, remote.items, 1)
	assert.Equal(t, 2, remote.items[0].Quantity)
	assert.Equal(t, 1, remote.count("DeleteCategory"))
	assert.Empty(t, m.Queued())
}

func TestMirrorSkipsSupersededRequeuedTask(t *testing.T) {
	remote := newFakeStore()
	m := NewMirror(logger.NewTestLogger(), remote, fastRetry())
	ctx := context.Background()

	remote.setFail(false, true)
	m.Enqueue(*upsertItem(menu.Item{ID: 1, Name: "Tea"}))
	assert.Equal(t, 1, m.Drain(ctx))

	remote.setFail(false, false)
	m.Enqueue(Task{Kind: KindItems, Op: OpDelete, ID: 1})
	m.Drain(ctx)
	assert.Equal(t, 1, remote.count("DeleteItem"))

	assert.Equal(t, 1, m.Requeue())
	assert.Equal(t, 0, m.Drain(ctx))
	assert.Empty(t, remote.items, "the older upsert must not resurrect the deleted item")
}

func TestMirrorParksMalformedTaskAsPermanent(t *testing.T) {
	m := NewMirror(logger.NewTestLogger(), newFakeStore(), fastRetry())
	m.Enqueue(Task{Kind: KindItems, Op: OpUpsert, ID: 3})
	assert.Equal(t, 1, m.Drain(context.Background()))
	failed := m.Failed()
	require.Len(t, failed, 1)
	assert.False(t, failed[0].Transient)
	assert.Contains(t, failed[0].Err, "malformed task")
	assert.True(t, m.Pending(KindItems))
	assert.False(t, m.Pending(KindCategories))

	assert.Equal(t, 0, m.Discard(KindCategories))
	assert.Equal(t, 1, m.Discard(KindItems))
	assert.False(t, m.Pending(KindItems))
}

func TestMirrorRunProcessesAndRetriesTransientFailures(t *testing.T) {
	remote := newFakeStore()
	remote.setFail(false, true)
	m := NewMirror(logger.NewTestLogger(), remote, fastRetry())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, 20*time.Millisecond) }()

	m.Enqueue(*upsertCategory(menu.Category{ID: 1, Name: "All", Slug: "all"}))
	require.Eventually(t, func() bool { return len(m.Failed()) == 1 }, time.Second, 5*time.Millisecond)

	remote.setFail(false, false)
	require.Eventually(t, func() bool { return !m.Pending(KindCategories) }, time.Second, 5*time.Millisecond)
	remote.mu.Lock()
	assert.Len(t, remote.categories, 1)
	remote.mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("mirror did not stop")
	}
}

func TestMirrorKeepsTaskQueuedOnCancel(t *testing.T) {
	remote := newFakeStore()
	m := NewMirror(logger.NewTestLogger(), remote, fastRetry())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m.Enqueue(*upsertItem(menu.Item{ID: 1, Name: "Tea"}))
	assert.Equal(t, 0, m.Drain(ctx))
	assert.Len(t, m.Queued(), 1)
}
