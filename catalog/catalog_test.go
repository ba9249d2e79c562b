package catalog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/agentuity/storefront/logger"
	"github.com/agentuity/storefront/menu"
	"github.com/agentuity/storefront/resilience"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxRetries: 1, InitialBackoff: time.Millisecond, BackoffMultiplier: 1}
}

type harness struct {
	catalog *Catalog
	mirror  *Mirror
	remote  *fakeStore
	clock   *clock
	dir     string
	log     *logger.TestLogger
}

func newHarness(t *testing.T, remote *fakeStore, dir string) *harness {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	log := logger.NewTestLogger()
	mirror := NewMirror(log, remote, fastRetry())
	c, err := New(log, remote, mirror, Config{Dir: dir, TTL: 30 * time.Second})
	require.NoError(t, err)
	clk := &clock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	c.now = clk.now
	mirror.now = clk.now
	return &harness{catalog: c, mirror: mirror, remote: remote, clock: clk, dir: dir, log: log}
}

func price(v float64) *float64 { return &v }

func seededStore() *fakeStore {
	remote := newFakeStore()
	remote.categories = []menu.Category{{ID: 1, Name: "Drinks", Slug: "drinks"}, {ID: 2, Name: "Mains", Slug: "mains"}}
	remote.items = []menu.Item{
		{ID: 7, CategoryID: 1, Name: "Soda", Price: price(1.5), Quantity: 2},
		{ID: 8, CategoryID: 2, Name: "Burger", Price: price(9), Quantity: 5},
	}
	return remote
}

func TestReadsWithinTTLAreServedFromMemory(t *testing.T) {
	h := newHarness(t, seededStore(), "")
	ctx := context.Background()

	first := h.catalog.Items(ctx)
	h.clock.advance(29 * time.Second)
	second := h.catalog.Items(ctx)

	assert.Equal(t, first, second)
	assert.Len(t, first, 2)
	assert.Equal(t, 1, h.remote.count("ListItems"))
}

func TestStaleSnapshotRefreshesExactlyOnce(t *testing.T) {
	h := newHarness(t, seededStore(), "")
	ctx := context.Background()

	h.catalog.Categories(ctx)
	require.Equal(t, 1, h.remote.count("ListCategories"))

	h.clock.advance(31 * time.Second)
	h.catalog.Categories(ctx)
	h.catalog.Categories(ctx)
	assert.Equal(t, 2, h.remote.count("ListCategories"))
}

func TestRemoteDownWithoutFileServesDefaults(t *testing.T) {
	remote := newFakeStore()
	remote.setFail(true, true)
	h := newHarness(t, remote, "")
	ctx := context.Background()

	assert.Equal(t, menu.DefaultCategories(), h.catalog.Categories(ctx))
	assert.Empty(t, h.catalog.Items(ctx))
	assert.NoFileExists(t, filepath.Join(h.dir, "categories.json"))
	assert.True(t, h.log.Contains("WARNING", "refreshing categories from the remote store failed"))

	// defaults are stale from the start so the next read retries the remote
	remote.setFail(false, false)
	remote.categories = []menu.Category{{ID: 4, Name: "Desserts", Slug: "desserts"}}
	assert.Equal(t, remote.categories, h.catalog.Categories(ctx))
}

func TestFreshFileAvoidsRemote(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	first := newHarness(t, seededStore(), dir)
	first.catalog.Items(ctx)

	remote := seededStore()
	second := newHarness(t, remote, dir)
	second.clock.advance(10 * time.Second)
	items := second.catalog.Items(ctx)
	assert.Len(t, items, 2)
	assert.Equal(t, 0, remote.count("ListItems"))
}

func TestStaleFileRefreshesFromRemote(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	first := newHarness(t, seededStore(), dir)
	first.catalog.Items(ctx)

	remote := seededStore()
	second := newHarness(t, remote, dir)
	second.clock.advance(31 * time.Second)
	second.catalog.Items(ctx)
	assert.Equal(t, 1, remote.count("ListItems"))
}

func TestRemoteDownFallsBackToStaleFile(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	first := newHarness(t, seededStore(), dir)
	first.catalog.Items(ctx)

	remote := newFakeStore()
	remote.setFail(true, true)
	second := newHarness(t, remote, dir)
	second.clock.advance(time.Hour)
	items := second.catalog.Items(ctx)
	require.Len(t, items, 2)

	status := second.catalog.Status()
	assert.Equal(t, StateStale, status[1].State)
}

func TestLegacyArrayFileIsAccepted(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "categories.json"), []byte(`[{"id":3,"name":"Soups","slug":"soups"}]`), 0o644))

	remote := newFakeStore()
	h := newHarness(t, remote, dir)
	// legacy files are dated by mtime
	h.clock.t = time.Now()
	categories := h.catalog.Categories(context.Background())
	assert.Equal(t, []menu.Category{{ID: 3, Name: "Soups", Slug: "soups"}}, categories)
	assert.Equal(t, 0, remote.count("ListCategories"))
}

func TestFileFormat(t *testing.T) {
	h := newHarness(t, seededStore(), "")
	h.catalog.Categories(context.Background())

	data, err := os.ReadFile(filepath.Join(h.dir, "categories.json"))
	require.NoError(t, err)
	var doc struct {
		LoadedAt time.Time       `json:"loaded_at"`
		Records  []menu.Category `json:"records"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.True(t, h.clock.t.Equal(doc.LoadedAt))
	assert.Len(t, doc.Records, 2)
	assert.Contains(t, string(data), "\n  \"records\"")
}

func TestSequentialCreatesFromEmpty(t *testing.T) {
	h := newHarness(t, newFakeStore(), "")
	ctx := context.Background()

	for i, name := range []string{"Drinks", "Mains", "Desserts"} {
		category, err := h.catalog.CreateCategory(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), category.ID)
	}
	for i := range 3 {
		item, err := h.catalog.CreateItem(ctx, menu.ItemInput{CategoryID: "1", Name: "Item", Price: "2"})
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), item.ID)
	}
	assert.True(t, h.mirror.Pending(KindItems))
	assert.Equal(t, 0, h.mirror.Drain(ctx))
	assert.Len(t, h.remote.categories, 3)
	assert.Len(t, h.remote.items, 3)
	assert.False(t, h.mirror.Pending(KindItems))

	var doc fileSnapshot[menu.Item]
	data, err := os.ReadFile(filepath.Join(h.dir, "products.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Len(t, doc.Records, 3)
}

func TestCategoryValidation(t *testing.T) {
	h := newHarness(t, seededStore(), "")
	ctx := context.Background()

	_, err := h.catalog.CreateCategory(ctx, "  ")
	assert.True(t, menu.IsValidation(err))
	_, err = h.catalog.CreateCategory(ctx, "drinks")
	assert.True(t, menu.IsValidation(err))
	_, err = h.catalog.UpdateCategory(ctx, 99, "Other")
	assert.True(t, errors.Is(err, menu.ErrNotFound))

	updated, err := h.catalog.UpdateCategory(ctx, 1, "Cold Drinks")
	require.NoError(t, err)
	assert.Equal(t, "cold-drinks", updated.Slug)
	found, ok := h.catalog.CategoryBySlug(ctx, "cold-drinks")
	assert.True(t, ok)
	assert.Equal(t, int64(1), found.ID)
}

func TestItemValidationAndNotFound(t *testing.T) {
	h := newHarness(t, seededStore(), "")
	ctx := context.Background()

	_, err := h.catalog.CreateItem(ctx, menu.ItemInput{CategoryID: "42", Name: "Ghost"})
	assert.True(t, menu.IsValidation(err))
	_, err = h.catalog.CreateItem(ctx, menu.ItemInput{CategoryID: "1", Name: "Tea", Price: "free"})
	assert.True(t, menu.IsValidation(err))
	_, err = h.catalog.UpdateItem(ctx, 99, menu.ItemInput{CategoryID: "1", Name: "Tea"})
	assert.True(t, errors.Is(err, menu.ErrNotFound))
	assert.True(t, errors.Is(h.catalog.DeleteItem(ctx, 99), menu.ErrNotFound))
	assert.False(t, h.mirror.Pending(KindItems))

	updated, err := h.catalog.UpdateItem(ctx, 7, menu.ItemInput{CategoryID: "1", Name: "Cola", Price: "2.5"})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Quantity)
	assert.Equal(t, 2.5, updated.UnitPrice())

	withImage, err := h.catalog.SetItemImage(ctx, 7, "http://cdn/cola.png")
	require.NoError(t, err)
	assert.Equal(t, "http://cdn/cola.png", menu.Deref(withImage.ImageURL))
	assert.Equal(t, "Cola", withImage.Name)
}

func TestChangeQuantityFloorsAtZero(t *testing.T) {
	h := newHarness(t, seededStore(), "")
	ctx := context.Background()

	assert.True(t, h.catalog.ChangeQuantity(ctx, 7, -5))
	item, ok := h.catalog.Item(ctx, 7)
	require.True(t, ok)
	assert.Equal(t, 0, item.Quantity)

	assert.True(t, h.catalog.ChangeQuantity(ctx, 7, 3))
	item, _ = h.catalog.Item(ctx, 7)
	assert.Equal(t, 3, item.Quantity)

	h.mirror.Drain(ctx)
	remoteItem, _, _ := h.remote.GetItem(ctx, 7)
	assert.Equal(t, 3, remoteItem.Quantity)
}

func TestChangeQuantityOfUncachedItemGoesRemote(t *testing.T) {
	h := newHarness(t, seededStore(), "")
	ctx := context.Background()
	h.catalog.Items(ctx)

	h.remote.items = append(h.remote.items, menu.Item{ID: 20, CategoryID: 1, Name: "Juice", Quantity: 1})
	assert.True(t, h.catalog.ChangeQuantity(ctx, 20, -4))
	item, _, _ := h.remote.GetItem(ctx, 20)
	assert.Equal(t, 0, item.Quantity)
	assert.False(t, h.mirror.Pending(KindItems))

	assert.False(t, h.catalog.ChangeQuantity(ctx, 404, -1))
	h.remote.setFail(true, true)
	assert.False(t, h.catalog.ChangeQuantity(ctx, 20, -1))
}

func TestItemFallsBackToRemote(t *testing.T) {
	h := newHarness(t, seededStore(), "")
	ctx := context.Background()
	h.catalog.Items(ctx)
	h.remote.items = append(h.remote.items, menu.Item{ID: 30, CategoryID: 1, Name: "Late"})

	item, ok := h.catalog.Item(ctx, 30)
	assert.True(t, ok)
	assert.Equal(t, "Late", item.Name)

	h.remote.setFail(true, false)
	_, ok = h.catalog.Item(ctx, 31)
	assert.False(t, ok)
}

func TestPendingWritesDeferRefresh(t *testing.T) {
	h := newHarness(t, seededStore(), "")
	ctx := context.Background()
	h.catalog.Items(ctx)

	h.remote.setFail(false, true)
	created, err := h.catalog.CreateItem(ctx, menu.ItemInput{CategoryID: "1", Name: "Lemonade"})
	require.NoError(t, err)
	assert.Equal(t, 1, h.mirror.Drain(ctx))
	require.Len(t, h.mirror.Failed(), 1)
	assert.True(t, h.mirror.Failed()[0].Transient)

	h.clock.advance(time.Minute)
	_, ok := h.catalog.Item(ctx, created.ID)
	assert.True(t, ok, "local write must survive while its mirror task is parked")
	assert.Equal(t, 1, h.remote.count("ListItems"))
	assert.True(t, h.catalog.Status()[1].Pending)

	h.remote.setFail(false, false)
	assert.Equal(t, 1, h.mirror.Requeue())
	assert.Equal(t, 0, h.mirror.Drain(ctx))
	h.catalog.Items(ctx)
	assert.Equal(t, 2, h.remote.count("ListItems"))
	_, ok = h.catalog.Item(ctx, created.ID)
	assert.True(t, ok)
}

func TestForcedRefreshReconciles(t *testing.T) {
	h := newHarness(t, seededStore(), "")
	ctx := context.Background()
	h.catalog.Items(ctx)

	h.remote.setFail(false, true)
	_, err := h.catalog.CreateItem(ctx, menu.ItemInput{CategoryID: "1", Name: "Lemonade"})
	require.NoError(t, err)
	h.mirror.Drain(ctx)
	assert.Equal(t, 1, h.mirror.Discard(""))

	require.NoError(t, h.catalog.Refresh(ctx, ""))
	assert.Len(t, h.catalog.Items(ctx), 2)

	h.remote.setFail(true, true)
	assert.Error(t, h.catalog.Refresh(ctx, KindItems))
	assert.Error(t, h.catalog.Refresh(ctx, "bogus"))
}

func TestDeleteCategoryOrphansItems(t *testing.T) {
	h := newHarness(t, seededStore(), "")
	ctx := context.Background()

	require.NoError(t, h.catalog.DeleteCategory(ctx, 2))
	assert.Len(t, h.catalog.Items(ctx), 2)

	sections := h.catalog.Menu(ctx)
	require.Len(t, sections, 2)
	assert.Equal(t, "Drinks", sections[0].Category.Name)
	assert.Equal(t, UncategorizedName, sections[1].Category.Name)
	assert.True(t, sections[1].Orphaned)
	require.Len(t, sections[1].Items, 1)
	assert.Equal(t, "Burger", sections[1].Items[0].Name)

	assert.Len(t, h.catalog.ItemsByCategory(ctx, 2), 1)
	assert.Len(t, h.catalog.ItemsByCategory(ctx, 1), 1)
}

func TestPersistFailureFailsMutation(t *testing.T) {
	h := newHarness(t, seededStore(), "")
	ctx := context.Background()
	before := h.catalog.Categories(ctx)

	blocker := filepath.Join(h.dir, "categories.json")
	require.NoError(t, os.Remove(blocker))
	require.NoError(t, os.MkdirAll(filepath.Join(blocker, "keep"), 0o755))

	_, err := h.catalog.CreateCategory(ctx, "Soups")
	require.Error(t, err)
	assert.Equal(t, before, h.catalog.Categories(ctx))
	assert.False(t, h.mirror.Pending(KindCategories))
}

func TestConcurrentCreatesAssignUniqueIDs(t *testing.T) {
	h := newHarness(t, seededStore(), "")
	ctx := context.Background()
	const n = 50

	var wg sync.WaitGroup
	ids := make(chan int64, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			item, err := h.catalog.CreateItem(ctx, menu.ItemInput{CategoryID: "1", Name: "Special " + strconv.Itoa(i)})
			if assert.NoError(t, err) {
				ids <- item.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		assert.False(t, seen[id], "id %d assigned twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	assert.Len(t, h.catalog.Items(ctx), n+2)
	assert.Len(t, h.mirror.Queued(), n)
}

func TestLocallyDeletedItemIsNotReadFromRemote(t *testing.T) {
	h := newHarness(t, seededStore(), "")
	ctx := context.Background()
	h.catalog.Items(ctx)

	require.NoError(t, h.catalog.DeleteItem(ctx, 7))
	assert.True(t, h.mirror.PendingDelete(KindItems, 7))
	assert.False(t, h.mirror.PendingDelete(KindItems, 8))

	_, ok := h.catalog.Item(ctx, 7)
	assert.False(t, ok, "queued delete")
	assert.False(t, h.catalog.ChangeQuantity(ctx, 7, -1))
	assert.Equal(t, 0, h.remote.count("GetItem"))
	assert.Equal(t, 0, h.remote.count("UpsertItem"))

	h.remote.setFail(false, true)
	assert.Equal(t, 1, h.mirror.Drain(ctx))
	_, ok = h.catalog.Item(ctx, 7)
	assert.False(t, ok, "parked delete")
	assert.False(t, h.catalog.ChangeQuantity(ctx, 7, -1))
	assert.Equal(t, 0, h.remote.count("GetItem"))

	h.remote.setFail(false, false)
	assert.Equal(t, 1, h.mirror.Requeue())
	assert.Equal(t, 0, h.mirror.Drain(ctx))
	assert.False(t, h.mirror.PendingDelete(KindItems, 7))
	_, ok = h.catalog.Item(ctx, 7)
	assert.False(t, ok)
	assert.Equal(t, 1, h.remote.count("GetItem"))
}

func TestRefreshPersistFailureKeepsSnapshotStale(t *testing.T) {
	h := newHarness(t, seededStore(), "")
	ctx := context.Background()
	h.catalog.Categories(ctx)
	assert.Equal(t, 1, h.remote.count("ListCategories"))

	blocker := filepath.Join(h.dir, "categories.json")
	require.NoError(t, os.Remove(blocker))
	require.NoError(t, os.MkdirAll(filepath.Join(blocker, "keep"), 0o755))
	h.remote.categories = append(h.remote.categories, menu.Category{ID: 3, Name: "Soups", Slug: "soups"})

	h.clock.advance(time.Minute)
	assert.Len(t, h.catalog.Categories(ctx), 3)
	assert.Equal(t, 2, h.remote.count("ListCategories"))
	assert.Equal(t, StateStale, h.catalog.Status()[0].State)
	assert.Error(t, h.catalog.Refresh(ctx, KindCategories))

	require.NoError(t, os.RemoveAll(blocker))
	assert.Len(t, h.catalog.Categories(ctx), 3)
	assert.Equal(t, StateFresh, h.catalog.Status()[0].State)
	calls := h.remote.count("ListCategories")
	h.catalog.Categories(ctx)
	assert.Equal(t, calls, h.remote.count("ListCategories"))

	records, loadedAt, err := readSnapshot[menu.Category](blocker)
	require.NoError(t, err)
	assert.Len(t, records, 3)
	assert.True(t, h.clock.now().Equal(loadedAt))
}
