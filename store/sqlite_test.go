package store

import (
	"context"
	"testing"
	"time"

	"github.com/agentuity/storefront/menu"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), ":memory:", "http://localhost:5000", "")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteCategories(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	require.NoError(t, s.UpsertCategory(ctx, menu.Category{ID: 2, Name: "Mains", Slug: "mains"}))
	require.NoError(t, s.UpsertCategory(ctx, menu.Category{ID: 1, Name: "Drinks"}))
	require.NoError(t, s.UpsertCategory(ctx, menu.Category{ID: 2, Name: "Big Mains", Slug: "big-mains"}))

	categories, err := s.ListCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []menu.Category{
		{ID: 2, Name: "Big Mains", Slug: "big-mains"},
		{ID: 1, Name: "Drinks", Slug: "drinks"},
	}, categories)

	require.NoError(t, s.DeleteCategory(ctx, 2))
	categories, err = s.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, categories, 1)
}

func TestSQLiteItems(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	price := 1.5
	desc := "Fizzy"
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertItem(ctx, menu.Item{ID: 7, CategoryID: 1, Name: "Soda", Price: &price, Description: &desc, Quantity: 4, CreatedAt: created}))
	require.NoError(t, s.UpsertItem(ctx, menu.Item{ID: 8, CategoryID: 2, Name: "Burger", Quantity: -2}))

	item, found, err := s.GetItem(ctx, 7)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Soda", item.Name)
	assert.Equal(t, &price, item.Price)
	assert.Equal(t, "Fizzy", menu.Deref(item.Description))
	assert.Nil(t, item.ImageURL)
	assert.True(t, created.Equal(item.CreatedAt))

	burger, found, err := s.GetItem(ctx, 8)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 0, burger.Quantity)
	assert.Nil(t, burger.Price)

	byCategory, err := s.ListItemsByCategory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, int64(7), byCategory[0].ID)

	item.Quantity = 2
	require.NoError(t, s.UpsertItem(ctx, item))
	item, _, _ = s.GetItem(ctx, 7)
	assert.Equal(t, 2, item.Quantity)

	require.NoError(t, s.DeleteItem(ctx, 7))
	_, found, err = s.GetItem(ctx, 7)
	require.NoError(t, err)
	assert.False(t, found)

	all, err := s.ListItems(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLiteSettings(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	_, found, err := s.GetSetting(ctx, "site_name")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetSetting(ctx, "site_name", "Cafe"))
	require.NoError(t, s.SetSetting(ctx, "site_name", "Diner"))
	value, found, err := s.GetSetting(ctx, "site_name")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Diner", value)
}

func TestSQLiteAssets(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	url, err := s.UploadAsset(ctx, []byte("logo"), "image/png", "branding/logo.png")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000/storage/v1/object/public/assets/branding/logo.png", url)

	data, contentType, err := s.ReadAsset(ctx, "assets", "branding/logo.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("logo"), data)
	assert.Equal(t, "image/png", contentType)

	_, _, err = s.ReadAsset(ctx, "assets", "missing.png")
	assert.True(t, errors.Is(err, menu.ErrNotFound))

	_, err = s.UploadAsset(ctx, nil, "image/png", "empty.png")
	assert.True(t, errors.Is(err, ErrUploadFailed))
}

func TestSQLiteClosedIsUnavailable(t *testing.T) {
	s, err := OpenSQLite(context.Background(), "", "", "")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	_, err = s.ListItems(context.Background())
	assert.True(t, IsUnavailable(err))
}
