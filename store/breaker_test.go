package store

import (
	"context"
	"testing"
	"time"

	"github.com/agentuity/storefront/menu"
	"github.com/agentuity/storefront/resilience"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithCircuitBreakerOpensOnFailures(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, "", "", "")
	require.NoError(t, err)
	guarded := WithCircuitBreaker(s, resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		MaxFailures: 2,
		Timeout:     time.Minute,
	}))

	require.NoError(t, guarded.UpsertCategory(ctx, menu.Category{ID: 1, Name: "All", Slug: "all"}))
	categories, err := guarded.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, categories, 1)

	require.NoError(t, s.Close())
	for range 2 {
		_, err = guarded.ListItems(ctx)
		assert.True(t, IsUnavailable(err))
	}

	_, _, err = guarded.GetItem(ctx, 1)
	assert.True(t, errors.Is(err, resilience.ErrCircuitBreakerOpen))
	assert.True(t, IsUnavailable(err))

	_, err = guarded.UploadAsset(ctx, []byte("x"), "text/plain", "x.txt")
	assert.True(t, errors.Is(err, ErrUploadFailed))
}

func TestWithCircuitBreakerReadsAssets(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, "", "", "")
	require.NoError(t, err)
	defer s.Close()
	guarded := WithCircuitBreaker(s, resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()))

	_, err = guarded.UploadAsset(ctx, []byte("x"), "text/plain", "x.txt")
	require.NoError(t, err)
	reader, ok := guarded.(AssetReader)
	require.True(t, ok)
	data, _, err := reader.ReadAsset(ctx, "assets", "x.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)
}
