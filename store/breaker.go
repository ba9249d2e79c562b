package store

import (
	"context"

	"github.com/agentuity/storefront/menu"
	"github.com/agentuity/storefront/resilience"
	"github.com/cockroachdb/errors"
)

type breakerStore struct {
	next Store
	cb   *resilience.CircuitBreaker
}

var _ Store = (*breakerStore)(nil)

// WithCircuitBreaker guards every call to next with cb. While the breaker is
// open calls fail fast with ErrRemoteUnavailable.
func WithCircuitBreaker(next Store, cb *resilience.CircuitBreaker) Store {
	return &breakerStore{next: next, cb: cb}
}

func (b *breakerStore) call(ctx context.Context, fn func(ctx context.Context) error) error {
	err := b.cb.Execute(ctx, fn)
	if errors.Is(err, resilience.ErrCircuitBreakerOpen) || errors.Is(err, resilience.ErrCircuitBreakerTimeout) {
		return errors.Mark(err, ErrRemoteUnavailable)
	}
	return err
}

// Results are only read after a nil error: a timed out call may still be
// running and writing to them.
func (b *breakerStore) ListCategories(ctx context.Context) ([]menu.Category, error) {
	var categories []menu.Category
	err := b.call(ctx, func(ctx context.Context) (err error) {
		categories, err = b.next.ListCategories(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return categories, nil
}

func (b *breakerStore) UpsertCategory(ctx context.Context, category menu.Category) error {
	return b.call(ctx, func(ctx context.Context) error {
		return b.next.UpsertCategory(ctx, category)
	})
}

func (b *breakerStore) DeleteCategory(ctx context.Context, id int64) error {
	return b.call(ctx, func(ctx context.Context) error {
		return b.next.DeleteCategory(ctx, id)
	})
}

func (b *breakerStore) ListItems(ctx context.Context) ([]menu.Item, error) {
	var items []menu.Item
	err := b.call(ctx, func(ctx context.Context) (err error) {
		items, err = b.next.ListItems(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (b *breakerStore) ListItemsByCategory(ctx context.Context, categoryID int64) ([]menu.Item, error) {
	var items []menu.Item
	err := b.call(ctx, func(ctx context.Context) (err error) {
		items, err = b.next.ListItemsByCategory(ctx, categoryID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (b *breakerStore) GetItem(ctx context.Context, id int64) (menu.Item, bool, error) {
	var item menu.Item
	var found bool
	err := b.call(ctx, func(ctx context.Context) (err error) {
		item, found, err = b.next.GetItem(ctx, id)
		return err
	})
	if err != nil {
		return menu.Item{}, false, err
	}
	return item, found, nil
}

func (b *breakerStore) UpsertItem(ctx context.Context, item menu.Item) error {
	return b.call(ctx, func(ctx context.Context) error {
		return b.next.UpsertItem(ctx, item)
	})
}

func (b *breakerStore) DeleteItem(ctx context.Context, id int64) error {
	return b.call(ctx, func(ctx context.Context) error {
		return b.next.DeleteItem(ctx, id)
	})
}

func (b *breakerStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	var found bool
	err := b.call(ctx, func(ctx context.Context) (err error) {
		value, found, err = b.next.GetSetting(ctx, key)
		return err
	})
	if err != nil {
		return "", false, err
	}
	return value, found, nil
}

func (b *breakerStore) SetSetting(ctx context.Context, key, value string) error {
	return b.call(ctx, func(ctx context.Context) error {
		return b.next.SetSetting(ctx, key, value)
	})
}

func (b *breakerStore) UploadAsset(ctx context.Context, data []byte, contentType, path string) (string, error) {
	var url string
	err := b.call(ctx, func(ctx context.Context) (err error) {
		url, err = b.next.UploadAsset(ctx, data, contentType, path)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrUploadFailed) {
			err = errors.Mark(err, ErrUploadFailed)
		}
		return "", err
	}
	return url, nil
}

// ReadAsset forwards to next when it serves its own assets.
func (b *breakerStore) ReadAsset(ctx context.Context, bucket, path string) ([]byte, string, error) {
	reader, ok := b.next.(AssetReader)
	if !ok {
		return nil, "", menu.ErrNotFound
	}
	return reader.ReadAsset(ctx, bucket, path)
}
