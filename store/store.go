// Package store talks to the remote backend that owns the menu tables and
// the asset bucket.
package store

import (
	"context"
	"fmt"

	"github.com/agentuity/storefront/menu"
	"github.com/cockroachdb/errors"
)

const (
	TableCategories = "menu_categories"
	TableItems      = "menu_items"
	TableSettings   = "site_settings"
)

var (
	// ErrRemoteUnavailable marks failures worth retrying: network errors,
	// 5xx and 429 responses, timeouts and an open circuit breaker.
	ErrRemoteUnavailable = errors.New("remote store unavailable")
	// ErrUploadFailed marks a failed asset upload.
	ErrUploadFailed = errors.New("asset upload failed")
)

// Store is the remote persistence for categories, items, site settings and
// uploaded assets.
type Store interface {
	ListCategories(ctx context.Context) ([]menu.Category, error)
	UpsertCategory(ctx context.Context, category menu.Category) error
	DeleteCategory(ctx context.Context, id int64) error

	ListItems(ctx context.Context) ([]menu.Item, error)
	ListItemsByCategory(ctx context.Context, categoryID int64) ([]menu.Item, error)
	// GetItem returns found=false without an error when the id does not exist.
	GetItem(ctx context.Context, id int64) (menu.Item, bool, error)
	UpsertItem(ctx context.Context, item menu.Item) error
	DeleteItem(ctx context.Context, id int64) error

	// GetSetting returns found=false without an error for an unset key.
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error

	// UploadAsset stores data at path in the asset bucket and returns its
	// public URL.
	UploadAsset(ctx context.Context, data []byte, contentType, path string) (string, error)
}

// AssetReader is implemented by stores that serve their own uploaded assets.
type AssetReader interface {
	ReadAsset(ctx context.Context, bucket, path string) ([]byte, string, error)
}

// Error describes a failed call to the remote backend.
type Error struct {
	URL    string
	Method string
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s %s: %d: %s", e.Method, e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err is a transient remote failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrRemoteUnavailable)
}

func unavailable(err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, op), ErrRemoteUnavailable)
}

// PublicAssetPath is the path under which a bucket object is publicly served.
func PublicAssetPath(bucket, path string) string {
	return "/storage/v1/object/public/" + bucket + "/" + path
}

func fillSlugs(categories []menu.Category) []menu.Category {
	for i := range categories {
		if categories[i].Slug == "" {
			categories[i].Slug = menu.Slugify(categories[i].Name)
		}
	}
	return categories
}
