package catalog

import (
	"context"
	"sync"

	"github.com/agentuity/storefront/menu"
	"github.com/agentuity/storefront/store"
	"github.com/cockroachdb/errors"
)

// fakeStore is an in-memory store.Store that counts calls and can be told to
// fail reads or writes.
type fakeStore struct {
	mu         sync.Mutex
	categories []menu.Category
	items      []menu.Item
	failReads  bool
	failWrites bool
	calls      map[string]int
}

var _ store.Store = (*fakeStore)(nil)

var errDown = errors.Mark(errors.New("connection refused"), store.ErrRemoteUnavailable)

func newFakeStore() *fakeStore {
	return &fakeStore{calls: map[string]int{}}
}

func (f *fakeStore) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeStore) setFail(reads, writes bool) {
	f.mu.Lock()
	f.failReads, f.failWrites = reads, writes
	f.mu.Unlock()
}

func (f *fakeStore) read(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	if f.failReads {
		return errDown
	}
	return nil
}

func (f *fakeStore) write(name string) error {
	f.calls[name]++
	if f.failWrites {
		return errDown
	}
	return nil
}

func (f *fakeStore) ListCategories(ctx context.Context) ([]menu.Category, error) {
	if err := f.read("ListCategories"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]menu.Category(nil), f.categories...), nil
}

func (f *fakeStore) UpsertCategory(ctx context.Context, category menu.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.write("UpsertCategory"); err != nil {
		return err
	}
	for i := range f.categories {
		if f.categories[i].ID == category.ID {
			f.categories[i] = category
			return nil
		}
	}
	f.categories = append(f.categories, category)
	return nil
}

func (f *fakeStore) DeleteCategory(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.write("DeleteCategory"); err != nil {
		return err
	}
	for i := range f.categories {
		if f.categories[i].ID == id {
			f.categories = append(f.categories[:i], f.categories[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeStore) ListItems(ctx context.Context) ([]menu.Item, error) {
	if err := f.read("ListItems"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]menu.Item(nil), f.items...), nil
}

func (f *fakeStore) ListItemsByCategory(ctx context.Context, categoryID int64) ([]menu.Item, error) {
	items, err := f.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	var out []menu.Item
	for _, item := range items {
		if item.CategoryID == categoryID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeStore) GetItem(ctx context.Context, id int64) (menu.Item, bool, error) {
	if err := f.read("GetItem"); err != nil {
		return menu.Item{}, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items {
		if item.ID == id {
			return item, true, nil
		}
	}
	return menu.Item{}, false, nil
}

func (f *fakeStore) UpsertItem(ctx context.Context, item menu.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.write("UpsertItem"); err != nil {
		return err
	}
	for i := range f.items {
		if f.items[i].ID == item.ID {
			f.items[i] = item
			return nil
		}
	}
	f.items = append(f.items, item)
	return nil
}

func (f *fakeStore) DeleteItem(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.write("DeleteItem"); err != nil {
		return err
	}
	for i := range f.items {
		if f.items[i].ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	return "", false, f.read("GetSetting")
}

func (f *fakeStore) SetSetting(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.write("SetSetting")
}

func (f *fakeStore) UploadAsset(ctx context.Context, data []byte, contentType, path string) (string, error) {
	return "", errors.Mark(errors.New("not supported"), store.ErrUploadFailed)
}
