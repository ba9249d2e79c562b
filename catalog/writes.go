package catalog

import (
	"context"
	"strings"

	"github.com/agentuity/storefront/menu"
	"github.com/cockroachdb/errors"
)

func nextID[T any](records []T, id func(T) int64) int64 {
	var highest int64
	for _, r := range records {
		highest = max(highest, id(r))
	}
	return highest + 1
}

func indexOf[T any](records []T, id func(T) int64, want int64) int {
	for i, r := range records {
		if id(r) == want {
			return i
		}
	}
	return -1
}

func categoryID(c menu.Category) int64 { return c.ID }
func itemID(i menu.Item) int64         { return i.ID }

func checkCategoryName(categories []menu.Category, name string, except int64) (string, error) {
	name, err := menu.ValidateCategoryName(name)
	if err != nil {
		return "", err
	}
	slug := menu.Slugify(name)
	if slug == "" {
		return "", menu.NewValidationError("name", "Category name needs at least one letter or digit")
	}
	for _, c := range categories {
		if c.ID != except && (strings.EqualFold(c.Name, name) || c.Slug == slug) {
			return "", menu.NewValidationError("name", "A category with that name already exists")
		}
	}
	return slug, nil
}

// CreateCategory adds a category with the next free id.
func (c *Catalog) CreateCategory(ctx context.Context, name string) (menu.Category, error) {
	var created menu.Category
	err := c.categories.mutate(ctx, func(records []menu.Category) ([]menu.Category, *Task, error) {
		slug, err := checkCategoryName(records, name, 0)
		if err != nil {
			return nil, nil, err
		}
		created = menu.Category{ID: nextID(records, categoryID), Name: strings.TrimSpace(name), Slug: slug}
		return append(records, created), upsertCategory(created), nil
	})
	if err != nil {
		return menu.Category{}, err
	}
	c.log.Info("created category %d %q", created.ID, created.Name)
	return created, nil
}

// UpdateCategory renames a category and regenerates its slug.
func (c *Catalog) UpdateCategory(ctx context.Context, id int64, name string) (menu.Category, error) {
	var updated menu.Category
	err := c.categories.mutate(ctx, func(records []menu.Category) ([]menu.Category, *Task, error) {
		i := indexOf(records, categoryID, id)
		if i < 0 {
			return nil, nil, errors.Wrapf(menu.ErrNotFound, "category %d", id)
		}
		slug, err := checkCategoryName(records, name, id)
		if err != nil {
			return nil, nil, err
		}
		records[i].Name = strings.TrimSpace(name)
		records[i].Slug = slug
		updated = records[i]
		return records, upsertCategory(updated), nil
	})
	if err != nil {
		return menu.Category{}, err
	}
	c.log.Info("updated category %d %q", updated.ID, updated.Name)
	return updated, nil
}

// DeleteCategory removes a category. Its items are kept and become orphans.
func (c *Catalog) DeleteCategory(ctx context.Context, id int64) error {
	err := c.categories.mutate(ctx, func(records []menu.Category) ([]menu.Category, *Task, error) {
		i := indexOf(records, categoryID, id)
		if i < 0 {
			return nil, nil, errors.Wrapf(menu.ErrNotFound, "category %d", id)
		}
		return append(records[:i], records[i+1:]...), &Task{Kind: KindCategories, Op: OpDelete, ID: id}, nil
	})
	if err != nil {
		return err
	}
	c.log.Info("deleted category %d", id)
	return nil
}

func (c *Catalog) checkCategory(ctx context.Context, id int64) error {
	if _, ok := c.Category(ctx, id); !ok {
		return menu.NewValidationError("category_id", "Choose a valid category")
	}
	return nil
}

// CreateItem validates in and adds an item with the next free id.
func (c *Catalog) CreateItem(ctx context.Context, in menu.ItemInput) (menu.Item, error) {
	fields, err := in.Validate()
	if err != nil {
		return menu.Item{}, err
	}
	if err := c.checkCategory(ctx, fields.CategoryID); err != nil {
		return menu.Item{}, err
	}
	var created menu.Item
	err = c.items.mutate(ctx, func(records []menu.Item) ([]menu.Item, *Task, error) {
		created = fields.Apply(menu.Item{ID: nextID(records, itemID), CreatedAt: c.now().UTC()})
		return append(records, created), upsertItem(created), nil
	})
	if err != nil {
		return menu.Item{}, err
	}
	c.log.Info("created item %d %q", created.ID, created.Name)
	return created, nil
}

// UpdateItem validates in and replaces the editable fields of item id.
func (c *Catalog) UpdateItem(ctx context.Context, id int64, in menu.ItemInput) (menu.Item, error) {
	fields, err := in.Validate()
	if err != nil {
		return menu.Item{}, err
	}
	if err := c.checkCategory(ctx, fields.CategoryID); err != nil {
		return menu.Item{}, err
	}
	return c.updateItem(ctx, id, func(item menu.Item) menu.Item {
		return fields.Apply(item)
	})
}

// SetItemImage records the public URL of an uploaded item image.
func (c *Catalog) SetItemImage(ctx context.Context, id int64, url string) (menu.Item, error) {
	return c.updateItem(ctx, id, func(item menu.Item) menu.Item {
		item.ImageURL = menu.StringPointer(url)
		return item
	})
}

func (c *Catalog) updateItem(ctx context.Context, id int64, fn func(menu.Item) menu.Item) (menu.Item, error) {
	var updated menu.Item
	err := c.items.mutate(ctx, func(records []menu.Item) ([]menu.Item, *Task, error) {
		i := indexOf(records, itemID, id)
		if i < 0 {
			return nil, nil, errors.Wrapf(menu.ErrNotFound, "item %d", id)
		}
		records[i] = fn(records[i])
		updated = records[i]
		return records, upsertItem(updated), nil
	})
	if err != nil {
		return menu.Item{}, err
	}
	c.log.Info("updated item %d %q", updated.ID, updated.Name)
	return updated, nil
}

// DeleteItem removes item id.
func (c *Catalog) DeleteItem(ctx context.Context, id int64) error {
	err := c.items.mutate(ctx, func(records []menu.Item) ([]menu.Item, *Task, error) {
		i := indexOf(records, itemID, id)
		if i < 0 {
			return nil, nil, errors.Wrapf(menu.ErrNotFound, "item %d", id)
		}
		return append(records[:i], records[i+1:]...), &Task{Kind: KindItems, Op: OpDelete, ID: id}, nil
	})
	if err != nil {
		return err
	}
	c.log.Info("deleted item %d", id)
	return nil
}

// ChangeQuantity adds delta to the stock of item id, flooring at zero. A
// cached item is changed locally and mirrored; an uncached one is read from
// and written to the remote store directly, unless it was deleted locally.
// It reports whether the change
// was recorded.
func (c *Catalog) ChangeQuantity(ctx context.Context, id int64, delta int) bool {
	var found bool
	err := c.items.mutate(ctx, func(records []menu.Item) ([]menu.Item, *Task, error) {
		i := indexOf(records, itemID, id)
		if i < 0 {
			return nil, nil, menu.ErrNotFound
		}
		found = true
		records[i].Quantity = menu.ClampQuantity(records[i].Quantity + delta)
		return records, upsertItem(records[i]), nil
	})
	if found {
		if err != nil {
			c.log.Error("changing quantity of item %d: %s", id, err)
			return false
		}
		return true
	}

	if c.deletedLocally(KindItems, id) {
		c.log.Warn("cannot change quantity of item %d: deleted", id)
		return false
	}
	item, ok, err := c.remote.GetItem(ctx, id)
	if err != nil || !ok {
		c.log.Warn("cannot change quantity of item %d: not cached and remote lookup failed: %v", id, err)
		return false
	}
	item.Quantity = menu.ClampQuantity(item.Quantity + delta)
	if err := c.remote.UpsertItem(ctx, item); err != nil {
		c.log.Warn("changing quantity of item %d on the remote store: %s", id, err)
		return false
	}
	return true
}

func upsertCategory(category menu.Category) *Task {
	return &Task{Kind: KindCategories, Op: OpUpsert, ID: category.ID, Category: &category}
}

func upsertItem(item menu.Item) *Task {
	return &Task{Kind: KindItems, Op: OpUpsert, ID: item.ID, Item: &item}
}
