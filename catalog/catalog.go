// Package catalog is the local cache of menu categories and items. Reads are
// served from an in-memory snapshot backed by JSON files and refreshed from
// the remote store once the snapshot is older than the TTL. Writes land in
// the snapshot first and reach the remote store through the Mirror.
package catalog

import (
	"cmp"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/agentuity/storefront/logger"
	"github.com/agentuity/storefront/menu"
	"github.com/agentuity/storefront/store"
	"github.com/cockroachdb/errors"
)

// DefaultTTL is how long a snapshot is served before it is refreshed.
const DefaultTTL = 30 * time.Second

// Config configures a Catalog.
type Config struct {
	// Dir holds products.json and categories.json. It is created if missing.
	Dir string
	// TTL defaults to DefaultTTL.
	TTL time.Duration
}

// Catalog owns the category and item snapshots.
type Catalog struct {
	log    logger.Logger
	remote store.Store
	mirror *Mirror
	ttl    time.Duration
	dir    string
	now    func() time.Time

	categories *snapshot[menu.Category]
	items      *snapshot[menu.Item]
}

// New returns a Catalog reading through to remote. Writes are mirrored
// through mirror, which may be nil to skip mirroring.
func New(log logger.Logger, remote store.Store, mirror *Mirror, cfg Config) (*Catalog, error) {
	if cfg.Dir == "" {
		cfg.Dir = "cache"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create cache dir %s", cfg.Dir)
	}
	c := &Catalog{
		log:    log.WithPrefix("[catalog]"),
		remote: remote,
		mirror: mirror,
		ttl:    cfg.TTL,
		dir:    cfg.Dir,
		now:    time.Now,
	}
	c.categories = &snapshot[menu.Category]{
		kind:     KindCategories,
		path:     filepath.Join(cfg.Dir, KindCategories.fileName()),
		catalog:  c,
		fetch:    remote.ListCategories,
		fallback: menu.DefaultCategories,
		order: func(a, b menu.Category) int {
			return cmp.Or(cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)), cmp.Compare(a.ID, b.ID))
		},
	}
	c.items = &snapshot[menu.Item]{
		kind:     KindItems,
		path:     filepath.Join(cfg.Dir, KindItems.fileName()),
		catalog:  c,
		fetch:    remote.ListItems,
		fallback: func() []menu.Item { return []menu.Item{} },
		order: func(a, b menu.Item) int {
			return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(b.ID, a.ID))
		},
	}
	return c, nil
}

// Categories returns all categories ordered by name.
func (c *Catalog) Categories(ctx context.Context) []menu.Category {
	return c.categories.get(ctx)
}

// Items returns all items, newest first.
func (c *Catalog) Items(ctx context.Context) []menu.Item {
	return c.items.get(ctx)
}

// ItemsByCategory returns the items of one category ordered by name.
func (c *Catalog) ItemsByCategory(ctx context.Context, categoryID int64) []menu.Item {
	var out []menu.Item
	for _, item := range c.Items(ctx) {
		if item.CategoryID == categoryID {
			out = append(out, item)
		}
	}
	slices.SortStableFunc(out, byName)
	return out
}

func byName(a, b menu.Item) int {
	return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
}

// Item looks id up in the snapshot and falls back to the remote store,
// unless the item was deleted locally and the delete has not reached it.
func (c *Catalog) Item(ctx context.Context, id int64) (menu.Item, bool) {
	for _, item := range c.Items(ctx) {
		if item.ID == id {
			return item, true
		}
	}
	if c.deletedLocally(KindItems, id) {
		return menu.Item{}, false
	}
	item, found, err := c.remote.GetItem(ctx, id)
	if err != nil {
		c.log.Warn("remote lookup of item %d failed: %s", id, err)
		return menu.Item{}, false
	}
	return item, found
}

func (c *Catalog) deletedLocally(kind Kind, id int64) bool {
	return c.mirror != nil && c.mirror.PendingDelete(kind, id)
}

// Category returns the category with id.
func (c *Catalog) Category(ctx context.Context, id int64) (menu.Category, bool) {
	for _, category := range c.Categories(ctx) {
		if category.ID == id {
			return category, true
		}
	}
	return menu.Category{}, false
}

// CategoryBySlug returns the category with slug.
func (c *Catalog) CategoryBySlug(ctx context.Context, slug string) (menu.Category, bool) {
	for _, category := range c.Categories(ctx) {
		if category.Slug == slug {
			return category, true
		}
	}
	return menu.Category{}, false
}

// Section is one category on the public menu.
type Section struct {
	Category menu.Category
	Items    []menu.Item
	// Orphaned marks the trailing group of items whose category was deleted.
	Orphaned bool
}

// UncategorizedName is the heading of the orphaned items section.
const UncategorizedName = "Uncategorized"

// Menu groups items by category. Items whose category no longer exists are
// collected in a final Uncategorized section.
func (c *Catalog) Menu(ctx context.Context) []Section {
	categories := c.Categories(ctx)
	items := c.Items(ctx)

	index := make(map[int64]int, len(categories))
	sections := make([]Section, len(categories))
	for i, category := range categories {
		sections[i].Category = category
		index[category.ID] = i
	}
	orphans := Section{Category: menu.Category{Name: UncategorizedName, Slug: "uncategorized"}, Orphaned: true}
	for _, item := range items {
		if i, ok := index[item.CategoryID]; ok {
			sections[i].Items = append(sections[i].Items, item)
		} else {
			orphans.Items = append(orphans.Items, item)
		}
	}
	for i := range sections {
		slices.SortStableFunc(sections[i].Items, byName)
	}
	if len(orphans.Items) > 0 {
		slices.SortStableFunc(orphans.Items, byName)
		sections = append(sections, orphans)
	}
	return sections
}

// SnapshotStatus describes one snapshot for the admin sync panel.
type SnapshotStatus struct {
	Kind     Kind      `json:"kind"`
	State    State     `json:"state"`
	LoadedAt time.Time `json:"loaded_at"`
	Records  int       `json:"records"`
	Pending  bool      `json:"pending"`
}

// Dir is the directory holding the snapshot files.
func (c *Catalog) Dir() string { return c.dir }

// Status reports both snapshots without triggering a refresh.
func (c *Catalog) Status() []SnapshotStatus {
	return []SnapshotStatus{status(c, c.categories), status(c, c.items)}
}

func status[T any](c *Catalog, s *snapshot[T]) SnapshotStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := SnapshotStatus{
		Kind:     s.kind,
		State:    s.state(c.now()),
		LoadedAt: s.loadedAt,
		Records:  len(s.records),
	}
	if c.mirror != nil {
		st.Pending = c.mirror.Pending(s.kind)
	}
	return st
}

// Refresh pulls kind from the remote store now, ignoring the TTL and any
// pending mirror tasks. An empty kind refreshes both.
func (c *Catalog) Refresh(ctx context.Context, kind Kind) error {
	switch kind {
	case KindCategories:
		return c.categories.refresh(ctx)
	case KindItems:
		return c.items.refresh(ctx)
	case "":
		return errors.CombineErrors(c.categories.refresh(ctx), c.items.refresh(ctx))
	default:
		return errors.Newf("unknown kind %q", kind)
	}
}
