package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/agentuity/storefront/menu"
	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

// SQLite is a self-hosted Store. It keeps the same tables as the hosted
// backend plus an assets table served by the web server.
type SQLite struct {
	db            *sql.DB
	publicBaseURL string
	bucket        string
}

var (
	_ Store       = (*SQLite)(nil)
	_ AssetReader = (*SQLite)(nil)
)

var schema = []string{
	`PRAGMA journal_mode=WAL`,
	`CREATE TABLE IF NOT EXISTS menu_categories (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS menu_items (
		id INTEGER PRIMARY KEY,
		category_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		price REAL,
		image_url TEXT,
		quantity INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_menu_items_category ON menu_items(category_id)`,
	`CREATE TABLE IF NOT EXISTS site_settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS assets (
		bucket TEXT NOT NULL,
		path TEXT NOT NULL,
		content_type TEXT NOT NULL,
		data BLOB NOT NULL,
		PRIMARY KEY (bucket, path)
	)`,
}

// OpenSQLite opens (creating if needed) the database at dbPath. Uploaded
// assets are addressed under publicBaseURL.
func OpenSQLite(ctx context.Context, dbPath, publicBaseURL, bucket string) (*SQLite, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}
	if bucket == "" {
		bucket = "assets"
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite store")
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "create schema")
		}
	}
	return &SQLite{db: db, publicBaseURL: strings.TrimRight(publicBaseURL, "/"), bucket: bucket}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) ListCategories(ctx context.Context) ([]menu.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, slug FROM menu_categories ORDER BY name`)
	if err != nil {
		return nil, unavailable(err, "list categories")
	}
	defer rows.Close()
	var categories []menu.Category
	for rows.Next() {
		var c menu.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug); err != nil {
			return nil, unavailable(err, "scan category")
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err, "list categories")
	}
	return fillSlugs(categories), nil
}

func (s *SQLite) UpsertCategory(ctx context.Context, c menu.Category) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO menu_categories (id, name, slug) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, slug = excluded.slug`,
		c.ID, c.Name, c.Slug)
	return unavailable(err, "upsert category")
}

func (s *SQLite) DeleteCategory(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM menu_categories WHERE id = ?`, id)
	return unavailable(err, "delete category")
}

const itemColumns = `id, category_id, name, description, price, image_url, quantity, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (menu.Item, error) {
	var (
		item        menu.Item
		description sql.NullString
		price       sql.NullFloat64
		imageURL    sql.NullString
		createdAt   string
	)
	if err := row.Scan(&item.ID, &item.CategoryID, &item.Name, &description, &price, &imageURL, &item.Quantity, &createdAt); err != nil {
		return item, err
	}
	if description.Valid {
		item.Description = &description.String
	}
	if price.Valid {
		item.Price = &price.Float64
	}
	if imageURL.Valid {
		item.ImageURL = &imageURL.String
	}
	item.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return item, nil
}

func (s *SQLite) queryItems(ctx context.Context, query string, args ...any) ([]menu.Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(err, "list items")
	}
	defer rows.Close()
	var items []menu.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, unavailable(err, "scan item")
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err, "list items")
	}
	return items, nil
}

func (s *SQLite) ListItems(ctx context.Context) ([]menu.Item, error) {
	return s.queryItems(ctx, `SELECT `+itemColumns+` FROM menu_items ORDER BY created_at DESC, id DESC`)
}

func (s *SQLite) ListItemsByCategory(ctx context.Context, categoryID int64) ([]menu.Item, error) {
	return s.queryItems(ctx, `SELECT `+itemColumns+` FROM menu_items WHERE category_id = ? ORDER BY name`, categoryID)
}

func (s *SQLite) GetItem(ctx context.Context, id int64) (menu.Item, bool, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM menu_items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return menu.Item{}, false, nil
	}
	if err != nil {
		return menu.Item{}, false, unavailable(err, "get item")
	}
	return item, true, nil
}

func (s *SQLite) UpsertItem(ctx context.Context, item menu.Item) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO menu_items (`+itemColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category_id = excluded.category_id,
			name = excluded.name,
			description = excluded.description,
			price = excluded.price,
			image_url = excluded.image_url,
			quantity = excluded.quantity`,
		item.ID, item.CategoryID, item.Name, item.Description, item.Price, item.ImageURL,
		menu.ClampQuantity(item.Quantity), item.CreatedAt.Format(time.RFC3339Nano))
	return unavailable(err, "upsert item")
}

func (s *SQLite) DeleteItem(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM menu_items WHERE id = ?`, id)
	return unavailable(err, "delete item")
}

func (s *SQLite) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM site_settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable(err, "get setting")
	}
	return value, true, nil
}

func (s *SQLite) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO site_settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return unavailable(err, "set setting")
}

func (s *SQLite) UploadAsset(ctx context.Context, data []byte, contentType, path string) (string, error) {
	path = strings.TrimLeft(path, "/")
	if path == "" || len(data) == 0 {
		return "", errors.Mark(errors.New("empty asset"), ErrUploadFailed)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assets (bucket, path, content_type, data) VALUES (?, ?, ?, ?)
		ON CONFLICT(bucket, path) DO UPDATE SET content_type = excluded.content_type, data = excluded.data`,
		s.bucket, path, contentType, data)
	if err != nil {
		return "", errors.Mark(unavailable(err, "upload asset"), ErrUploadFailed)
	}
	return s.publicBaseURL + PublicAssetPath(s.bucket, path), nil
}

// ReadAsset returns an uploaded object. A missing object is menu.ErrNotFound.
func (s *SQLite) ReadAsset(ctx context.Context, bucket, path string) ([]byte, string, error) {
	var data []byte
	var contentType string
	err := s.db.QueryRowContext(ctx,
		`SELECT data, content_type FROM assets WHERE bucket = ? AND path = ?`, bucket, path,
	).Scan(&data, &contentType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", menu.ErrNotFound
	}
	if err != nil {
		return nil, "", unavailable(err, "read asset")
	}
	return data, contentType, nil
}
