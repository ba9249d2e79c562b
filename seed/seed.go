// Package seed imports a menu described in YAML into the catalog.
package seed

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/agentuity/storefront/catalog"
	"github.com/agentuity/storefront/menu"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// File is the seed document.
//
//	settings:
//	  site_name: Casa Pepe
//	categories:
//	  - name: Mains
//	    items:
//	      - name: Burger
//	        price: "9.50"
//	        quantity: "10"
type File struct {
	Settings   map[string]string `yaml:"settings"`
	Categories []Category        `yaml:"categories"`
}

// Category is a category and its items.
type Category struct {
	Name  string           `yaml:"name"`
	Items []menu.ItemInput `yaml:"items"`
}

// Parse decodes a seed document. Unknown fields are rejected.
func Parse(r io.Reader) (File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, errors.Wrap(err, "decode seed file")
	}
	return f, nil
}

// Load reads and decodes the seed file at path.
func Load(path string) (File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return File{}, errors.Wrapf(err, "open %s", path)
	}
	defer fh.Close()
	return Parse(fh)
}

// Settings is the part of the settings service used by Apply.
type Settings interface {
	SetAll(ctx context.Context, values map[string]string) error
}

// Summary counts what Apply changed.
type Summary struct {
	CategoriesCreated int
	ItemsCreated      int
	ItemsUpdated      int
}

// Apply creates missing categories and creates or updates items by name
// within their category. Settings are written when settings is not nil.
func Apply(ctx context.Context, c *catalog.Catalog, settings Settings, f File) (Summary, error) {
	var sum Summary
	if settings != nil && len(f.Settings) > 0 {
		if err := settings.SetAll(ctx, f.Settings); err != nil {
			return sum, err
		}
	}
	for _, fc := range f.Categories {
		category, ok := c.CategoryBySlug(ctx, menu.Slugify(fc.Name))
		if !ok {
			created, err := c.CreateCategory(ctx, fc.Name)
			if err != nil {
				return sum, errors.Wrapf(err, "category %q", fc.Name)
			}
			category = created
			sum.CategoriesCreated++
		}
		existing := make(map[string]int64)
		for _, item := range c.ItemsByCategory(ctx, category.ID) {
			existing[strings.ToLower(item.Name)] = item.ID
		}
		for _, in := range fc.Items {
			in.CategoryID = strconv.FormatInt(category.ID, 10)
			if id, ok := existing[strings.ToLower(strings.TrimSpace(in.Name))]; ok {
				if _, err := c.UpdateItem(ctx, id, in); err != nil {
					return sum, errors.Wrapf(err, "item %q", in.Name)
				}
				sum.ItemsUpdated++
				continue
			}
			item, err := c.CreateItem(ctx, in)
			if err != nil {
				return sum, errors.Wrapf(err, "item %q", in.Name)
			}
			existing[strings.ToLower(item.Name)] = item.ID
			sum.ItemsCreated++
		}
	}
	return sum, nil
}
