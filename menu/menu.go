// Package menu holds the storefront domain types shared by the catalog, the
// remote store and the web layer.
package menu

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Category groups items on the public menu.
type Category struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Slug string `json:"slug" yaml:"slug"`
}

// DefaultCategories is served when no category list can be loaded.
func DefaultCategories() []Category {
	return []Category{{ID: 1, Name: "All", Slug: "all"}}
}

// Item is a menu entry. A nil Price renders without a price.
type Item struct {
	ID          int64     `json:"id"`
	CategoryID  int64     `json:"category_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Price       *float64  `json:"price"`
	ImageURL    *string   `json:"image_url"`
	Quantity    int       `json:"quantity"`
	CreatedAt   time.Time `json:"created_at"`
}

// UnitPrice returns the price or zero when unset.
func (i Item) UnitPrice() float64 {
	if i.Price == nil {
		return 0
	}
	return *i.Price
}

// LineTotal returns the price for qty units rounded to cents.
func (i Item) LineTotal(qty int) float64 {
	return RoundCents(i.UnitPrice() * float64(qty))
}

// InStock reports whether the item has quantity left.
func (i Item) InStock() bool {
	return i.Quantity > 0
}

// RoundCents rounds v to two decimals.
func RoundCents(v float64) float64 {
	cents, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return cents
}

// FormatPrice renders an amount as dollars with two decimals.
func FormatPrice(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

// ClampQuantity floors q at zero.
func ClampQuantity(q int) int {
	if q < 0 {
		return 0
	}
	return q
}

// ParseBool decodes the loose boolean encodings used by site settings.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// FormatBool is the canonical encoding written back for booleans.
func FormatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// StringPointer returns nil for a blank string, otherwise a pointer to the
// trimmed value.
func StringPointer(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
