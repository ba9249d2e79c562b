// Package cart is the session cart: item id to positive quantity.
package cart

import (
	"cmp"
	"slices"
	"strconv"
)

// Cart maps an item id to the quantity ordered. The zero value is not usable;
// use New or make.
type Cart map[string]int

// New returns an empty cart.
func New() Cart {
	return Cart{}
}

// Line is one cart entry.
type Line struct {
	ItemID   string
	Quantity int
}

// Add increases the quantity of itemID. Quantities below one count as one.
func (c Cart) Add(itemID string, qty int) {
	if qty < 1 {
		qty = 1
	}
	c[itemID] += qty
}

// Remove drops itemID from the cart.
func (c Cart) Remove(itemID string) {
	delete(c, itemID)
}

// Clear empties the cart in place.
func (c Cart) Clear() {
	clear(c)
}

// Len is the number of distinct items.
func (c Cart) Len() int {
	return len(c)
}

// IsEmpty reports whether the cart has no items.
func (c Cart) IsEmpty() bool {
	return len(c) == 0
}

// Clone returns an independent copy.
func (c Cart) Clone() Cart {
	out := make(Cart, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Lines returns the entries ordered by numeric item id, then lexically.
func (c Cart) Lines() []Line {
	lines := make([]Line, 0, len(c))
	for id, qty := range c {
		lines = append(lines, Line{ItemID: id, Quantity: qty})
	}
	slices.SortFunc(lines, func(a, b Line) int {
		ai, aerr := strconv.ParseInt(a.ItemID, 10, 64)
		bi, berr := strconv.ParseInt(b.ItemID, 10, 64)
		if aerr == nil && berr == nil {
			return cmp.Compare(ai, bi)
		}
		return cmp.Compare(a.ItemID, b.ItemID)
	})
	return lines
}

// Status is the JSON shape served by the cart status endpoint.
type Status struct {
	IsEmpty   bool `json:"isEmpty"`
	ItemCount int  `json:"itemCount"`
}

// Status summarises the cart.
func (c Cart) Status() Status {
	return Status{IsEmpty: c.IsEmpty(), ItemCount: c.Len()}
}
