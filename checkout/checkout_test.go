package checkout

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/agentuity/storefront/cart"
	"github.com/agentuity/storefront/menu"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	items   map[int64]menu.Item
	failIDs map[int64]bool
	changes map[int64]int
}

func (f *fakeCatalog) Item(_ context.Context, id int64) (menu.Item, bool) {
	item, ok := f.items[id]
	return item, ok
}

func (f *fakeCatalog) ChangeQuantity(_ context.Context, id int64, delta int) bool {
	if f.failIDs[id] {
		return false
	}
	f.changes[id] += delta
	return true
}

func price(v float64) *float64 { return &v }

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		items: map[int64]menu.Item{
			7: {ID: 7, Name: "Soda", Price: price(1.5)},
			8: {ID: 8, Name: "Burger", Price: price(8.25)},
			9: {ID: 9, Name: "Water"},
		},
		failIDs: map[int64]bool{},
		changes: map[int64]int{},
	}
}

var placed = time.Date(2024, 6, 1, 18, 45, 0, 0, time.UTC)

func TestCheckoutSingleItem(t *testing.T) {
	items := newFakeCatalog()
	c := cart.Cart{"7": 2}

	result, err := Checkout(context.Background(), items, c, "Alex", "+15551234", placed)
	require.NoError(t, err)

	assert.Equal(t, "🛒 Order from Alex\n"+
		"==============================\n"+
		"Soda x2 - $3.00\n"+
		"==============================\n"+
		"Subtotal: $3.00\n"+
		"Time: 2024-06-01 18:45", result.Message)
	assert.True(t, strings.HasPrefix(result.URL, "https://wa.me/15551234?text="))
	assert.True(t, c.IsEmpty())
	assert.Equal(t, -2, items.changes[7])
	assert.Empty(t, result.InventoryNote())

	parsed, err := url.Parse(result.URL)
	require.NoError(t, err)
	assert.Equal(t, result.Message, parsed.Query().Get("text"))
}

func TestCheckoutClearsCartWhenStockUpdatesFail(t *testing.T) {
	items := newFakeCatalog()
	items.failIDs[7] = true
	items.failIDs[8] = true
	c := cart.Cart{"7": 2, "8": 1, "404": 3}

	result, err := Checkout(context.Background(), items, c, "Sam", "15550000", placed)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
	assert.Equal(t, []string{"Soda", "Burger"}, result.InventoryPending)
	assert.Equal(t, "Note: Inventory update pending for: Soda, Burger", result.InventoryNote())
	assert.Equal(t, 11.25, result.Order.Subtotal)
	assert.Len(t, result.Order.Lines, 2)
}

func TestCheckoutErrors(t *testing.T) {
	items := newFakeCatalog()
	ctx := context.Background()

	_, err := Checkout(ctx, items, cart.New(), "Alex", "1555", placed)
	assert.True(t, errors.Is(err, ErrEmptyCart))

	c := cart.Cart{"7": 1}
	_, err = Checkout(ctx, items, c, "  ", "1555", placed)
	assert.True(t, menu.IsValidation(err))
	assert.Equal(t, 1, c.Len())

	_, err = Checkout(ctx, items, c, "Alex", "+", placed)
	assert.True(t, errors.Is(err, ErrNotConfigured))
	assert.Equal(t, 1, c.Len())
	assert.Empty(t, items.changes)
}

func TestLinesSkipsMissingAndUnpricedItems(t *testing.T) {
	lines, subtotal := Lines(context.Background(), newFakeCatalog(), cart.Cart{"9": 2, "x": 1, "8": 2})
	require.Len(t, lines, 2)
	assert.Equal(t, "Burger", lines[0].Item.Name)
	assert.Equal(t, 16.5, lines[0].Total)
	assert.Equal(t, 0.0, lines[1].Total)
	assert.Equal(t, 16.5, subtotal)
}

func TestLinkEscapesMessage(t *testing.T) {
	assert.Equal(t, "https://wa.me/4477?text=Hi%20there%0Aok", Link(" +4477 ", "Hi there\nok"))
	assert.Equal(t, "https://wa.me/1?text=Fish%20%26%20Chips%20%2B1", Link("1", "Fish & Chips +1"))
}
