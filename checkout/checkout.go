// Package checkout turns a cart into an order message and a WhatsApp link.
package checkout

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/agentuity/storefront/cart"
	"github.com/agentuity/storefront/menu"
	"github.com/cockroachdb/errors"
)

var (
	ErrEmptyCart     = errors.New("Your cart is empty")
	ErrNotConfigured = errors.New("WhatsApp checkout is not configured")
)

const separator = "=============================="

// Catalog resolves cart entries and records stock changes.
type Catalog interface {
	Item(ctx context.Context, id int64) (menu.Item, bool)
	ChangeQuantity(ctx context.Context, id int64, delta int) bool
}

// Line is a priced cart entry.
type Line struct {
	Item     menu.Item
	Quantity int
	Total    float64
}

// Lines prices the cart. Entries whose item cannot be found are skipped.
func Lines(ctx context.Context, items Catalog, c cart.Cart) ([]Line, float64) {
	var lines []Line
	var subtotal float64
	for _, entry := range c.Lines() {
		id, err := strconv.ParseInt(entry.ItemID, 10, 64)
		if err != nil {
			continue
		}
		item, ok := items.Item(ctx, id)
		if !ok {
			continue
		}
		total := item.LineTotal(entry.Quantity)
		subtotal += total
		lines = append(lines, Line{Item: item, Quantity: entry.Quantity, Total: total})
	}
	return lines, menu.RoundCents(subtotal)
}

// Order is a priced cart for a named customer.
type Order struct {
	Customer string
	Lines    []Line
	Subtotal float64
	PlacedAt time.Time
}

// Message renders the plain-text order summary.
func (o Order) Message() string {
	var b strings.Builder
	fmt.Fprintf(&b, "🛒 Order from %s\n", o.Customer)
	b.WriteString(separator + "\n")
	for _, line := range o.Lines {
		fmt.Fprintf(&b, "%s x%d - %s\n", line.Item.Name, line.Quantity, menu.FormatPrice(line.Total))
	}
	b.WriteString(separator + "\n")
	fmt.Fprintf(&b, "Subtotal: %s\n", menu.FormatPrice(o.Subtotal))
	fmt.Fprintf(&b, "Time: %s", o.PlacedAt.Format("2006-01-02 15:04"))
	return b.String()
}

// Link returns the wa.me deep link that opens a chat with phone prefilled
// with message. A leading + on the phone number is dropped.
func Link(phone, message string) string {
	text := strings.ReplaceAll(url.QueryEscape(message), "+", "%20")
	return "https://wa.me/" + strings.TrimLeft(strings.TrimSpace(phone), "+") + "?text=" + text
}

// Result is a completed checkout.
type Result struct {
	Order   Order
	Message string
	URL     string
	// InventoryPending lists the items whose stock could not be decremented.
	InventoryPending []string
}

// InventoryNote is the notice shown when some stock updates failed, or ""
// when none did.
func (r Result) InventoryNote() string {
	if len(r.InventoryPending) == 0 {
		return ""
	}
	return "Note: Inventory update pending for: " + strings.Join(r.InventoryPending, ", ")
}

// Checkout prices c for customer, decrements stock for every line and
// builds the WhatsApp link. Once the link is built the cart is cleared,
// whatever happened to the stock updates.
func Checkout(ctx context.Context, items Catalog, c cart.Cart, customer, phone string, now time.Time) (Result, error) {
	if c.IsEmpty() {
		return Result{}, ErrEmptyCart
	}
	customer = strings.TrimSpace(customer)
	if customer == "" {
		return Result{}, menu.NewValidationError("customer_name", "Please enter your name for the order")
	}
	if strings.TrimLeft(strings.TrimSpace(phone), "+") == "" {
		return Result{}, ErrNotConfigured
	}

	lines, subtotal := Lines(ctx, items, c)
	order := Order{Customer: customer, Lines: lines, Subtotal: subtotal, PlacedAt: now}

	var pending []string
	for _, line := range lines {
		if !items.ChangeQuantity(ctx, line.Item.ID, -line.Quantity) {
			pending = append(pending, line.Item.Name)
		}
	}

	message := order.Message()
	result := Result{Order: order, Message: message, URL: Link(phone, message), InventoryPending: pending}
	c.Clear()
	return result, nil
}
