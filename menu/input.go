package menu

import (
	"strconv"
	"strings"
)

// ItemInput is the raw form of an item create or update.
type ItemInput struct {
	CategoryID  string `yaml:"category_id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Price       string `yaml:"price"`
	Quantity    string `yaml:"quantity"`
}

// ItemFields is a validated ItemInput. A nil Quantity leaves the stored
// quantity alone on update and means zero on create.
type ItemFields struct {
	CategoryID  int64
	Name        string
	Description *string
	Price       *float64
	Quantity    *int
}

// Validate coerces the raw input. An empty price becomes nil and a negative
// quantity is clamped to zero.
func (in ItemInput) Validate() (ItemFields, error) {
	var out ItemFields
	out.Name = strings.TrimSpace(in.Name)
	if out.Name == "" {
		return out, NewValidationError("name", "Item name is required")
	}

	categoryID, err := strconv.ParseInt(strings.TrimSpace(in.CategoryID), 10, 64)
	if err != nil || categoryID <= 0 {
		return out, NewValidationError("category_id", "Choose a valid category")
	}
	out.CategoryID = categoryID
	out.Description = StringPointer(in.Description)

	if raw := strings.TrimPrefix(strings.TrimSpace(in.Price), "$"); raw != "" {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil || price < 0 {
			return out, NewValidationError("price", "Price must be a non-negative number")
		}
		price = RoundCents(price)
		out.Price = &price
	}

	if raw := strings.TrimSpace(in.Quantity); raw != "" {
		qty, err := strconv.Atoi(raw)
		if err != nil {
			return out, NewValidationError("quantity", "Quantity must be a whole number")
		}
		qty = ClampQuantity(qty)
		out.Quantity = &qty
	}
	return out, nil
}

// Apply copies the fields onto item, keeping its id, image and creation time.
func (f ItemFields) Apply(item Item) Item {
	item.CategoryID = f.CategoryID
	item.Name = f.Name
	item.Description = f.Description
	item.Price = f.Price
	if f.Quantity != nil {
		item.Quantity = *f.Quantity
	}
	return item
}

// ValidateCategoryName trims and checks a category name.
func ValidateCategoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", NewValidationError("name", "Category name is required")
	}
	return name, nil
}
