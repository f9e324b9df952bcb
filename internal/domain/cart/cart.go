// Package cart models the per-user mutable staging area that order
// materialization consumes.
package cart

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ItemKind tags a cart entry as either a catalog reference or an ad-hoc
// item carrying its own name and price.
type ItemKind uint8

const (
	// KindCatalog references a product in the catalog. Name, price, and
	// image are resolved at materialization time.
	KindCatalog ItemKind = iota + 1
	// KindAdHoc carries its own name, price, and image as given by the
	// caller. No catalog lookup happens for it.
	KindAdHoc
)

// Item is a single cart entry.
type Item struct {
	Kind      ItemKind
	ProductID string // KindCatalog only

	// Ad-hoc fields. For catalog entries these hold the values captured
	// when the item was added, which materialization ignores in favour of
	// the current catalog record.
	Name  string
	Price decimal.Decimal
	Image string

	Quantity int
	Size     string
	Color    string
}

// Cart is a user's current staging area. It is cleared (emptied, not
// deleted) after its contents are materialized into an order.
type Cart struct {
	UserID    string
	Items     []Item
	UpdatedAt time.Time
}

// Empty reports whether the cart has no items.
func (c *Cart) Empty() bool {
	return c == nil || len(c.Items) == 0
}

// Repository defines the cart store operations this subsystem consumes.
type Repository interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	Clear(ctx context.Context, userID string) error
}
