package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/cart"
	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/product"
)

// ErrNoItems is returned when materialization is asked to price an empty
// set of entries.
var ErrNoItems = errors.New("no items to materialize")

// UnresolvableProductError indicates a cart entry references a catalog
// product that no longer resolves. The whole materialization fails; no
// partial order is produced.
type UnresolvableProductError struct {
	ProductID string
}

func (e *UnresolvableProductError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// Materialization is the immutable priced result of converting cart
// entries into order line items.
type Materialization struct {
	Items          []LineItem
	Subtotal       decimal.Decimal
	ShippingCharge decimal.Decimal
	Total          decimal.Decimal
}

// Materializer converts cart entries (or explicit line entries) into
// priced order line items and applies the shipping-fee rule. It performs
// no persistence; callers decide whether to create an order and whether
// to clear the source cart.
type Materializer struct {
	products         product.Repository
	freeShippingOver decimal.Decimal
	flatShippingFee  decimal.Decimal
}

// NewMaterializer creates a Materializer. Shipping is free when the
// subtotal exceeds freeShippingOver; otherwise flatShippingFee applies.
func NewMaterializer(products product.Repository, freeShippingOver, flatShippingFee decimal.Decimal) *Materializer {
	return &Materializer{
		products:         products,
		freeShippingOver: freeShippingOver,
		flatShippingFee:  flatShippingFee,
	}
}

// Materialize prices every entry. Catalog entries resolve the product's
// current name, price, and image; the resolved price is captured into the
// line item and never updated afterwards. Ad-hoc entries pass through as
// given. A catalog entry that fails to resolve fails the whole call.
func (m *Materializer) Materialize(ctx context.Context, entries []cart.Item) (*Materialization, error) {
	if len(entries) == 0 {
		return nil, ErrNoItems
	}

	items := make([]LineItem, 0, len(entries))
	subtotal := decimal.Zero
	for _, e := range entries {
		qty := e.Quantity
		if qty <= 0 {
			qty = 1
		}

		var li LineItem
		switch e.Kind {
		case cart.KindCatalog:
			p, err := m.products.GetByID(ctx, e.ProductID)
			if err != nil {
				if errors.Is(err, product.ErrNotFound) {
					return nil, &UnresolvableProductError{ProductID: e.ProductID}
				}
				return nil, errors.Wrapf(err, "resolve product %s", e.ProductID)
			}
			li = LineItem{
				Kind:      ItemCatalog,
				ProductID: p.ID,
				Name:      p.Name,
				Price:     p.Price,
				Image:     p.Image,
				Quantity:  qty,
				Size:      e.Size,
				Color:     e.Color,
			}
		default:
			li = LineItem{
				Kind:     ItemAdHoc,
				Name:     e.Name,
				Price:    e.Price,
				Image:    e.Image,
				Quantity: qty,
				Size:     e.Size,
				Color:    e.Color,
			}
		}

		items = append(items, li)
		subtotal = subtotal.Add(li.LineTotal())
	}

	shipping := m.flatShippingFee
	if subtotal.GreaterThan(m.freeShippingOver) {
		shipping = decimal.Zero
	}

	return &Materialization{
		Items:          items,
		Subtotal:       subtotal,
		ShippingCharge: shipping,
		Total:          subtotal.Add(shipping),
	}, nil
}
