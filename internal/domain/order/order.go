// Package order owns the Order entity, its state machine, and cart
// materialization into immutable priced line items.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicatePaymentID is returned by the storage layer when a write
	// would attach a payment identifier that another order already holds.
	// Callers treat it as "this payment was already processed", not as a
	// failure.
	ErrDuplicatePaymentID = errors.New("payment id already attached to an order")
)

// ItemKind tags a line item as catalog-backed or ad-hoc.
type ItemKind uint8

const (
	// ItemCatalog is a line item resolved from the product catalog.
	ItemCatalog ItemKind = iota + 1
	// ItemAdHoc is a line item whose name and price were supplied by the
	// caller without a catalog record behind them.
	ItemAdHoc
)

// LineItem is one priced entry of an order. Line items are immutable once
// the order is created: the price captured here does not change even if
// the catalog price does.
type LineItem struct {
	Kind      ItemKind        `json:"kind"`
	ProductID string          `json:"productId,omitempty"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image,omitempty"`
	Quantity  int             `json:"quantity"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
}

// LineTotal returns price multiplied by quantity.
func (li LineItem) LineTotal() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Address is a denormalized copy of a shipping address. Orders never hold
// a live reference into the user's address book.
type Address struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	HouseNo  string `json:"houseNo"`
	Street   string `json:"street"`
	Landmark string `json:"landmark,omitempty"`
	City     string `json:"city"`
	State    string `json:"state"`
	Pincode  string `json:"pincode"`
}

// Complete reports whether the fields required to ship an order are set.
func (a Address) Complete() bool {
	return a.FullName != "" && a.Phone != "" && a.Pincode != ""
}

// Equivalent reports whether two addresses point at the same delivery
// location. Matching is on postal code plus house/unit identifier, which
// is how the address book is deduplicated.
func (a Address) Equivalent(b Address) bool {
	return a.Pincode == b.Pincode && a.HouseNo == b.HouseNo
}

// HistoryEntry is one append-only record of a status change.
type HistoryEntry struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

// NotificationState is per-order bookkeeping for best-effort confirmation
// messages, kept so failed sends can be retried manually.
type NotificationState struct {
	CustomerSent bool      `json:"customerSent"`
	OperatorSent bool      `json:"operatorSent"`
	LastError    string    `json:"lastError,omitempty"`
	LastAttempt  time.Time `json:"lastAttempt,omitzero"`
}

// Order is the central entity: an immutable set of priced line items plus
// the payment/fulfilment state machine around them.
type Order struct {
	ID     string
	Number string // human-readable, monotonic, assigned exactly once at creation
	UserID string

	Items          []LineItem
	Subtotal       decimal.Decimal
	ShippingCharge decimal.Decimal
	TotalAmount    decimal.Decimal

	Status        Status
	PaymentStatus PaymentStatus
	PaymentMethod PaymentMethod

	PaymentID        string // gateway payment id; unique across orders when set
	GatewayOrderID   string
	GatewaySignature string
	ReceivingUPI     string // admin account that received the payment, for audit
	UPITransactionID string // user-supplied reference on self-confirmed payments

	ShippingAddress Address
	InvoicePath     string
	InvoiceURL      string
	Notes           string

	Notifications NotificationState
	History       []HistoryEntry

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ListFilter narrows and pages the operator order listing.
type ListFilter struct {
	Status Status
	Page   int
	Limit  int
}

// Repository defines persistence for orders. Implementations must enforce
// uniqueness of the payment identifier at the storage layer and surface a
// violation as ErrDuplicatePaymentID from Create and Update.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Update(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	List(ctx context.Context, f ListFilter) ([]Order, int, error)
	SetInvoice(ctx context.Context, id, path, url string) error
	SetNotificationState(ctx context.Context, id string, ns NotificationState) error
}
