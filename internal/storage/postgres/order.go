package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/order"
)

// paymentIDConstraint is the partial unique index on orders.payment_id.
// A violation means another order already claimed the payment identifier.
const paymentIDConstraint = "orders_payment_id_key"

const createOrderSQL = `INSERT INTO orders (
		id, order_number, user_id, items, subtotal, shipping_charge, total_amount,
		status, payment_status, payment_method, payment_id, gateway_order_id,
		gateway_signature, receiving_upi, upi_transaction_id, shipping_address,
		notes, status_history
	) VALUES (
		$1, 'TCS' || lpad(nextval('order_numbers')::text, 6, '0'), $2, $3, $4, $5, $6,
		$7, $8, $9, NULLIF($10, ''), $11, $12, $13, $14, $15, $16, $17
	)
	RETURNING order_number, created_at, updated_at`

const updateOrderSQL = `UPDATE orders SET
		status = $2, payment_status = $3, payment_method = $4,
		payment_id = NULLIF($5, ''), gateway_order_id = $6, gateway_signature = $7,
		receiving_upi = $8, upi_transaction_id = $9, shipping_address = $10,
		notes = $11, status_history = $12, updated_at = now()
	WHERE id = $1`

const orderColumns = `id, order_number, user_id, items, subtotal, shipping_charge,
		total_amount, status, payment_status, payment_method,
		COALESCE(payment_id, ''), gateway_order_id, gateway_signature,
		receiving_upi, upi_transaction_id, shipping_address,
		COALESCE(invoice_path, ''), COALESCE(invoice_url, ''), notes,
		customer_notified, operator_notified, notify_error, notify_last_attempt,
		status_history, created_at, updated_at`

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. The order number is drawn from the
// order_numbers sequence inside the insert, so it is assigned exactly
// once and stays monotonic. A duplicate payment id surfaces as
// order.ErrDuplicatePaymentID.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	items, history, addr, err := marshalOrderDocs(o)
	if err != nil {
		return err
	}

	err = r.pool.QueryRow(ctx, createOrderSQL,
		o.ID, o.UserID, items, o.Subtotal, o.ShippingCharge, o.TotalAmount,
		o.Status, o.PaymentStatus, o.PaymentMethod, o.PaymentID, o.GatewayOrderID,
		o.GatewaySignature, o.ReceivingUPI, o.UPITransactionID, addr,
		o.Notes, history,
	).Scan(&o.Number, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, paymentIDConstraint) {
			return order.ErrDuplicatePaymentID
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Update persists the mutable fields of an order. Attaching a payment id
// that another order holds surfaces as order.ErrDuplicatePaymentID, the
// storage half of the idempotency guard.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	_, history, addr, err := marshalOrderDocs(o)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, updateOrderSQL,
		o.ID, o.Status, o.PaymentStatus, o.PaymentMethod,
		o.PaymentID, o.GatewayOrderID, o.GatewaySignature,
		o.ReceivingUPI, o.UPITransactionID, addr, o.Notes, history,
	)
	if err != nil {
		if isUniqueViolation(err, paymentIDConstraint) {
			return order.ErrDuplicatePaymentID
		}
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// GetByID returns a single order.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// FindByPaymentID returns the order holding the given payment identifier.
func (r *OrderRepository) FindByPaymentID(ctx context.Context, paymentID string) (*order.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_id = $1`, paymentID)
}

func (r *OrderRepository) getOne(ctx context.Context, sql, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("querying order: %w", err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("scanning order: %w", err)
	}
	return &o, nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// List returns a page of orders for the operator view, optionally
// filtered by status, together with the total match count.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, int, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		string(f.Status), f.Limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, err
	}

	var total int
	err = r.pool.QueryRow(ctx,
		`SELECT count(*) FROM orders WHERE ($1 = '' OR status = $1)`,
		string(f.Status),
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}
	return orders, total, nil
}

// SetInvoice records the generated invoice artifact location.
func (r *OrderRepository) SetInvoice(ctx context.Context, id, path, url string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE orders SET invoice_path = $2, invoice_url = $3, updated_at = now() WHERE id = $1`,
		id, path, url,
	)
	if err != nil {
		return fmt.Errorf("recording invoice for order %q: %w", id, err)
	}
	return nil
}

// SetNotificationState records notification bookkeeping.
func (r *OrderRepository) SetNotificationState(ctx context.Context, id string, ns order.NotificationState) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE orders SET customer_notified = $2, operator_notified = $3,
			notify_error = $4, notify_last_attempt = $5, updated_at = now()
		WHERE id = $1`,
		id, ns.CustomerSent, ns.OperatorSent, ns.LastError, nullTime(ns.LastAttempt),
	)
	if err != nil {
		return fmt.Errorf("recording notification state for order %q: %w", id, err)
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func marshalOrderDocs(o *order.Order) (items, history, addr []byte, err error) {
	if items, err = json.Marshal(o.Items); err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling order items: %w", err)
	}
	if history, err = json.Marshal(o.History); err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling status history: %w", err)
	}
	if addr, err = json.Marshal(o.ShippingAddress); err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling shipping address: %w", err)
	}
	return items, history, addr, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                    order.Order
		items, history, addr []byte
		subtotal             decimal.Decimal
		shipping             decimal.Decimal
		total                decimal.Decimal
		lastAttempt          *time.Time
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &items, &subtotal, &shipping,
		&total, &o.Status, &o.PaymentStatus, &o.PaymentMethod,
		&o.PaymentID, &o.GatewayOrderID, &o.GatewaySignature,
		&o.ReceivingUPI, &o.UPITransactionID, &addr,
		&o.InvoicePath, &o.InvoiceURL, &o.Notes,
		&o.Notifications.CustomerSent, &o.Notifications.OperatorSent,
		&o.Notifications.LastError, &lastAttempt,
		&history, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Subtotal, o.ShippingCharge, o.TotalAmount = subtotal, shipping, total
	if lastAttempt != nil {
		o.Notifications.LastAttempt = *lastAttempt
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling order items: %w", err)
	}
	if err := json.Unmarshal(history, &o.History); err != nil {
		return o, fmt.Errorf("unmarshaling status history: %w", err)
	}
	if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
		return o, fmt.Errorf("unmarshaling shipping address: %w", err)
	}
	return o, nil
}
