package payment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/cart"
	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/order"
	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/user"
)

// RemoteOrder is the gateway's handle for a payment about to be collected.
type RemoteOrder struct {
	ID       string
	Amount   int64 // minor currency units
	Currency string
}

// Gateway creates remote orders with the payment provider. It is an
// opaque collaborator: this subsystem never interprets its identifiers.
type Gateway interface {
	CreateRemoteOrder(ctx context.Context, amountMinorUnits int64, currency, receipt string, notes map[string]string) (*RemoteOrder, error)
}

// InvoiceGenerator produces an invoice artifact for a finalized order and
// returns its storage path and public URL. Failures never invalidate the
// order; it is simply left without an artifact until a retry succeeds.
type InvoiceGenerator interface {
	Generate(ctx context.Context, o *order.Order) (path, url string, err error)
}

// ChannelResult is the outcome of one notification channel attempt.
type ChannelResult struct {
	Channel string
	Sent    bool
	Err     error
}

// Notifier dispatches confirmation messages to the customer and the store
// operator. Channels are independently idempotent (via the order's sent
// flags) and independently failure-isolated.
type Notifier interface {
	Notify(ctx context.Context, o *order.Order) []ChannelResult
}

// Config carries the coordinator's static configuration. The receiving
// UPI identifier is resolved once at construction, not fetched from
// settings storage mid-flow.
type Config struct {
	ReceivingUPI      string
	Currency          string
	SideEffectTimeout time.Duration
}

// Service is the reconciliation coordinator: every confirmation signal,
// whatever its channel, funnels through it to converge on exactly one
// Paid order per payment identifier.
type Service struct {
	cfg      Config
	verifier *Verifier
	guard    *Guard
	mat      *order.Materializer
	orders   order.Repository
	carts    cart.Repository
	users    user.Repository
	gateway  Gateway
	invoices InvoiceGenerator
	notifier Notifier
	lg       *zap.Logger

	effects effectGroup
}

// NewService wires the reconciliation coordinator.
func NewService(
	cfg Config,
	verifier *Verifier,
	guard *Guard,
	mat *order.Materializer,
	orders order.Repository,
	carts cart.Repository,
	users user.Repository,
	gateway Gateway,
	invoices InvoiceGenerator,
	notifier Notifier,
	lg *zap.Logger,
) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.SideEffectTimeout <= 0 {
		cfg.SideEffectTimeout = 30 * time.Second
	}
	return &Service{
		cfg:      cfg,
		verifier: verifier,
		guard:    guard,
		mat:      mat,
		orders:   orders,
		carts:    carts,
		users:    users,
		gateway:  gateway,
		invoices: invoices,
		notifier: notifier,
		lg:       lg.Named("reconcile"),
	}
}

// ReceivingUPI exposes the configured receiving account identifier.
func (s *Service) ReceivingUPI() string { return s.cfg.ReceivingUPI }

// CreateRemoteOrder opens a gateway order for the user's current cart
// checkout. The checkout metadata travels as gateway notes so a webhook
// arriving without local context can still reconcile.
func (s *Service) CreateRemoteOrder(ctx context.Context, userID string, amount decimal.Decimal, shippingAddress *order.Address) (*RemoteOrder, error) {
	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	if c.Empty() {
		return nil, ErrEmptyCart
	}

	notes := map[string]string{"userId": userID}
	if shippingAddress != nil {
		raw, err := json.Marshal(shippingAddress)
		if err == nil {
			notes["shippingAddress"] = string(raw)
		}
	}

	receipt := "receipt_" + uuid.New().String()
	ro, err := s.gateway.CreateRemoteOrder(ctx, toMinorUnits(amount), s.cfg.Currency, receipt, notes)
	if err != nil {
		return nil, errors.Wrap(err, "create remote order")
	}
	return ro, nil
}

// CreateRemoteOrderForOrder opens a gateway order for an already-placed
// pending order (the buy-now/UPI flow) and records the gateway reference
// and receiving account on the order.
func (s *Service) CreateRemoteOrderForOrder(ctx context.Context, userID, orderID string, amount decimal.Decimal) (*RemoteOrder, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrAccessDenied
	}

	notes := map[string]string{
		"userId":     userID,
		"orderId":    orderID,
		"adminUpiId": s.cfg.ReceivingUPI,
	}
	ro, err := s.gateway.CreateRemoteOrder(ctx, toMinorUnits(amount), s.cfg.Currency, "order_"+orderID, notes)
	if err != nil {
		return nil, errors.Wrap(err, "create remote order")
	}

	o.GatewayOrderID = ro.ID
	o.ReceivingUPI = s.cfg.ReceivingUPI
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "attach gateway order")
	}
	return ro, nil
}

// CheckoutConfirmation is a client-redirect confirmation for the
// cart-first flow.
type CheckoutConfirmation struct {
	UserID          string
	GatewayOrderID  string
	PaymentID       string
	Signature       string
	ShippingAddress order.Address
}

// ConfirmCheckout handles the client-redirect confirmation of a cart
// checkout: signature check, idempotency guard, then materialization of
// the user's cart into a new Paid order.
func (s *Service) ConfirmCheckout(ctx context.Context, c CheckoutConfirmation) (*Result, error) {
	if o, done, err := s.guard.AlreadyApplied(ctx, c.PaymentID); err != nil {
		return nil, err
	} else if done {
		return &Result{OrderID: o.ID, OrderNumber: o.Number, AlreadyProcessed: true}, nil
	}

	if !s.verifier.VerifyCheckout(c.GatewayOrderID, c.PaymentID, c.Signature) {
		return nil, ErrInvalidSignature
	}

	o, err := s.createOrderFromCart(ctx, c.UserID, order.PaymentConfirmation{
		PaymentID:        c.PaymentID,
		GatewayOrderID:   c.GatewayOrderID,
		GatewaySignature: c.Signature,
		Method:           order.MethodGateway,
		Note:             "Order auto-created after payment confirmation",
	}, c.ShippingAddress)
	if err != nil {
		if errors.Is(err, order.ErrDuplicatePaymentID) {
			return s.lostRace(ctx, c.PaymentID)
		}
		if errors.Is(err, ErrEmptyCart) {
			if res, ok := s.paidElsewhere(ctx, c.PaymentID); ok {
				return res, nil
			}
		}
		return nil, err
	}

	s.saveAddressAfterPayment(ctx, c.UserID, c.ShippingAddress)
	return &Result{OrderID: o.ID, OrderNumber: o.Number}, nil
}

// ExistingOrderConfirmation is a client-redirect confirmation for an
// order that was placed before payment (address-first flow).
type ExistingOrderConfirmation struct {
	UserID         string
	OrderID        string
	GatewayOrderID string
	PaymentID      string
	Signature      string
}

// ConfirmExistingOrder handles payment confirmation for a pre-existing
// pending order.
func (s *Service) ConfirmExistingOrder(ctx context.Context, c ExistingOrderConfirmation) (*Result, error) {
	if o, done, err := s.guard.AlreadyApplied(ctx, c.PaymentID); err != nil {
		return nil, err
	} else if done {
		return &Result{OrderID: o.ID, OrderNumber: o.Number, AlreadyProcessed: true}, nil
	}

	if !s.verifier.VerifyCheckout(c.GatewayOrderID, c.PaymentID, c.Signature) {
		return nil, ErrInvalidSignature
	}

	o, err := s.orders.GetByID(ctx, c.OrderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != c.UserID {
		return nil, ErrAccessDenied
	}

	return s.confirmExisting(ctx, o, order.PaymentConfirmation{
		PaymentID:        c.PaymentID,
		GatewayOrderID:   c.GatewayOrderID,
		GatewaySignature: c.Signature,
		Method:           order.MethodUPI,
		Note:             "Payment verified via gateway UPI",
	})
}

// HandleWebhook processes a raw gateway notification. The protocol
// variant is chosen by what the event references, not by the channel it
// arrived on: an order reference always takes the update-existing path,
// a bare user reference takes the cart-first path.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) (*Result, error) {
	if !s.verifier.VerifyWebhook(body, signature) {
		return nil, ErrInvalidSignature
	}

	ev, err := ParseWebhookEvent(body)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedEvent, err.Error())
	}
	if ev.Event != EventPaymentCaptured || ev.PaymentID == "" {
		// Not a capture: acknowledged and ignored.
		return &Result{}, nil
	}

	if o, done, err := s.guard.AlreadyApplied(ctx, ev.PaymentID); err != nil {
		return nil, err
	} else if done {
		return &Result{OrderID: o.ID, OrderNumber: o.Number, AlreadyProcessed: true}, nil
	}

	switch {
	case ev.OrderID != "":
		o, err := s.orders.GetByID(ctx, ev.OrderID)
		if err != nil {
			return nil, err
		}
		res, err := s.confirmExisting(ctx, o, order.PaymentConfirmation{
			PaymentID:      ev.PaymentID,
			GatewayOrderID: ev.GatewayOrderID,
			Method:         order.MethodUPI,
			Note:           "Payment confirmed via webhook",
		})
		if err != nil {
			return nil, err
		}
		return res, nil

	case ev.UserID != "":
		// The event carries only a user reference, so this materializes
		// the user's cart as it stands now, which may have drifted since
		// checkout began.
		o, err := s.createOrderFromCart(ctx, ev.UserID, order.PaymentConfirmation{
			PaymentID:      ev.PaymentID,
			GatewayOrderID: ev.GatewayOrderID,
			Method:         order.MethodGateway,
			Note:           "Order auto-created after payment confirmation",
		}, ev.ShippingAddress)
		if err != nil {
			if errors.Is(err, order.ErrDuplicatePaymentID) {
				return s.lostRace(ctx, ev.PaymentID)
			}
			if errors.Is(err, ErrEmptyCart) {
				if res, ok := s.paidElsewhere(ctx, ev.PaymentID); ok {
					return res, nil
				}
			}
			return nil, err
		}
		s.saveAddressAfterPayment(ctx, ev.UserID, ev.ShippingAddress)
		return &Result{OrderID: o.ID, OrderNumber: o.Number}, nil

	default:
		return nil, errors.Wrap(ErrMalformedEvent, "event carries neither order nor user reference")
	}
}

// SelfConfirm records a manual UPI declaration by the order's owner. It
// is a lower-trust path: no gateway signature backs it, so it carries a
// distinct audit note and never touches the payment-id uniqueness anchor.
func (s *Service) SelfConfirm(ctx context.Context, userID, orderID, upiTransactionID string) (*order.Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrAccessDenied
	}
	if o.PaymentStatus == order.PaymentPaid {
		return nil, ErrAlreadyConfirmed
	}

	applied, err := o.ConfirmPayment(order.PaymentConfirmation{
		Method: order.MethodUPI,
		Note:   "Payment confirmed by user (UPI)",
		At:     time.Now(),
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrAlreadyConfirmed
	}
	if upiTransactionID != "" {
		o.UPITransactionID = upiTransactionID
	}

	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "persist self-confirmation")
	}
	return o, nil
}

// confirmExisting is the shared guarded core of the address-first
// protocol: apply the confirm-payment transition, persist it, and treat a
// storage-level uniqueness loss as "already processed".
func (s *Service) confirmExisting(ctx context.Context, o *order.Order, c order.PaymentConfirmation) (*Result, error) {
	if c.At.IsZero() {
		c.At = time.Now()
	}

	applied, err := o.ConfirmPayment(c)
	if err != nil {
		return nil, err
	}
	if !applied {
		return &Result{OrderID: o.ID, OrderNumber: o.Number, AlreadyProcessed: true}, nil
	}
	o.ReceivingUPI = s.cfg.ReceivingUPI

	if err := s.orders.Update(ctx, o); err != nil {
		if errors.Is(err, order.ErrDuplicatePaymentID) {
			return s.lostRace(ctx, c.PaymentID)
		}
		return nil, errors.Wrap(err, "persist confirmation")
	}
	s.guard.MarkApplied(c.PaymentID)

	s.saveAddressAfterPayment(ctx, o.UserID, o.ShippingAddress)
	s.dispatchSideEffects(o)
	return &Result{OrderID: o.ID, OrderNumber: o.Number}, nil
}

// createOrderFromCart is the shared guarded core of the cart-first
// protocol: materialize the user's current cart and persist a new order
// born Placed/Paid. The cart is cleared only after the order is durable.
func (s *Service) createOrderFromCart(ctx context.Context, userID string, c order.PaymentConfirmation, shipTo order.Address) (*order.Order, error) {
	crt, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	if crt.Empty() {
		return nil, ErrEmptyCart
	}

	m, err := s.mat.Materialize(ctx, crt.Items)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	o := &order.Order{
		ID:               uuid.New().String(),
		UserID:           userID,
		Items:            m.Items,
		Subtotal:         m.Subtotal,
		ShippingCharge:   m.ShippingCharge,
		TotalAmount:      m.Total,
		Status:           order.StatusPlaced,
		PaymentStatus:    order.PaymentPaid,
		PaymentMethod:    c.Method,
		PaymentID:        c.PaymentID,
		GatewayOrderID:   c.GatewayOrderID,
		GatewaySignature: c.GatewaySignature,
		ReceivingUPI:     s.cfg.ReceivingUPI,
		ShippingAddress:  shipTo,
		History: []order.HistoryEntry{
			{Status: order.StatusPlaced, Timestamp: now, Note: c.Note},
		},
		CreatedAt: now,
	}

	if err := s.orders.Create(ctx, o); err != nil {
		// ErrDuplicatePaymentID passes through for the caller to map.
		return nil, err
	}
	s.guard.MarkApplied(c.PaymentID)

	if err := s.carts.Clear(ctx, userID); err != nil {
		s.lg.Warn("clear cart after order creation",
			zap.String("order", o.ID),
			zap.String("user", userID),
			zap.Error(err))
	}

	s.dispatchSideEffects(o)
	return o, nil
}

// paidElsewhere resolves an empty cart against the store. A Paid order
// holding the payment id means the confirmation already converged on
// another replica or before a restart and cleared the cart; the guard's
// in-process filter cannot see those applications.
func (s *Service) paidElsewhere(ctx context.Context, paymentID string) (*Result, bool) {
	if paymentID == "" {
		return nil, false
	}
	o, err := s.orders.FindByPaymentID(ctx, paymentID)
	if err != nil || o.PaymentStatus != order.PaymentPaid {
		return nil, false
	}
	s.guard.MarkApplied(paymentID)
	return &Result{OrderID: o.ID, OrderNumber: o.Number, AlreadyProcessed: true}, true
}

// lostRace resolves a duplicate-key loss to the order that won.
func (s *Service) lostRace(ctx context.Context, paymentID string) (*Result, error) {
	s.guard.MarkApplied(paymentID)
	o, err := s.orders.FindByPaymentID(ctx, paymentID)
	if err != nil {
		// The winning write is committed; surface the id-less result
		// rather than failing a payment that did converge.
		s.lg.Warn("lookup winning order after duplicate payment id",
			zap.String("payment_id", paymentID), zap.Error(err))
		return &Result{AlreadyProcessed: true}, nil
	}
	return &Result{OrderID: o.ID, OrderNumber: o.Number, AlreadyProcessed: true}, nil
}

// saveAddressAfterPayment appends the shipping address to the user's
// saved book, only after the payment is confirmed and only when no
// equivalent address is saved yet. Failures are logged, never surfaced:
// the address book is a convenience, not part of the order.
func (s *Service) saveAddressAfterPayment(ctx context.Context, userID string, addr order.Address) {
	if userID == "" || addr.Pincode == "" {
		return
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.lg.Warn("load user for address save", zap.String("user", userID), zap.Error(err))
		return
	}
	for _, saved := range u.Addresses {
		if saved.Equivalent(addr) {
			return
		}
	}
	if err := s.users.AppendAddress(ctx, userID, addr); err != nil {
		s.lg.Warn("save address after payment", zap.String("user", userID), zap.Error(err))
	}
}

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
