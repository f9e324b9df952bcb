package order

import (
	"time"

	"github.com/go-faster/errors"
)

// ErrPaymentFinal signals an attempt to move paymentStatus away from Paid
// through the reconciliation path.
var ErrPaymentFinal = errors.New("payment status is final")

// Transition moves the order to a new fulfilment status, optionally
// updating the payment status in the same step, and appends exactly one
// history entry. It rejects illegal fulfilment edges and any payment
// change away from Paid.
func (o *Order) Transition(to Status, note string, pay *PaymentStatus, at time.Time) error {
	if !to.Valid() {
		return &InvalidTransitionError{From: o.Status, To: to}
	}
	if to != o.Status && !o.Status.CanTransition(to) {
		return &InvalidTransitionError{From: o.Status, To: to}
	}
	if pay != nil && *pay != o.PaymentStatus && o.PaymentStatus == PaymentPaid {
		return ErrPaymentFinal
	}

	o.Status = to
	if pay != nil {
		o.PaymentStatus = *pay
	}
	o.appendHistory(to, note, at)
	return nil
}

// PaymentConfirmation carries everything a confirm-payment transition
// attaches to the order.
type PaymentConfirmation struct {
	PaymentID        string
	GatewayOrderID   string
	GatewaySignature string
	Method           PaymentMethod
	Note             string
	At               time.Time
}

// ConfirmPayment applies a payment confirmation: paymentStatus becomes
// Paid, the order moves to Placed, and the gateway references are attached.
// Fields that are already set are never overwritten, so racing confirmations
// cannot rewrite each other's attribution.
//
// Re-confirming an already-Paid order is an idempotent no-op: it returns
// applied=false with no error and appends no duplicate history entry.
func (o *Order) ConfirmPayment(c PaymentConfirmation) (applied bool, err error) {
	if o.PaymentStatus == PaymentPaid {
		return false, nil
	}
	if o.Status != StatusPlaced && !o.Status.CanTransition(StatusPlaced) {
		return false, &InvalidTransitionError{From: o.Status, To: StatusPlaced}
	}

	o.PaymentStatus = PaymentPaid
	o.Status = StatusPlaced
	if o.PaymentMethod == "" || o.PaymentMethod == MethodPending {
		o.PaymentMethod = c.Method
	}
	if o.PaymentID == "" {
		o.PaymentID = c.PaymentID
	}
	if o.GatewayOrderID == "" {
		o.GatewayOrderID = c.GatewayOrderID
	}
	if o.GatewaySignature == "" {
		o.GatewaySignature = c.GatewaySignature
	}
	o.appendHistory(StatusPlaced, c.Note, c.At)
	return true, nil
}

func (o *Order) appendHistory(s Status, note string, at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}
	o.History = append(o.History, HistoryEntry{Status: s, Timestamp: at, Note: note})
}
