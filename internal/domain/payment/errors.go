package payment

import "github.com/go-faster/errors"

var (
	// ErrInvalidSignature means an inbound confirmation failed HMAC
	// verification. Nothing is mutated for such events.
	ErrInvalidSignature = errors.New("invalid payment signature")
	// ErrEmptyCart means a cart-first flow was attempted with nothing to
	// materialize.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrAccessDenied means the acting user does not own the referenced
	// order.
	ErrAccessDenied = errors.New("access denied")
	// ErrAlreadyConfirmed means a self-confirmation was attempted on an
	// order that is already Paid.
	ErrAlreadyConfirmed = errors.New("payment already confirmed")
	// ErrMalformedEvent means a webhook body did not carry a usable
	// payment-captured payload.
	ErrMalformedEvent = errors.New("malformed webhook event")
)

// Result identifies the order a confirmation converged on.
// AlreadyProcessed is set when this event was a duplicate and the order
// had been materialized by an earlier (or concurrently racing) event;
// that outcome is idempotent success, not an error.
type Result struct {
	OrderID          string
	OrderNumber      string
	AlreadyProcessed bool
}
