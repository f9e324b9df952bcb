package order

import "fmt"

// Status is the fulfilment axis of the order lifecycle.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusPlaced    Status = "Placed"
	StatusShipped   Status = "Shipped"
	StatusDelivered Status = "Delivered"
	StatusCancelled Status = "Cancelled"
)

// PaymentStatus is the payment axis, orthogonal to fulfilment. Paid is
// terminal for this subsystem: only an out-of-band refund path may move
// away from it.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "Pending"
	PaymentPaid     PaymentStatus = "Paid"
	PaymentFailed   PaymentStatus = "Failed"
	PaymentRefunded PaymentStatus = "Refunded"
)

// PaymentMethod records how an order was (or will be) paid.
type PaymentMethod string

const (
	MethodCOD     PaymentMethod = "COD"
	MethodGateway PaymentMethod = "Gateway"
	MethodUPI     PaymentMethod = "UPI"
	MethodPending PaymentMethod = "Pending"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCOD, MethodGateway, MethodUPI, MethodPending:
		return true
	}
	return false
}

// nextStatuses enumerates the legal fulfilment transitions. Delivered and
// Cancelled are terminal.
var nextStatuses = map[Status][]Status{
	StatusPending: {StatusPlaced, StatusCancelled},
	StatusPlaced:  {StatusShipped, StatusCancelled},
	StatusShipped: {StatusDelivered, StatusCancelled},
}

// CanTransition reports whether moving from s to the target status is legal.
func (s Status) CanTransition(to Status) bool {
	for _, n := range nextStatuses[s] {
		if n == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPlaced, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// InvalidTransitionError signals an attempt to move an order along an edge
// the state machine does not allow.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition %s -> %s", e.From, e.To)
}
