package payment

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"

	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/order"
)

const (
	guardBloomCapacity = 1_000_000
	guardBloomFPR      = 0.001
)

// Guard is the optimistic half of the two-layer idempotency mechanism:
// a cheap check that an inbound payment identifier has already been fully
// applied, run before any order-creating work begins. The authoritative
// half is the storage-level unique constraint on the payment identifier,
// which breaks the tie for confirmations racing past this check.
//
// A bloom filter of identifiers applied by this process fronts the
// lookup: an identifier the filter has never seen skips the store probe
// entirely. That shortcut can miss applications done by other replicas or
// before a restart, which is fine: such duplicates fall through to the
// unique constraint and come back as order.ErrDuplicatePaymentID.
type Guard struct {
	orders order.Repository

	mu   sync.RWMutex
	seen *bloom.BloomFilter
}

// NewGuard creates a Guard over the given order store.
func NewGuard(orders order.Repository) *Guard {
	return &Guard{
		orders: orders,
		seen:   bloom.NewWithEstimates(guardBloomCapacity, guardBloomFPR),
	}
}

// AlreadyApplied reports whether an order with the given payment
// identifier exists and is Paid, returning that order when so. An empty
// identifier is never considered applied.
func (g *Guard) AlreadyApplied(ctx context.Context, paymentID string) (*order.Order, bool, error) {
	if paymentID == "" {
		return nil, false, nil
	}

	g.mu.RLock()
	maybe := g.seen.TestString(paymentID)
	g.mu.RUnlock()
	if !maybe {
		return nil, false, nil
	}

	o, err := g.orders.FindByPaymentID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "find order by payment id")
	}
	if o.PaymentStatus != order.PaymentPaid {
		return nil, false, nil
	}
	return o, true, nil
}

// MarkApplied records that a payment identifier has been fully applied by
// this process.
func (g *Guard) MarkApplied(paymentID string) {
	if paymentID == "" {
		return
	}
	g.mu.Lock()
	g.seen.AddString(paymentID)
	g.mu.Unlock()
}
