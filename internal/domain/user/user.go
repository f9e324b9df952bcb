package user

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/order"
)

// ErrNotFound is returned when a requested user does not exist.
var ErrNotFound = errors.New("user not found")

// User is the slice of the account record this subsystem needs: contact
// details for notifications and the saved address book.
type User struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Role      string
	Addresses []order.Address
}

// Operator reports whether the user may act on any order.
func (u *User) Operator() bool {
	return u.Role == "admin"
}

// Repository defines the user/address-book operations this subsystem
// consumes. AppendAddress adds a saved address; callers are responsible
// for deduplication before appending.
type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	AppendAddress(ctx context.Context, userID string, addr order.Address) error
}
