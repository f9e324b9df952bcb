package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/order"
	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/user"
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
// The address book lives in a JSONB column on the user row.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByID returns a single user with their saved addresses.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	var (
		u     user.User
		addrs []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, phone, role, addresses FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &addrs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("getting user %q: %w", id, err)
	}

	if err := json.Unmarshal(addrs, &u.Addresses); err != nil {
		return nil, fmt.Errorf("unmarshaling addresses for user %q: %w", id, err)
	}
	return &u, nil
}

// AppendAddress adds an address to the user's book.
// Deduplication against existing entries is the caller's concern.
func (r *UserRepository) AppendAddress(ctx context.Context, userID string, addr order.Address) error {
	doc, err := json.Marshal(addr)
	if err != nil {
		return fmt.Errorf("marshaling address: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET addresses = addresses || $2::jsonb WHERE id = $1`,
		userID, doc,
	)
	if err != nil {
		return fmt.Errorf("appending address for user %q: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}
