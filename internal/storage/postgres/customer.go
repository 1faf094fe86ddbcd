package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/northcart/checkout/internal/domain/customer"
)

// Soft-deleted customers are filtered here rather than at call sites.
const (
	getCustomerSQL = `SELECT c.id, c.email, c.status,
			COALESCE(array_agg(m.group_id) FILTER (WHERE m.group_id IS NOT NULL), '{}')
		FROM customers c
		LEFT JOIN customer_group_members m ON m.customer_id = c.id
		WHERE c.id = $1 AND c.status <> 'deleted'
		GROUP BY c.id`

	customerExistsSQL = `SELECT EXISTS (
		SELECT 1 FROM customers WHERE id = $1 AND status <> 'deleted')`

	belongsToGroupSQL = `SELECT EXISTS (
		SELECT 1 FROM customer_group_members m
		JOIN customers c ON c.id = m.customer_id AND c.status <> 'deleted'
		WHERE m.customer_id = $1 AND m.group_id = $2)`
)

var _ customer.Directory = (*CustomerDirectory)(nil)

// CustomerDirectory implements customer.Directory backed by PostgreSQL.
type CustomerDirectory struct {
	pool *pgxpool.Pool
}

// NewCustomerDirectory returns a CustomerDirectory that uses the given pool.
func NewCustomerDirectory(pool *pgxpool.Pool) *CustomerDirectory {
	return &CustomerDirectory{pool: pool}
}

// Get looks up an active customer with their group memberships.
// Returns customer.ErrNotFound for missing or soft-deleted customers.
func (d *CustomerDirectory) Get(ctx context.Context, id string) (*customer.Customer, error) {
	rows, err := d.pool.Query(ctx, getCustomerSQL, id)
	if err != nil {
		return nil, fmt.Errorf("finding customer %q: %w", id, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (customer.Customer, error) {
		var (
			c      customer.Customer
			status string
		)
		err := row.Scan(&c.ID, &c.Email, &status, &c.GroupIDs)
		c.Status = customer.Status(status)
		return c, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("finding customer %q: %w", id, err)
	}
	return &c, nil
}

// Exists reports whether an active customer with the given ID exists.
func (d *CustomerDirectory) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := d.pool.QueryRow(ctx, customerExistsSQL, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking customer %q: %w", id, err)
	}
	return exists, nil
}

// BelongsToGroup reports whether the active customer is a member of the group.
func (d *CustomerDirectory) BelongsToGroup(ctx context.Context, id, groupID string) (bool, error) {
	var member bool
	if err := d.pool.QueryRow(ctx, belongsToGroupSQL, id, groupID).Scan(&member); err != nil {
		return false, fmt.Errorf("checking group membership of %q: %w", id, err)
	}
	return member, nil
}
