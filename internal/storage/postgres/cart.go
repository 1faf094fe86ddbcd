package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/northcart/checkout/internal/domain/cart"
)

const (
	createCartSQL = `INSERT INTO carts (id, customer_id, channel_id, currency, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5)`

	getCartSQL = `SELECT id, COALESCE(customer_id, ''), channel_id, currency,
			COALESCE(coupon_code, ''), COALESCE(shipping_address_id, ''),
			COALESCE(billing_address_id, ''), completed_at, created_at
		FROM carts WHERE id = $1`

	getCartItemsSQL = `SELECT id, cart_id, variant_id, product_id, quantity, unit_price, metadata
		FROM cart_items WHERE cart_id = $1 ORDER BY id`

	upsertCartItemSQL = `INSERT INTO cart_items
			(id, cart_id, variant_id, product_id, quantity, unit_price, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (cart_id, variant_id)
		DO UPDATE SET quantity = EXCLUDED.quantity`

	deleteCartItemSQL = `DELETE FROM cart_items WHERE cart_id = $1 AND id = $2`

	setCartCouponSQL = `UPDATE carts SET coupon_code = $2 WHERE id = $1`

	setCartCustomerSQL = `UPDATE carts SET customer_id = $2 WHERE id = $1`

	setCartShippingAddressSQL = `UPDATE carts SET shipping_address_id = $2 WHERE id = $1`

	setCartBillingAddressSQL = `UPDATE carts SET billing_address_id = $2 WHERE id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Create persists a new empty cart.
func (r *CartRepository) Create(ctx context.Context, c *cart.Cart) error {
	_, err := r.pool.Exec(ctx, createCartSQL,
		c.ID, c.CustomerID, c.ChannelID, c.Currency, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating cart %q: %w", c.ID, err)
	}
	return nil
}

// GetWithItems loads the cart and its line items.
// Returns cart.ErrNotFound when the cart does not exist.
func (r *CartRepository) GetWithItems(ctx context.Context, id string) (*cart.Cart, error) {
	rows, err := r.pool.Query(ctx, getCartSQL, id)
	if err != nil {
		return nil, fmt.Errorf("finding cart %q: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCart)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("finding cart %q: %w", id, err)
	}

	itemRows, err := r.pool.Query(ctx, getCartItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("loading items of cart %q: %w", id, err)
	}
	c.Items, err = pgx.CollectRows(itemRows, scanCartItem)
	if err != nil {
		return nil, fmt.Errorf("loading items of cart %q: %w", id, err)
	}
	return &c, nil
}

// UpsertItem inserts the line or overwrites the quantity of an existing
// (cart, variant) line, keeping the original price snapshot.
func (r *CartRepository) UpsertItem(ctx context.Context, item *cart.Item) error {
	metadataJSON, err := json.Marshal(orEmpty(item.Metadata))
	if err != nil {
		return fmt.Errorf("marshaling item metadata: %w", err)
	}

	_, err = r.pool.Exec(ctx, upsertCartItemSQL,
		item.ID, item.CartID, item.VariantID, item.ProductID,
		item.Quantity, item.UnitPrice, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("upserting item for cart %q: %w", item.CartID, err)
	}
	return nil
}

// DeleteItem removes a line. Returns cart.ErrItemNotFound when the item does
// not belong to the given cart.
func (r *CartRepository) DeleteItem(ctx context.Context, cartID, itemID string) error {
	tag, err := r.pool.Exec(ctx, deleteCartItemSQL, cartID, itemID)
	if err != nil {
		return fmt.Errorf("deleting item %q: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

// SetCoupon stores the applied coupon code on the cart.
func (r *CartRepository) SetCoupon(ctx context.Context, cartID, code string) error {
	if _, err := r.pool.Exec(ctx, setCartCouponSQL, cartID, code); err != nil {
		return fmt.Errorf("setting coupon on cart %q: %w", cartID, err)
	}
	return nil
}

// SetCustomer attaches a customer to the cart.
func (r *CartRepository) SetCustomer(ctx context.Context, cartID, customerID string) error {
	if _, err := r.pool.Exec(ctx, setCartCustomerSQL, cartID, customerID); err != nil {
		return fmt.Errorf("setting customer on cart %q: %w", cartID, err)
	}
	return nil
}

// SetShippingAddress stores the shipping address reference on the cart.
func (r *CartRepository) SetShippingAddress(ctx context.Context, cartID, addressID string) error {
	if _, err := r.pool.Exec(ctx, setCartShippingAddressSQL, cartID, addressID); err != nil {
		return fmt.Errorf("setting shipping address on cart %q: %w", cartID, err)
	}
	return nil
}

// SetBillingAddress stores the billing address reference on the cart.
func (r *CartRepository) SetBillingAddress(ctx context.Context, cartID, addressID string) error {
	if _, err := r.pool.Exec(ctx, setCartBillingAddressSQL, cartID, addressID); err != nil {
		return fmt.Errorf("setting billing address on cart %q: %w", cartID, err)
	}
	return nil
}

func scanCart(row pgx.CollectableRow) (cart.Cart, error) {
	var c cart.Cart
	err := row.Scan(
		&c.ID, &c.CustomerID, &c.ChannelID, &c.Currency,
		&c.CouponCode, &c.ShippingAddressID, &c.BillingAddressID,
		&c.CompletedAt, &c.CreatedAt,
	)
	return c, err
}

func scanCartItem(row pgx.CollectableRow) (cart.Item, error) {
	var (
		item         cart.Item
		metadataJSON []byte
	)
	err := row.Scan(
		&item.ID, &item.CartID, &item.VariantID, &item.ProductID,
		&item.Quantity, &item.UnitPrice, &metadataJSON,
	)
	if err != nil {
		return item, err
	}
	if err := json.Unmarshal(metadataJSON, &item.Metadata); err != nil {
		return item, fmt.Errorf("decoding item metadata: %w", err)
	}
	return item, nil
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
