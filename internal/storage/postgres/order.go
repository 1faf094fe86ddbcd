package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/northcart/checkout/internal/domain/cart"
	"github.com/northcart/checkout/internal/domain/coupon"
	"github.com/northcart/checkout/internal/domain/inventory"
	"github.com/northcart/checkout/internal/domain/order"
	"github.com/northcart/checkout/internal/domain/payment"
)

const (
	getOrderSQL = `SELECT id, display_id, customer_id, COALESCE(cart_id, ''), channel_id, currency,
			status, payment_status, fulfillment_status,
			shipping_address, billing_address,
			COALESCE(coupon_code, ''), discount_total, shipping_total, tax_total, total, created_at
		FROM orders WHERE id = $1`

	getOrderItemsSQL = `SELECT id, order_id, variant_id, product_id, quantity, unit_price,
			COALESCE(discount_rule_id, ''), discount_amount, metadata
		FROM order_items WHERE order_id = $1 ORDER BY id`

	getAddressSQL = `SELECT line1, line2, city, province, postal_code, country, phone
		FROM addresses WHERE id = $1`

	// completed_at transitions exactly once: the WHERE clause is the
	// single-writer gate against concurrent completions of one cart.
	markCartCompletedSQL = `UPDATE carts SET completed_at = $2
		WHERE id = $1 AND completed_at IS NULL`

	createOrderSQL = `INSERT INTO orders (id, customer_id, cart_id, channel_id, currency,
			status, payment_status, fulfillment_status,
			shipping_address, billing_address,
			coupon_code, discount_total, shipping_total, tax_total, total, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10,
			NULLIF($11, ''), $12, $13, $14, $15, $16)
		RETURNING display_id`

	createOrderItemSQL = `INSERT INTO order_items (id, order_id, variant_id, product_id,
			quantity, unit_price, discount_rule_id, discount_amount, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)`

	// Both guards live in the WHERE clause: a zero row count means the
	// reservation or on-hand quantity cannot cover the line.
	commitStockSQL = `UPDATE inventory
		SET quantity = quantity - $3, reserved = reserved - $3
		WHERE variant_id = $1 AND location_id = $2 AND reserved >= $3 AND quantity >= $3`

	createPaymentSQL = `INSERT INTO payments (id, order_id, amount, currency, provider_id, data, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	// Atomic increment-with-check: under concurrent completions racing for
	// the last use, exactly limit increments succeed.
	consumeCouponUseSQL = `UPDATE coupons SET usage_count = usage_count + 1
		WHERE code = $1 AND (usage_limit IS NULL OR usage_count < usage_limit)`
)

var (
	_ order.Repository      = (*OrderRepository)(nil)
	_ order.CompletionStore = (*OrderRepository)(nil)
	_ order.AddressLookup   = (*AddressLookup)(nil)
)

// OrderRepository implements order.Repository and order.CompletionStore
// backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetByID loads an order with its items.
// Returns order.ErrNotFound when it does not exist.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("finding order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("finding order %q: %w", id, err)
	}

	itemRows, err := r.pool.Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("loading items of order %q: %w", id, err)
	}
	o.Items, err = pgx.CollectRows(itemRows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("loading items of order %q: %w", id, err)
	}
	return &o, nil
}

// RunCompletion executes fn inside one transaction spanning carts, orders,
// inventory, payments, and coupons. Any error rolls everything back.
func (r *OrderRepository) RunCompletion(ctx context.Context, fn func(ctx context.Context, tx order.CompletionTx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &completionTx{tx: tx})
	})
}

// completionTx implements order.CompletionTx over one pgx transaction.
type completionTx struct {
	tx pgx.Tx
}

func (c *completionTx) MarkCartCompleted(ctx context.Context, cartID string, at time.Time) error {
	tag, err := c.tx.Exec(ctx, markCartCompletedSQL, cartID, at)
	if err != nil {
		return fmt.Errorf("completing cart %q: %w", cartID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrCompleted
	}
	return nil
}

func (c *completionTx) CreateOrder(ctx context.Context, o *order.Order) error {
	shippingJSON, err := marshalAddress(o.ShippingAddress)
	if err != nil {
		return err
	}
	billingJSON, err := marshalAddress(o.BillingAddress)
	if err != nil {
		return err
	}

	err = c.tx.QueryRow(ctx, createOrderSQL,
		o.ID, o.CustomerID, o.CartID, o.ChannelID, o.Currency,
		string(o.Status), string(o.PaymentStatus), string(o.FulfillmentStatus),
		shippingJSON, billingJSON,
		o.CouponCode, o.DiscountTotal, o.ShippingTotal, o.TaxTotal, o.Total, o.CreatedAt,
	).Scan(&o.DisplayID)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	for i := range o.Items {
		item := &o.Items[i]
		metadataJSON, err := json.Marshal(orEmpty(item.Metadata))
		if err != nil {
			return fmt.Errorf("marshaling item metadata: %w", err)
		}
		_, err = c.tx.Exec(ctx, createOrderItemSQL,
			item.ID, item.OrderID, item.VariantID, item.ProductID,
			item.Quantity, item.UnitPrice, item.DiscountRuleID, item.DiscountAmount, metadataJSON,
		)
		if err != nil {
			return fmt.Errorf("creating item of order %q: %w", o.ID, err)
		}
	}
	return nil
}

func (c *completionTx) CommitStock(ctx context.Context, variantID, locationID string, qty int64) error {
	tag, err := c.tx.Exec(ctx, commitStockSQL, variantID, locationID, qty)
	if err != nil {
		return fmt.Errorf("committing stock %s@%s: %w", variantID, locationID, err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(inventory.ErrInsufficientReserved, "variant %s at %s", variantID, locationID)
	}
	return nil
}

func (c *completionTx) CreatePayment(ctx context.Context, p *payment.Payment) error {
	dataJSON, err := json.Marshal(orEmpty(p.Data))
	if err != nil {
		return fmt.Errorf("marshaling payment data: %w", err)
	}
	_, err = c.tx.Exec(ctx, createPaymentSQL,
		p.ID, p.OrderID, p.Amount, p.Currency, p.ProviderID, dataJSON, string(p.Status), p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating payment %q: %w", p.ID, err)
	}
	return nil
}

func (c *completionTx) ConsumeCouponUse(ctx context.Context, code string) error {
	tag, err := c.tx.Exec(ctx, consumeCouponUseSQL, code)
	if err != nil {
		return fmt.Errorf("consuming use of coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrUsageLimitReached
	}
	return nil
}

// AddressLookup implements order.AddressLookup backed by PostgreSQL.
type AddressLookup struct {
	pool *pgxpool.Pool
}

// NewAddressLookup returns an AddressLookup that uses the given pool.
func NewAddressLookup(pool *pgxpool.Pool) *AddressLookup {
	return &AddressLookup{pool: pool}
}

// Get resolves an address snapshot by ID.
// Returns order.ErrAddressNotFound when it does not exist.
func (l *AddressLookup) Get(ctx context.Context, id string) (*order.Address, error) {
	var a order.Address
	err := l.pool.QueryRow(ctx, getAddressSQL, id).Scan(
		&a.Line1, &a.Line2, &a.City, &a.Province, &a.PostalCode, &a.Country, &a.Phone,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrAddressNotFound
		}
		return nil, fmt.Errorf("finding address %q: %w", id, err)
	}
	return &a, nil
}

func marshalAddress(a *order.Address) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshaling address: %w", err)
	}
	return b, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                          order.Order
		status, payStatus, fStatus string
		shippingJSON, billingJSON  []byte
	)
	err := row.Scan(
		&o.ID, &o.DisplayID, &o.CustomerID, &o.CartID, &o.ChannelID, &o.Currency,
		&status, &payStatus, &fStatus,
		&shippingJSON, &billingJSON,
		&o.CouponCode, &o.DiscountTotal, &o.ShippingTotal, &o.TaxTotal, &o.Total, &o.CreatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(payStatus)
	o.FulfillmentStatus = order.FulfillmentStatus(fStatus)

	if o.ShippingAddress, err = unmarshalAddress(shippingJSON); err != nil {
		return o, err
	}
	if o.BillingAddress, err = unmarshalAddress(billingJSON); err != nil {
		return o, err
	}
	return o, nil
}

func unmarshalAddress(b []byte) (*order.Address, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var a order.Address
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("decoding address: %w", err)
	}
	return &a, nil
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var (
		item         order.Item
		metadataJSON []byte
	)
	err := row.Scan(
		&item.ID, &item.OrderID, &item.VariantID, &item.ProductID,
		&item.Quantity, &item.UnitPrice, &item.DiscountRuleID, &item.DiscountAmount, &metadataJSON,
	)
	if err != nil {
		return item, err
	}
	if err := json.Unmarshal(metadataJSON, &item.Metadata); err != nil {
		return item, fmt.Errorf("decoding item metadata: %w", err)
	}
	return item, nil
}
