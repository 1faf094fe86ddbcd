package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a cart does not exist.
	ErrNotFound = errors.New("cart not found")
	// ErrItemNotFound is returned when a line item does not belong to the cart.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrCompleted is returned when mutating a cart that has already been
	// converted into an order. Completion is not reversible.
	ErrCompleted = errors.New("cart already completed")
	// ErrInvalidQuantity is returned for zero deltas and negative deltas on
	// absent lines.
	ErrInvalidQuantity = errors.New("invalid quantity")
)

// Cart is an in-progress collection of intended purchases. It becomes
// immutable once CompletedAt is set.
type Cart struct {
	ID         string
	CustomerID string // empty for guest carts
	ChannelID  string
	Currency   string
	CouponCode string // at most one applied coupon

	ShippingAddressID string
	BillingAddressID  string

	Items       []Item
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// Item is one cart line. The unit price is snapshotted when the line is
// created and never re-derived from the catalog.
type Item struct {
	ID        string
	CartID    string
	VariantID string
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
	// Metadata carries per-line service/digital data (target phone number,
	// selected number, activation code) copied verbatim onto the order.
	Metadata map[string]string
}

// Completed reports whether the cart has been converted into an order.
func (c *Cart) Completed() bool {
	return c.CompletedAt != nil
}

// ItemByVariant returns the line for the given variant, if present.
// Lines are unique per (cart, variant).
func (c *Cart) ItemByVariant(variantID string) (*Item, bool) {
	for i := range c.Items {
		if c.Items[i].VariantID == variantID {
			return &c.Items[i], true
		}
	}
	return nil, false
}

// ItemByID returns the line with the given item ID, if present.
func (c *Cart) ItemByID(itemID string) (*Item, bool) {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return &c.Items[i], true
		}
	}
	return nil, false
}

// ProductIDs returns the distinct product IDs across the cart's lines.
func (c *Cart) ProductIDs() []string {
	seen := make(map[string]struct{}, len(c.Items))
	ids := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

// Subtotal returns the sum of unit price times quantity across all lines.
func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range c.Items {
		sum = sum.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return sum
}

// Repository defines persistence operations for carts. GetWithItems is the
// hydrated shape every service operation re-fetches, keeping read-your-writes
// consistency within a request.
type Repository interface {
	Create(ctx context.Context, c *Cart) error
	GetWithItems(ctx context.Context, id string) (*Cart, error)
	// UpsertItem inserts the line or, when the (cart, variant) pair exists,
	// overwrites its quantity with the given value.
	UpsertItem(ctx context.Context, item *Item) error
	DeleteItem(ctx context.Context, cartID, itemID string) error
	SetCoupon(ctx context.Context, cartID, code string) error
	SetCustomer(ctx context.Context, cartID, customerID string) error
	SetShippingAddress(ctx context.Context, cartID, addressID string) error
	SetBillingAddress(ctx context.Context, cartID, addressID string) error
}

// StockReserver places and releases inventory holds backing physical cart
// lines. A hold stays on the (variant, location) record until the line is
// removed or the cart completes, where completion converts it into a
// permanent deduction.
type StockReserver interface {
	Reserve(ctx context.Context, variantID, locationID string, qty int64) error
	Release(ctx context.Context, variantID, locationID string, qty int64) error
}
