package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/northcart/checkout/internal/domain/payment"
)

// Completion precondition failures, each a distinct kind for the caller.
var (
	// ErrNotFound is returned when the order (or the cart being completed)
	// does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrCustomerRequired is returned when completing a guest cart.
	ErrCustomerRequired = errors.New("cart has no customer")
	// ErrEmptyCart is returned when completing a cart with no line items.
	ErrEmptyCart = errors.New("cart has no items")
	// ErrShippingAddressRequired is returned when a cart with physical lines
	// has no shipping address.
	ErrShippingAddressRequired = errors.New("shipping address required for physical items")
	// ErrAddressNotFound is returned when the cart references a missing address.
	ErrAddressNotFound = errors.New("address not found")
)

// Status is the order lifecycle: pending -> completed -> archived, with
// canceled as a terminal branch.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
	StatusCanceled  Status = "canceled"
)

// PaymentStatus mirrors the order's payment progress.
type PaymentStatus string

const (
	PaymentNotPaid  PaymentStatus = "not_paid"
	PaymentAwaiting PaymentStatus = "awaiting"
	PaymentCaptured PaymentStatus = "captured"
	PaymentRefunded PaymentStatus = "refunded"
)

// FulfillmentStatus tracks physical fulfillment progress.
type FulfillmentStatus string

const (
	FulfillmentNotFulfilled       FulfillmentStatus = "not_fulfilled"
	FulfillmentPartiallyFulfilled FulfillmentStatus = "partially_fulfilled"
	FulfillmentFulfilled          FulfillmentStatus = "fulfilled"
	FulfillmentShipped            FulfillmentStatus = "shipped"
)

// Address is an opaque snapshot copied onto the order at completion time.
// The core never validates postal formats.
type Address struct {
	Line1      string
	Line2      string
	City       string
	Province   string
	PostalCode string
	Country    string
	Phone      string
}

// Order is the terminal artifact of cart completion. Totals are computed at
// creation and frozen: Total = sum(line totals) - DiscountTotal +
// ShippingTotal + TaxTotal.
type Order struct {
	ID        string
	DisplayID int64 // sequential, human-facing; assigned by the store

	CustomerID string
	CartID     string // empty for manually created orders
	ChannelID  string
	Currency   string

	Status            Status
	PaymentStatus     PaymentStatus
	FulfillmentStatus FulfillmentStatus

	ShippingAddress *Address
	BillingAddress  *Address

	CouponCode    string
	DiscountTotal decimal.Decimal
	ShippingTotal decimal.Decimal
	TaxTotal      decimal.Decimal
	Total         decimal.Decimal

	Items     []Item
	CreatedAt time.Time
}

// Item is one order line, created 1:1 from a cart line at completion and
// never mutated afterwards except for fulfillment/activation fields.
type Item struct {
	ID        string
	OrderID   string
	VariantID string
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal

	// Discount attribution for item-allocated rules.
	DiscountRuleID string
	DiscountAmount decimal.Decimal

	// Metadata carries the service/digital snapshot copied verbatim from the
	// cart line.
	Metadata map[string]string
}

// Subtotal returns the sum of unit price times quantity across all lines.
func (o *Order) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range o.Items {
		sum = sum.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return sum
}

// Repository provides read access to persisted orders.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Order, error)
}

// AddressLookup resolves address snapshots by reference.
type AddressLookup interface {
	Get(ctx context.Context, id string) (*Address, error)
}

// CompletionTx is the mutation set available inside the single completion
// transaction. Implementations map constraint misses to the indicated
// sentinels so the orchestrator surfaces typed failures.
type CompletionTx interface {
	// MarkCartCompleted sets completed_at if and only if the cart is still
	// open. A cart completed by a concurrent caller yields cart.ErrCompleted,
	// making completed_at the single-writer gate.
	MarkCartCompleted(ctx context.Context, cartID string, at time.Time) error
	// CreateOrder inserts the order and its items, assigning DisplayID.
	CreateOrder(ctx context.Context, o *Order) error
	// CommitStock converts qty reserved units into a deduction, failing with
	// inventory.ErrInsufficientReserved when the row's invariants would break.
	CommitStock(ctx context.Context, variantID, locationID string, qty int64) error
	// CreatePayment inserts the payment placeholder row.
	CreatePayment(ctx context.Context, p *payment.Payment) error
	// ConsumeCouponUse atomically increments usage_count, failing with
	// coupon.ErrUsageLimitReached when the limit is already met.
	ConsumeCouponUse(ctx context.Context, code string) error
}

// CompletionStore runs fn inside one atomic unit of work spanning carts,
// orders, inventory, payments, and coupons.
type CompletionStore interface {
	RunCompletion(ctx context.Context, fn func(ctx context.Context, tx CompletionTx) error) error
}
