package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no payment exists for an order.
	ErrNotFound = errors.New("payment not found")
	// ErrNoActivePayment is returned when every payment row for the order is
	// already terminal.
	ErrNoActivePayment = errors.New("no active payment for order")
	// ErrProvider wraps failures of the external payment provider. Callers
	// may retry; the core never retries on its own.
	ErrProvider = errors.New("payment provider failure")
)

// Status is the lifecycle state of a payment attempt.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAwaiting  Status = "awaiting"
	StatusCaptured  Status = "captured"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

// Terminal reports whether the status admits no further transitions except
// refund of a capture.
func (s Status) Terminal() bool {
	switch s {
	case StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// Payment is one payment attempt against an order. An order may accumulate
// historical rows but carries at most one non-terminal payment.
type Payment struct {
	ID         string
	OrderID    string
	Amount     decimal.Decimal
	Currency   string
	ProviderID string
	// Data is the provider-opaque blob (invoice IDs, receipt URLs).
	Data       map[string]string
	Status     Status
	CreatedAt  time.Time
	CapturedAt *time.Time
}

// Outcome is the normalized result of a provider event.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	// OutcomePending is only ever returned by Provider.CheckStatus; webhook
	// events always carry a settled outcome.
	OutcomePending Outcome = "pending"
)

// ProviderEvent is the normalized inbound webhook payload. Signature
// verification and HTTP parsing happen outside the core.
type ProviderEvent struct {
	OrderID      string
	Outcome      Outcome
	ProviderID   string
	ProviderData map[string]string
}

// Repository provides access to payments outside the capture transaction.
type Repository interface {
	GetActiveByOrder(ctx context.Context, orderID string) (*Payment, error)
	// SetProviderRef stores the provider's invoice reference on the payment.
	SetProviderRef(ctx context.Context, paymentID, providerRef string) error
}

// CaptureTx is the set of mutations available inside a capture/failure
// transaction. Payment and order status move together or not at all.
type CaptureTx interface {
	// GetActiveByOrder loads the order's non-terminal payment under a write lock.
	GetActiveByOrder(ctx context.Context, orderID string) (*Payment, error)
	MarkCaptured(ctx context.Context, paymentID, providerID string, data map[string]string, at time.Time) error
	MarkFailed(ctx context.Context, paymentID string) error
	MarkOrderCaptured(ctx context.Context, orderID string) error
	MarkOrderNotPaid(ctx context.Context, orderID string) error
}

// CaptureStore runs a function inside a single transaction over payments and
// orders.
type CaptureStore interface {
	RunCapture(ctx context.Context, fn func(ctx context.Context, tx CaptureTx) error) error
}

// Provider is the pluggable payment provider capability. Implementations
// wrap vendor SDKs; errors must wrap ErrProvider.
type Provider interface {
	CreateInvoice(ctx context.Context, orderID string, amount decimal.Decimal, currency string) (providerRef string, err error)
	CheckStatus(ctx context.Context, providerRef string) (Outcome, error)
}
