package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/northcart/checkout/internal/domain/payment"
)

const (
	// A payment stays active until it reaches a terminal state; captured
	// rows remain active so redelivered captures find them.
	getActivePaymentSQL = `SELECT id, order_id, amount, currency, provider_id, data, status, created_at, captured_at
		FROM payments
		WHERE order_id = $1 AND status NOT IN ('failed', 'cancelled', 'refunded')
		ORDER BY created_at DESC LIMIT 1`

	lockActivePaymentSQL = getActivePaymentSQL + ` FOR UPDATE`

	// NULLIF keeps an existing provider reference when the event carries none.
	markPaymentCapturedSQL = `UPDATE payments
		SET status = 'captured',
			provider_id = COALESCE(NULLIF($2, ''), provider_id),
			data = data || $3, captured_at = $4
		WHERE id = $1`

	markPaymentFailedSQL = `UPDATE payments SET status = 'failed' WHERE id = $1`

	setPaymentProviderRefSQL = `UPDATE payments SET provider_id = $2 WHERE id = $1`

	setOrderPaymentStatusSQL = `UPDATE orders SET payment_status = $2 WHERE id = $1`
)

var (
	_ payment.Repository   = (*PaymentRepository)(nil)
	_ payment.CaptureStore = (*PaymentRepository)(nil)
)

// PaymentRepository implements payment.Repository and payment.CaptureStore
// backed by PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository returns a PaymentRepository that uses the given pool.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// GetActiveByOrder returns the order's most recent non-terminal payment.
// Returns payment.ErrNoActivePayment when every attempt is terminal.
func (r *PaymentRepository) GetActiveByOrder(ctx context.Context, orderID string) (*payment.Payment, error) {
	return getActivePayment(ctx, r.pool, getActivePaymentSQL, orderID)
}

// SetProviderRef stores the provider's invoice reference on the payment.
func (r *PaymentRepository) SetProviderRef(ctx context.Context, paymentID, providerRef string) error {
	if _, err := r.pool.Exec(ctx, setPaymentProviderRefSQL, paymentID, providerRef); err != nil {
		return fmt.Errorf("setting provider ref on payment %q: %w", paymentID, err)
	}
	return nil
}

// RunCapture executes fn inside one transaction spanning payments and orders.
func (r *PaymentRepository) RunCapture(ctx context.Context, fn func(ctx context.Context, tx payment.CaptureTx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &captureTx{tx: tx})
	})
}

// captureTx implements payment.CaptureTx over one pgx transaction.
type captureTx struct {
	tx pgx.Tx
}

func (c *captureTx) GetActiveByOrder(ctx context.Context, orderID string) (*payment.Payment, error) {
	return getActivePayment(ctx, c.tx, lockActivePaymentSQL, orderID)
}

func (c *captureTx) MarkCaptured(ctx context.Context, paymentID, providerID string, data map[string]string, at time.Time) error {
	dataJSON, err := json.Marshal(orEmpty(data))
	if err != nil {
		return fmt.Errorf("marshaling provider data: %w", err)
	}
	if _, err := c.tx.Exec(ctx, markPaymentCapturedSQL, paymentID, providerID, dataJSON, at); err != nil {
		return fmt.Errorf("capturing payment %q: %w", paymentID, err)
	}
	return nil
}

func (c *captureTx) MarkFailed(ctx context.Context, paymentID string) error {
	if _, err := c.tx.Exec(ctx, markPaymentFailedSQL, paymentID); err != nil {
		return fmt.Errorf("failing payment %q: %w", paymentID, err)
	}
	return nil
}

func (c *captureTx) MarkOrderCaptured(ctx context.Context, orderID string) error {
	if _, err := c.tx.Exec(ctx, setOrderPaymentStatusSQL, orderID, "captured"); err != nil {
		return fmt.Errorf("updating payment status of order %q: %w", orderID, err)
	}
	return nil
}

func (c *captureTx) MarkOrderNotPaid(ctx context.Context, orderID string) error {
	if _, err := c.tx.Exec(ctx, setOrderPaymentStatusSQL, orderID, "not_paid"); err != nil {
		return fmt.Errorf("updating payment status of order %q: %w", orderID, err)
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getActivePayment(ctx context.Context, q querier, sql, orderID string) (*payment.Payment, error) {
	rows, err := q.Query(ctx, sql, orderID)
	if err != nil {
		return nil, fmt.Errorf("finding payment for order %q: %w", orderID, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNoActivePayment
		}
		return nil, fmt.Errorf("finding payment for order %q: %w", orderID, err)
	}
	return &p, nil
}

func scanPayment(row pgx.CollectableRow) (payment.Payment, error) {
	var (
		p        payment.Payment
		status   string
		dataJSON []byte
	)
	err := row.Scan(
		&p.ID, &p.OrderID, &p.Amount, &p.Currency, &p.ProviderID,
		&dataJSON, &status, &p.CreatedAt, &p.CapturedAt,
	)
	if err != nil {
		return p, err
	}
	p.Status = payment.Status(status)
	if err := json.Unmarshal(dataJSON, &p.Data); err != nil {
		return p, fmt.Errorf("decoding payment data: %w", err)
	}
	return p, nil
}
