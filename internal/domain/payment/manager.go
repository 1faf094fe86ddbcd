package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Manager reflects provider outcomes onto payments and their orders.
type Manager struct {
	store    CaptureStore
	payments Repository
	provider Provider
	now      func() time.Time
}

// NewManager creates a Manager over the given stores. provider may be nil
// when no payment provider is configured; Reconcile then fails with
// ErrProvider while the webhook path keeps working.
func NewManager(store CaptureStore, payments Repository, provider Provider) *Manager {
	return &Manager{store: store, payments: payments, provider: provider, now: time.Now}
}

// GetByOrder returns the order's active payment.
func (m *Manager) GetByOrder(ctx context.Context, orderID string) (*Payment, error) {
	return m.payments.GetActiveByOrder(ctx, orderID)
}

// Capture marks the order's active payment captured and moves the order's
// payment status in the same transaction. Capturing an already-captured
// payment is a no-op returning the existing record, so webhook redeliveries
// cause no double effects.
func (m *Manager) Capture(ctx context.Context, orderID, providerID string, data map[string]string) (*Payment, error) {
	var captured *Payment
	err := m.store.RunCapture(ctx, func(ctx context.Context, tx CaptureTx) error {
		p, err := tx.GetActiveByOrder(ctx, orderID)
		if err != nil {
			return err
		}

		// Captured rows stay active until refunded, so a webhook redelivery
		// lands here and gets the existing record back.
		if p.Status == StatusCaptured {
			captured = p
			return nil
		}

		at := m.now().UTC()
		if err := tx.MarkCaptured(ctx, p.ID, providerID, data, at); err != nil {
			return errors.Wrap(err, "mark payment captured")
		}
		if err := tx.MarkOrderCaptured(ctx, orderID); err != nil {
			return errors.Wrap(err, "mark order captured")
		}

		p.Status = StatusCaptured
		p.CapturedAt = &at
		if providerID != "" {
			p.ProviderID = providerID
		}
		if p.Data == nil {
			p.Data = make(map[string]string, len(data))
		}
		for k, v := range data {
			p.Data[k] = v
		}
		captured = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return captured, nil
}

// Fail marks the order's active payment failed and resets the order's
// payment status, leaving the order open for a new attempt.
func (m *Manager) Fail(ctx context.Context, orderID string) error {
	return m.store.RunCapture(ctx, func(ctx context.Context, tx CaptureTx) error {
		p, err := tx.GetActiveByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if p.Status.Terminal() {
			return nil
		}
		if err := tx.MarkFailed(ctx, p.ID); err != nil {
			return errors.Wrap(err, "mark payment failed")
		}
		return tx.MarkOrderNotPaid(ctx, orderID)
	})
}

// Reconcile pulls the order's payment state from the provider instead of
// waiting for a webhook. A payment without an invoice gets one created; a
// payment with one has its status checked and, when settled, the matching
// capture or failure applied. Pending invoices leave the payment untouched.
func (m *Manager) Reconcile(ctx context.Context, orderID string) (*Payment, error) {
	if m.provider == nil {
		return nil, errors.Wrap(ErrProvider, "no payment provider configured")
	}

	p, err := m.payments.GetActiveByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if p.Status == StatusCaptured {
		return p, nil
	}

	if p.ProviderID == "" {
		ref, err := m.provider.CreateInvoice(ctx, orderID, p.Amount, p.Currency)
		if err != nil {
			return nil, errors.Wrap(err, "create invoice")
		}
		if err := m.payments.SetProviderRef(ctx, p.ID, ref); err != nil {
			return nil, errors.Wrap(err, "store provider ref")
		}
		p.ProviderID = ref
		return p, nil
	}

	outcome, err := m.provider.CheckStatus(ctx, p.ProviderID)
	if err != nil {
		return nil, errors.Wrap(err, "check status")
	}
	switch outcome {
	case OutcomeSucceeded:
		return m.Capture(ctx, orderID, p.ProviderID, nil)
	case OutcomeFailed:
		// The failed row turns terminal, so report it from the local copy.
		if err := m.Fail(ctx, orderID); err != nil {
			return nil, err
		}
		p.Status = StatusFailed
		return p, nil
	default:
		return p, nil
	}
}

// HandleProviderEvent consumes a normalized provider event and applies the
// matching transition.
func (m *Manager) HandleProviderEvent(ctx context.Context, ev ProviderEvent) error {
	switch ev.Outcome {
	case OutcomeSucceeded:
		_, err := m.Capture(ctx, ev.OrderID, ev.ProviderID, ev.ProviderData)
		return err
	case OutcomeFailed:
		return m.Fail(ctx, ev.OrderID)
	default:
		return errors.Errorf("unknown provider outcome: %q", ev.Outcome)
	}
}
