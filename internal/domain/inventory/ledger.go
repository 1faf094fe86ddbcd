package inventory

import "context"

// Ledger exposes the stock operations of the checkout core. Each call runs
// inside its own short repository transaction.
type Ledger struct {
	repo Repository
}

// NewLedger creates a Ledger over the given repository.
func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

// Get returns the current record for the (variant, location) pair.
func (l *Ledger) Get(ctx context.Context, variantID, locationID string) (*Record, error) {
	return l.repo.Get(ctx, variantID, locationID)
}

// Reserve holds qty units of available stock for a pending order.
func (l *Ledger) Reserve(ctx context.Context, variantID, locationID string, qty int64) error {
	return l.repo.Update(ctx, variantID, locationID, func(r *Record) error {
		return r.Reserve(qty)
	})
}

// Release returns qty previously reserved units to the available pool.
func (l *Ledger) Release(ctx context.Context, variantID, locationID string, qty int64) error {
	return l.repo.Update(ctx, variantID, locationID, func(r *Record) error {
		return r.Release(qty)
	})
}

// Commit converts qty reserved units into a permanent deduction.
func (l *Ledger) Commit(ctx context.Context, variantID, locationID string, qty int64) error {
	return l.repo.Update(ctx, variantID, locationID, func(r *Record) error {
		return r.Commit(qty)
	})
}

// Transfer atomically moves qty available units between two locations of the
// same variant. Self-transfers are rejected.
func (l *Ledger) Transfer(ctx context.Context, variantID, fromLocation, toLocation string, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if fromLocation == toLocation {
		return ErrSelfTransfer
	}
	return l.repo.UpdatePair(ctx, variantID, fromLocation, toLocation, func(from, to *Record) error {
		if from.Available() < qty {
			return ErrInsufficientStock
		}
		from.Quantity -= qty
		to.Quantity += qty
		return nil
	})
}

// SetQuantity administratively overrides the on-hand quantity.
func (l *Ledger) SetQuantity(ctx context.Context, variantID, locationID string, qty int64) error {
	return l.repo.Update(ctx, variantID, locationID, func(r *Record) error {
		return r.SetQuantity(qty)
	})
}

// AdjustQuantity administratively applies a signed delta to the on-hand
// quantity.
func (l *Ledger) AdjustQuantity(ctx context.Context, variantID, locationID string, delta int64) error {
	return l.repo.Update(ctx, variantID, locationID, func(r *Record) error {
		return r.Adjust(delta)
	})
}
