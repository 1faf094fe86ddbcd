package inventory

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when no stock record exists for the
	// (variant, location) pair.
	ErrNotFound = errors.New("inventory record not found")
	// ErrInsufficientStock is returned when a reserve or transfer asks for
	// more than the available (unreserved) quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrOverRelease is returned when a release would drive reserved negative.
	ErrOverRelease = errors.New("release exceeds reserved quantity")
	// ErrInsufficientReserved is returned when a commit exceeds the reserved
	// or on-hand quantity.
	ErrInsufficientReserved = errors.New("insufficient reserved stock")
	// ErrBelowReserved is returned when an administrative override would set
	// quantity below the current reservation.
	ErrBelowReserved = errors.New("quantity cannot drop below reserved")
	// ErrSelfTransfer is returned for transfers where source and destination
	// are the same location.
	ErrSelfTransfer = errors.New("transfer source and destination are the same")
	// ErrInvalidQuantity is returned for non-positive operation quantities.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// Record is the per (variant, location) stock ledger entry.
// Invariant after every mutation: 0 <= Reserved <= Quantity.
type Record struct {
	VariantID  string
	LocationID string
	Quantity   int64
	Reserved   int64
}

// Available returns the quantity not held by reservations.
func (r *Record) Available() int64 {
	return r.Quantity - r.Reserved
}

// Reserve places a hold on qty units of available stock.
func (r *Record) Reserve(qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if r.Available() < qty {
		return ErrInsufficientStock
	}
	r.Reserved += qty
	return nil
}

// Release returns qty reserved units to the available pool.
func (r *Record) Release(qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if r.Reserved < qty {
		return ErrOverRelease
	}
	r.Reserved -= qty
	return nil
}

// Commit converts qty reserved units into a permanent deduction at sale time.
func (r *Record) Commit(qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if r.Reserved < qty || r.Quantity < qty {
		return ErrInsufficientReserved
	}
	r.Quantity -= qty
	r.Reserved -= qty
	return nil
}

// SetQuantity overrides the on-hand quantity, refusing to cut under the
// current reservation.
func (r *Record) SetQuantity(qty int64) error {
	if qty < 0 {
		return ErrInvalidQuantity
	}
	if qty < r.Reserved {
		return ErrBelowReserved
	}
	r.Quantity = qty
	return nil
}

// Adjust applies a signed delta to the on-hand quantity with the same floor
// check as SetQuantity.
func (r *Record) Adjust(delta int64) error {
	next := r.Quantity + delta
	if next < 0 {
		return ErrInvalidQuantity
	}
	if next < r.Reserved {
		return ErrBelowReserved
	}
	r.Quantity = next
	return nil
}

// Repository persists stock records. Update and UpdatePair must serialize
// mutations on the same row (row-level locking or equivalent): two concurrent
// reserves racing on the same record is the one place the business can
// oversell. Records are created lazily, zero-valued, on first reference.
type Repository interface {
	Get(ctx context.Context, variantID, locationID string) (*Record, error)
	// Update loads the record under a write lock, applies fn, and persists
	// the result. An error from fn aborts without persisting.
	Update(ctx context.Context, variantID, locationID string, fn func(*Record) error) error
	// UpdatePair does the same for two records of one variant, locking both
	// rows in a deterministic order before applying fn.
	UpdatePair(ctx context.Context, variantID, fromLocation, toLocation string, fn func(from, to *Record) error) error
}
