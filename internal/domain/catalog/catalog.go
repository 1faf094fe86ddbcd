package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrVariantNotFound is returned when a requested variant does not exist.
var ErrVariantNotFound = errors.New("variant not found")

// FulfillmentKind is the closed set of ways a variant can be fulfilled.
// Code branching on it must handle every case and error on anything else.
type FulfillmentKind string

const (
	// FulfillmentPhysical ships to an address and consumes stock.
	FulfillmentPhysical FulfillmentKind = "physical"
	// FulfillmentDigital is delivered electronically (e.g. a phone number).
	FulfillmentDigital FulfillmentKind = "digital"
	// FulfillmentService acts on an external account (e.g. airtime top-up).
	FulfillmentService FulfillmentKind = "service"
)

// Valid reports whether k is one of the known fulfillment kinds.
func (k FulfillmentKind) Valid() bool {
	switch k {
	case FulfillmentPhysical, FulfillmentDigital, FulfillmentService:
		return true
	}
	return false
}

// RequiresShipping reports whether the kind needs a shipping address and
// stock handling. Unknown kinds are rejected upstream via Valid.
func (k FulfillmentKind) RequiresShipping() bool {
	return k == FulfillmentPhysical
}

// Variant is a purchasable product variant as exposed by the catalog.
type Variant struct {
	ID          string
	ProductID   string
	Name        string
	Price       decimal.Decimal
	Fulfillment FulfillmentKind
}

// Repository defines read operations against the product catalog.
type Repository interface {
	GetVariant(ctx context.Context, id string) (*Variant, error)
	// GetVariants fetches the given variants in a single batch. Callers are
	// responsible for detecting missing IDs in the result.
	GetVariants(ctx context.Context, ids []string) ([]Variant, error)
}
