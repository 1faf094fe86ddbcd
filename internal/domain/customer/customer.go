package customer

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a customer does not exist or is soft-deleted.
var ErrNotFound = errors.New("customer not found")

// Status marks the lifecycle state of a customer record. Deleted customers
// are retained for order history but excluded from every default lookup.
type Status string

const (
	StatusActive  Status = "active"
	StatusDeleted Status = "deleted"
)

// Customer is the read-only view the checkout core needs.
type Customer struct {
	ID       string
	Email    string
	Status   Status
	GroupIDs []string
}

// Directory is the customer lookup boundary. Implementations must exclude
// soft-deleted customers unless a method says otherwise.
type Directory interface {
	Get(ctx context.Context, id string) (*Customer, error)
	Exists(ctx context.Context, id string) (bool, error)
	BelongsToGroup(ctx context.Context, id, groupID string) (bool, error)
}
