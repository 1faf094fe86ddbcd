package channel

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a sales channel does not exist or is disabled.
var ErrNotFound = errors.New("sales channel not found")

// Channel is a sales channel (storefront, POS, partner feed). Each channel
// fulfils physical goods from one stock location.
type Channel struct {
	ID              string
	Name            string
	StockLocationID string
	Disabled        bool
}

// Registry is the sales channel lookup boundary.
type Registry interface {
	Get(ctx context.Context, id string) (*Channel, error)
	Exists(ctx context.Context, id string) (bool, error)
}
