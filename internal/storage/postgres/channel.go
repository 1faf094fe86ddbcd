package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/northcart/checkout/internal/domain/channel"
)

const (
	getChannelSQL = `SELECT id, name, stock_location_id, disabled
		FROM sales_channels WHERE id = $1`

	channelExistsSQL = `SELECT EXISTS (
		SELECT 1 FROM sales_channels WHERE id = $1 AND NOT disabled)`
)

var _ channel.Registry = (*ChannelRegistry)(nil)

// ChannelRegistry implements channel.Registry backed by PostgreSQL.
type ChannelRegistry struct {
	pool *pgxpool.Pool
}

// NewChannelRegistry returns a ChannelRegistry that uses the given pool.
func NewChannelRegistry(pool *pgxpool.Pool) *ChannelRegistry {
	return &ChannelRegistry{pool: pool}
}

// Get looks up a sales channel by ID.
// Returns channel.ErrNotFound when it does not exist.
func (r *ChannelRegistry) Get(ctx context.Context, id string) (*channel.Channel, error) {
	rows, err := r.pool.Query(ctx, getChannelSQL, id)
	if err != nil {
		return nil, fmt.Errorf("finding channel %q: %w", id, err)
	}

	ch, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (channel.Channel, error) {
		var ch channel.Channel
		err := row.Scan(&ch.ID, &ch.Name, &ch.StockLocationID, &ch.Disabled)
		return ch, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, channel.ErrNotFound
		}
		return nil, fmt.Errorf("finding channel %q: %w", id, err)
	}
	return &ch, nil
}

// Exists reports whether an enabled channel with the given ID exists.
func (r *ChannelRegistry) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, channelExistsSQL, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking channel %q: %w", id, err)
	}
	return exists, nil
}
