package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/northcart/checkout/internal/domain/inventory"
)

const (
	getStockSQL = `SELECT variant_id, location_id, quantity, reserved
		FROM inventory WHERE variant_id = $1 AND location_id = $2`

	// Lazy creation: the row comes into existence zero-valued on first touch.
	ensureStockSQL = `INSERT INTO inventory (variant_id, location_id, quantity, reserved)
		VALUES ($1, $2, 0, 0)
		ON CONFLICT (variant_id, location_id) DO NOTHING`

	lockStockSQL = `SELECT variant_id, location_id, quantity, reserved
		FROM inventory WHERE variant_id = $1 AND location_id = $2 FOR UPDATE`

	writeStockSQL = `UPDATE inventory SET quantity = $3, reserved = $4
		WHERE variant_id = $1 AND location_id = $2`
)

var _ inventory.Repository = (*InventoryRepository)(nil)

// InventoryRepository implements inventory.Repository backed by PostgreSQL.
// Mutations lock the affected rows with SELECT ... FOR UPDATE so concurrent
// reserves on the same record serialize instead of jointly overselling.
type InventoryRepository struct {
	pool *pgxpool.Pool
}

// NewInventoryRepository returns an InventoryRepository that uses the given pool.
func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

// Get returns the stock record for the (variant, location) pair.
// Returns inventory.ErrNotFound when no record exists yet.
func (r *InventoryRepository) Get(ctx context.Context, variantID, locationID string) (*inventory.Record, error) {
	rows, err := r.pool.Query(ctx, getStockSQL, variantID, locationID)
	if err != nil {
		return nil, fmt.Errorf("finding stock %s@%s: %w", variantID, locationID, err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanStock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inventory.ErrNotFound
		}
		return nil, fmt.Errorf("finding stock %s@%s: %w", variantID, locationID, err)
	}
	return &rec, nil
}

// Update applies fn to the row under a row lock in its own short transaction.
func (r *InventoryRepository) Update(ctx context.Context, variantID, locationID string, fn func(*inventory.Record) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rec, err := lockStock(ctx, tx, variantID, locationID)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
		return writeStock(ctx, tx, rec)
	})
}

// UpdatePair locks both rows of a variant in deterministic location order
// (avoiding lock-order deadlocks between opposing transfers) and applies fn.
func (r *InventoryRepository) UpdatePair(ctx context.Context, variantID, fromLocation, toLocation string, fn func(from, to *inventory.Record) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		first, second := fromLocation, toLocation
		if second < first {
			first, second = second, first
		}

		a, err := lockStock(ctx, tx, variantID, first)
		if err != nil {
			return err
		}
		b, err := lockStock(ctx, tx, variantID, second)
		if err != nil {
			return err
		}

		from, to := a, b
		if first != fromLocation {
			from, to = b, a
		}
		if err := fn(from, to); err != nil {
			return err
		}
		if err := writeStock(ctx, tx, from); err != nil {
			return err
		}
		return writeStock(ctx, tx, to)
	})
}

func lockStock(ctx context.Context, tx pgx.Tx, variantID, locationID string) (*inventory.Record, error) {
	if _, err := tx.Exec(ctx, ensureStockSQL, variantID, locationID); err != nil {
		return nil, fmt.Errorf("ensuring stock row %s@%s: %w", variantID, locationID, err)
	}

	rows, err := tx.Query(ctx, lockStockSQL, variantID, locationID)
	if err != nil {
		return nil, fmt.Errorf("locking stock %s@%s: %w", variantID, locationID, err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanStock)
	if err != nil {
		return nil, fmt.Errorf("locking stock %s@%s: %w", variantID, locationID, err)
	}
	return &rec, nil
}

func writeStock(ctx context.Context, tx pgx.Tx, rec *inventory.Record) error {
	_, err := tx.Exec(ctx, writeStockSQL, rec.VariantID, rec.LocationID, rec.Quantity, rec.Reserved)
	if err != nil {
		return fmt.Errorf("writing stock %s@%s: %w", rec.VariantID, rec.LocationID, err)
	}
	return nil
}

func scanStock(row pgx.CollectableRow) (inventory.Record, error) {
	var rec inventory.Record
	err := row.Scan(&rec.VariantID, &rec.LocationID, &rec.Quantity, &rec.Reserved)
	return rec, err
}
