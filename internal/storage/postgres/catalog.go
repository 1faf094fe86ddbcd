package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/northcart/checkout/internal/domain/catalog"
)

const (
	getVariantSQL = `SELECT id, product_id, name, price, fulfillment
		FROM variants WHERE id = $1`

	getVariantsSQL = `SELECT id, product_id, name, price, fulfillment
		FROM variants WHERE id = ANY($1)`
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// GetVariant looks up one variant by ID.
// Returns catalog.ErrVariantNotFound when it does not exist.
func (r *CatalogRepository) GetVariant(ctx context.Context, id string) (*catalog.Variant, error) {
	rows, err := r.pool.Query(ctx, getVariantSQL, id)
	if err != nil {
		return nil, fmt.Errorf("finding variant %q: %w", id, err)
	}

	v, err := pgx.CollectExactlyOneRow(rows, scanVariant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrVariantNotFound
		}
		return nil, fmt.Errorf("finding variant %q: %w", id, err)
	}
	return &v, nil
}

// GetVariants fetches the given variants in a single query. Missing IDs are
// simply absent from the result.
func (r *CatalogRepository) GetVariants(ctx context.Context, ids []string) ([]catalog.Variant, error) {
	rows, err := r.pool.Query(ctx, getVariantsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("finding variants: %w", err)
	}
	variants, err := pgx.CollectRows(rows, scanVariant)
	if err != nil {
		return nil, fmt.Errorf("finding variants: %w", err)
	}
	return variants, nil
}

func scanVariant(row pgx.CollectableRow) (catalog.Variant, error) {
	var (
		v    catalog.Variant
		kind string
	)
	err := row.Scan(&v.ID, &v.ProductID, &v.Name, &v.Price, &kind)
	v.Fulfillment = catalog.FulfillmentKind(kind)
	return v, err
}
