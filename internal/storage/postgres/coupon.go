package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/northcart/checkout/internal/domain/coupon"
)

// Lookup is exact and case-sensitive; codes are stored as redeemed.
const getCouponByCodeSQL = `SELECT
		c.id, c.code, c.disabled, c.usage_limit, c.usage_count, c.starts_at, c.ends_at,
		r.id, r.type, r.value, r.allocation, r.tiers, r.description,
		r.product_ids, r.channel_ids, r.customer_ids, r.customer_group_ids
	FROM coupons c
	JOIN discount_rules r ON r.id = c.rule_id
	WHERE c.code = $1`

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon with its rule and eligibility sets loaded.
// Returns coupon.ErrInvalidCoupon when no coupon carries the code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	cpn, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &cpn, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		cpn        coupon.Coupon
		usageLimit *int32
		endsAt     *time.Time
		ruleType   string
		value      decimal.Decimal
		allocation string
		tiersJSON  []byte
	)
	err := row.Scan(
		&cpn.ID, &cpn.Code, &cpn.Disabled, &usageLimit, &cpn.UsageCount, &cpn.StartsAt, &endsAt,
		&cpn.Rule.ID, &ruleType, &value, &allocation, &tiersJSON, &cpn.Rule.Description,
		&cpn.Rule.ProductIDs, &cpn.Rule.ChannelIDs, &cpn.Rule.CustomerIDs, &cpn.Rule.CustomerGroupIDs,
	)
	if err != nil {
		return cpn, err
	}

	if usageLimit != nil {
		limit := int(*usageLimit)
		cpn.UsageLimit = &limit
	}
	cpn.EndsAt = endsAt
	cpn.Rule.Type = coupon.RuleType(ruleType)
	cpn.Rule.Value = value
	cpn.Rule.Allocation = coupon.Allocation(allocation)
	if err := json.Unmarshal(tiersJSON, &cpn.Rule.Tiers); err != nil {
		return cpn, fmt.Errorf("decoding rule tiers: %w", err)
	}
	return cpn, nil
}
