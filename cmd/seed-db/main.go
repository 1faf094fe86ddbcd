// Command seed-db loads a small demo dataset: a stock location, a sales
// channel, a product catalog with stock, a customer with an address, and a
// couple of coupons.
// Safe to re-run; every statement upserts.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/northcart/checkout/internal/domain/catalog"
	"github.com/northcart/checkout/internal/domain/coupon"
	"github.com/northcart/checkout/internal/storage/postgres"
)

func main() {
	var databaseURL string
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedChannel(ctx, pool); err != nil {
		return errors.Wrap(err, "seed channel")
	}
	if err := seedCatalog(ctx, pool); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	if err := seedCustomers(ctx, pool); err != nil {
		return errors.Wrap(err, "seed customers")
	}
	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	return nil
}

func seedChannel(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding stock location and sales channel")

	const upsertLocation = `
INSERT INTO stock_locations (id, name) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`
	for _, loc := range [][2]string{{"loc-main", "Main warehouse"}, {"loc-backup", "Backup warehouse"}} {
		if _, err := pool.Exec(ctx, upsertLocation, loc[0], loc[1]); err != nil {
			return errors.Wrapf(err, "upsert stock location %s", loc[0])
		}
	}

	const upsertChannel = `
INSERT INTO sales_channels (id, name, stock_location_id, disabled) VALUES ($1, $2, $3, FALSE)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, stock_location_id = EXCLUDED.stock_location_id, disabled = FALSE`
	if _, err := pool.Exec(ctx, upsertChannel, "web", "Web storefront", "loc-main"); err != nil {
		return errors.Wrap(err, "upsert sales channel")
	}
	return nil
}

type seedVariant struct {
	ID          string
	ProductID   string
	ProductName string
	Name        string
	Price       decimal.Decimal
	Fulfillment catalog.FulfillmentKind
	Stock       int64
}

func seedCatalog(ctx context.Context, pool *pgxpool.Pool) error {
	variants := []seedVariant{
		{"var-tee-s", "prod-tee", "Logo T-Shirt", "Small", decimal.NewFromInt(25), catalog.FulfillmentPhysical, 500},
		{"var-tee-l", "prod-tee", "Logo T-Shirt", "Large", decimal.NewFromInt(25), catalog.FulfillmentPhysical, 500},
		{"var-mug", "prod-mug", "Coffee Mug", "Standard", decimal.NewFromFloat(12.50), catalog.FulfillmentPhysical, 200},
		{"var-ebook", "prod-ebook", "Field Guide (eBook)", "PDF", decimal.NewFromInt(9), catalog.FulfillmentDigital, 0},
		{"var-fitting", "prod-fitting", "Personal Fitting Session", "60 minutes", decimal.NewFromInt(40), catalog.FulfillmentService, 0},
	}

	slog.Info("upserting catalog", slog.Int("variants", len(variants)))

	const upsertProduct = `
INSERT INTO products (id, name) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`
	const upsertVariant = `
INSERT INTO variants (id, product_id, name, price, fulfillment) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, fulfillment = EXCLUDED.fulfillment`
	const upsertStock = `
INSERT INTO inventory (variant_id, location_id, quantity) VALUES ($1, $2, $3)
ON CONFLICT (variant_id, location_id) DO UPDATE SET quantity = EXCLUDED.quantity`

	for _, v := range variants {
		if _, err := pool.Exec(ctx, upsertProduct, v.ProductID, v.ProductName); err != nil {
			return errors.Wrapf(err, "upsert product %s", v.ProductID)
		}
		if _, err := pool.Exec(ctx, upsertVariant, v.ID, v.ProductID, v.Name, v.Price, string(v.Fulfillment)); err != nil {
			return errors.Wrapf(err, "upsert variant %s", v.ID)
		}
		if v.Fulfillment == catalog.FulfillmentPhysical {
			if _, err := pool.Exec(ctx, upsertStock, v.ID, "loc-main", v.Stock); err != nil {
				return errors.Wrapf(err, "upsert stock for %s", v.ID)
			}
		}
		slog.Info("upserted variant", slog.String("id", v.ID), slog.String("product", v.ProductName))
	}
	return nil
}

func seedCustomers(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo customer and VIP group")

	const upsertCustomer = `
INSERT INTO customers (id, email, status) VALUES ($1, $2, 'active')
ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, status = 'active'`
	if _, err := pool.Exec(ctx, upsertCustomer, "cust-demo", "demo@example.com"); err != nil {
		return errors.Wrap(err, "upsert customer")
	}

	const upsertGroup = `
INSERT INTO customer_groups (id, name) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`
	if _, err := pool.Exec(ctx, upsertGroup, "grp-vip", "VIP"); err != nil {
		return errors.Wrap(err, "upsert group")
	}

	const upsertMember = `
INSERT INTO customer_group_members (customer_id, group_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING`
	if _, err := pool.Exec(ctx, upsertMember, "cust-demo", "grp-vip"); err != nil {
		return errors.Wrap(err, "upsert group member")
	}

	const upsertAddress = `
INSERT INTO addresses (id, line1, city, postal_code, country) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    line1 = EXCLUDED.line1, city = EXCLUDED.city,
    postal_code = EXCLUDED.postal_code, country = EXCLUDED.country`
	if _, err := pool.Exec(ctx, upsertAddress, "addr-demo", "1 Harbour St", "Sydney", "2000", "AU"); err != nil {
		return errors.Wrap(err, "upsert address")
	}
	return nil
}

type seedCoupon struct {
	RuleID      string
	Code        string
	Rule        coupon.Rule
	UsageLimit  *int
	Description string
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	hundred := 100
	coupons := []seedCoupon{
		{
			RuleID: "rule-welcome10",
			Code:   "WELCOME10",
			Rule: coupon.Rule{
				Type:        coupon.RulePercentage,
				Value:       decimal.NewFromInt(10),
				Allocation:  coupon.AllocationTotal,
				Description: "10% off the whole order",
			},
		},
		{
			RuleID:     "rule-vip-ship",
			Code:       "VIPSHIP",
			UsageLimit: &hundred,
			Rule: coupon.Rule{
				Type:             coupon.RuleFreeShipping,
				Allocation:       coupon.AllocationTotal,
				Description:      "Free shipping for VIP members",
				CustomerGroupIDs: []string{"grp-vip"},
			},
		},
		{
			RuleID: "rule-spend-more",
			Code:   "SPENDMORE",
			Rule: coupon.Rule{
				Type:        coupon.RuleTiered,
				Allocation:  coupon.AllocationTotal,
				Description: "5% over 50, 10% over 100",
				Tiers: []coupon.Tier{
					{MinSubtotal: decimal.NewFromInt(50), Value: decimal.NewFromInt(5)},
					{MinSubtotal: decimal.NewFromInt(100), Value: decimal.NewFromInt(10)},
				},
			},
		},
	}

	slog.Info("upserting coupons", slog.Int("count", len(coupons)))

	const upsertRule = `
INSERT INTO discount_rules (id, type, value, allocation, tiers, description, product_ids, channel_ids, customer_ids, customer_group_ids)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
    type = EXCLUDED.type, value = EXCLUDED.value, allocation = EXCLUDED.allocation,
    tiers = EXCLUDED.tiers, description = EXCLUDED.description,
    product_ids = EXCLUDED.product_ids, channel_ids = EXCLUDED.channel_ids,
    customer_ids = EXCLUDED.customer_ids, customer_group_ids = EXCLUDED.customer_group_ids`
	const upsertCoupon = `
INSERT INTO coupons (id, code, usage_limit, rule_id) VALUES ($1, $2, $3, $4)
ON CONFLICT (code) DO UPDATE SET usage_limit = EXCLUDED.usage_limit, rule_id = EXCLUDED.rule_id, disabled = FALSE`

	for _, c := range coupons {
		tiers, err := json.Marshal(c.Rule.Tiers)
		if err != nil {
			return errors.Wrapf(err, "marshal tiers for %s", c.Code)
		}
		if _, err := pool.Exec(ctx, upsertRule,
			c.RuleID, string(c.Rule.Type), c.Rule.Value, string(c.Rule.Allocation),
			tiers, c.Rule.Description,
			orEmpty(c.Rule.ProductIDs), orEmpty(c.Rule.ChannelIDs),
			orEmpty(c.Rule.CustomerIDs), orEmpty(c.Rule.CustomerGroupIDs),
		); err != nil {
			return errors.Wrapf(err, "upsert rule %s", c.RuleID)
		}
		if _, err := pool.Exec(ctx, upsertCoupon, "coupon-"+c.Code, c.Code, c.UsageLimit, c.RuleID); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}
		slog.Info("upserted coupon", slog.String("code", c.Code), slog.String("description", c.Rule.Description))
	}
	return nil
}

func orEmpty(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
