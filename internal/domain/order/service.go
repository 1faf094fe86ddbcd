package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/northcart/checkout/internal/domain/cart"
	"github.com/northcart/checkout/internal/domain/catalog"
	"github.com/northcart/checkout/internal/domain/channel"
	"github.com/northcart/checkout/internal/domain/coupon"
	"github.com/northcart/checkout/internal/domain/customer"
	"github.com/northcart/checkout/internal/domain/payment"
)

// TotalsConfig holds the shipping/tax placeholders applied at completion.
type TotalsConfig struct {
	// FlatShipping is charged once per order containing physical lines.
	FlatShipping decimal.Decimal
	// TaxRate is applied to the discounted subtotal (0.2 = 20%).
	TaxRate decimal.Decimal
}

// Service is the order completion orchestrator: it re-validates the cart,
// then atomically creates the order, its items, the payment placeholder,
// commits inventory reservations, consumes the coupon use, and closes the
// cart, all in one transaction.
type Service struct {
	carts     cart.Repository
	variants  catalog.Repository
	channels  channel.Registry
	customers customer.Directory
	coupons   coupon.Validator
	addresses AddressLookup
	store     CompletionStore
	totals    TotalsConfig
	now       func() time.Time
}

// NewService creates the orchestrator with its collaborators.
func NewService(
	carts cart.Repository,
	variants catalog.Repository,
	channels channel.Registry,
	customers customer.Directory,
	coupons coupon.Validator,
	addresses AddressLookup,
	store CompletionStore,
	totals TotalsConfig,
) *Service {
	return &Service{
		carts:     carts,
		variants:  variants,
		channels:  channels,
		customers: customers,
		coupons:   coupons,
		addresses: addresses,
		store:     store,
		totals:    totals,
		now:       time.Now,
	}
}

// Complete converts the cart into an order. Either every step is durable or
// none is; on failure the cart stays open with no partial order, payment, or
// stock mutation visible. A second completion of the same cart fails with
// cart.ErrCompleted.
func (s *Service) Complete(ctx context.Context, cartID string) (*Order, error) {
	c, err := s.carts.GetWithItems(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if c.Completed() {
		return nil, cart.ErrCompleted
	}
	if c.CustomerID == "" {
		return nil, ErrCustomerRequired
	}
	if len(c.Items) == 0 {
		return nil, ErrEmptyCart
	}

	// Soft-deleted customers fail the same way as absent ones.
	exists, err := s.customers.Exists(ctx, c.CustomerID)
	if err != nil {
		return nil, errors.Wrap(err, "check customer")
	}
	if !exists {
		return nil, ErrCustomerRequired
	}

	ch, err := s.channels.Get(ctx, c.ChannelID)
	if err != nil {
		return nil, errors.Wrap(err, "resolve channel")
	}

	variants, err := s.resolveVariants(ctx, c)
	if err != nil {
		return nil, err
	}

	physical, err := hasPhysicalLines(c, variants)
	if err != nil {
		return nil, err
	}

	var shippingAddr *Address
	if physical {
		if c.ShippingAddressID == "" {
			return nil, ErrShippingAddressRequired
		}
		shippingAddr, err = s.addresses.Get(ctx, c.ShippingAddressID)
		if err != nil {
			return nil, err
		}
	}
	var billingAddr *Address
	if c.BillingAddressID != "" {
		billingAddr, err = s.addresses.Get(ctx, c.BillingAddressID)
		if err != nil {
			return nil, err
		}
	}

	// Re-validate the coupon against the cart's final contents. The usage
	// counter moves only inside the transaction below.
	var (
		cpn  *coupon.Coupon
		disc coupon.Discount
	)
	if c.CouponCode != "" {
		cpn, err = s.coupons.Validate(ctx, c.CouponCode, coupon.CartContext{
			CustomerID: c.CustomerID,
			ChannelID:  c.ChannelID,
			ProductIDs: c.ProductIDs(),
		})
		if err != nil {
			return nil, err
		}
		disc, err = coupon.Apply(&cpn.Rule, discountItems(c))
		if err != nil {
			return nil, errors.Wrap(err, "compute discount")
		}
	}

	o := s.buildOrder(c, cpn, disc, physical, shippingAddr, billingAddr)

	err = s.store.RunCompletion(ctx, func(ctx context.Context, tx CompletionTx) error {
		if err := tx.MarkCartCompleted(ctx, c.ID, o.CreatedAt); err != nil {
			return err
		}
		if err := tx.CreateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		for i, item := range c.Items {
			if variants[i].Fulfillment != catalog.FulfillmentPhysical {
				continue
			}
			if err := tx.CommitStock(ctx, item.VariantID, ch.StockLocationID, int64(item.Quantity)); err != nil {
				return err
			}
		}
		if err := tx.CreatePayment(ctx, &payment.Payment{
			ID:        uuid.New().String(),
			OrderID:   o.ID,
			Amount:    o.Total,
			Currency:  o.Currency,
			Status:    payment.StatusAwaiting,
			CreatedAt: o.CreatedAt,
		}); err != nil {
			return errors.Wrap(err, "create payment")
		}
		if cpn != nil {
			if err := tx.ConsumeCouponUse(ctx, cpn.Code); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return o, nil
}

// resolveVariants batch-fetches the cart's variants, ordered like the cart's
// items, and fails when any is missing from the catalog.
func (s *Service) resolveVariants(ctx context.Context, c *cart.Cart) ([]catalog.Variant, error) {
	ids := make([]string, len(c.Items))
	for i, item := range c.Items {
		ids[i] = item.VariantID
	}

	fetched, err := s.variants.GetVariants(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get variants")
	}
	byID := make(map[string]catalog.Variant, len(fetched))
	for _, v := range fetched {
		byID[v.ID] = v
	}

	ordered := make([]catalog.Variant, len(c.Items))
	for i, item := range c.Items {
		v, ok := byID[item.VariantID]
		if !ok {
			return nil, errors.Wrapf(catalog.ErrVariantNotFound, "variant %s", item.VariantID)
		}
		ordered[i] = v
	}
	return ordered, nil
}

// hasPhysicalLines reports whether any line needs shipping, rejecting
// variants with an unknown fulfillment kind.
func hasPhysicalLines(c *cart.Cart, variants []catalog.Variant) (bool, error) {
	physical := false
	for i := range c.Items {
		switch variants[i].Fulfillment {
		case catalog.FulfillmentPhysical:
			physical = true
		case catalog.FulfillmentDigital, catalog.FulfillmentService:
		default:
			return false, errors.Errorf("unknown fulfillment kind %q for variant %s",
				variants[i].Fulfillment, variants[i].ID)
		}
	}
	return physical, nil
}

func discountItems(c *cart.Cart) []coupon.Item {
	items := make([]coupon.Item, len(c.Items))
	for i, item := range c.Items {
		items[i] = coupon.Item{
			ProductID: item.ProductID,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		}
	}
	return items
}

// buildOrder assembles the frozen order: snapshots from the cart lines,
// totals from the discounted subtotal plus shipping/tax placeholders.
func (s *Service) buildOrder(
	c *cart.Cart,
	cpn *coupon.Coupon,
	disc coupon.Discount,
	physical bool,
	shippingAddr, billingAddr *Address,
) *Order {
	now := s.now().UTC()

	o := &Order{
		ID:                uuid.New().String(),
		CustomerID:        c.CustomerID,
		CartID:            c.ID,
		ChannelID:         c.ChannelID,
		Currency:          c.Currency,
		Status:            StatusPending,
		PaymentStatus:     PaymentAwaiting,
		FulfillmentStatus: FulfillmentNotFulfilled,
		ShippingAddress:   shippingAddr,
		BillingAddress:    billingAddr,
		CreatedAt:         now,
	}

	o.Items = make([]Item, len(c.Items))
	for i, item := range c.Items {
		o.Items[i] = Item{
			ID:             uuid.New().String(),
			OrderID:        o.ID,
			VariantID:      item.VariantID,
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			DiscountAmount: decimal.Zero,
			Metadata:       item.Metadata,
		}
		if cpn != nil && disc.ItemAmounts != nil && disc.ItemAmounts[i].IsPositive() {
			o.Items[i].DiscountRuleID = cpn.Rule.ID
			o.Items[i].DiscountAmount = disc.ItemAmounts[i]
		}
	}

	subtotal := o.Subtotal()

	shipping := decimal.Zero
	if physical {
		shipping = s.totals.FlatShipping
	}
	if disc.FreeShipping {
		shipping = decimal.Zero
	}

	discountTotal := disc.Amount
	taxable := subtotal.Sub(discountTotal)
	if taxable.IsNegative() {
		taxable = decimal.Zero
	}
	tax := taxable.Mul(s.totals.TaxRate).Round(2)

	total := subtotal.Sub(discountTotal).Add(shipping).Add(tax)
	if total.IsNegative() {
		total = decimal.Zero
	}

	if cpn != nil {
		o.CouponCode = cpn.Code
	}
	o.DiscountTotal = discountTotal.Round(2)
	o.ShippingTotal = shipping.Round(2)
	o.TaxTotal = tax
	o.Total = total.Round(2)
	return o
}
