package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/northcart/checkout/internal/domain/catalog"
	"github.com/northcart/checkout/internal/domain/channel"
	"github.com/northcart/checkout/internal/domain/coupon"
)

// Service implements the cart aggregate's operations on top of the cart
// repository, the catalog, the coupon validator, and the stock reserver.
// Physical lines hold stock at the cart channel's location for as long as
// they sit in an open cart, so completion finds its reservations in place.
type Service struct {
	carts    Repository
	variants catalog.Repository
	channels channel.Registry
	coupons  coupon.Validator
	stock    StockReserver
}

// NewService creates a cart Service with the required dependencies.
func NewService(
	carts Repository,
	variants catalog.Repository,
	channels channel.Registry,
	coupons coupon.Validator,
	stock StockReserver,
) *Service {
	return &Service{
		carts:    carts,
		variants: variants,
		channels: channels,
		coupons:  coupons,
		stock:    stock,
	}
}

// Create opens an empty cart on the given sales channel. customerID may be
// empty for guest carts.
func (s *Service) Create(ctx context.Context, customerID, channelID, currency string) (*Cart, error) {
	ch, err := s.channels.Get(ctx, channelID)
	if err != nil {
		return nil, errors.Wrap(err, "resolve channel")
	}
	if ch.Disabled {
		return nil, channel.ErrNotFound
	}

	c := &Cart{
		ID:         uuid.New().String(),
		CustomerID: customerID,
		ChannelID:  channelID,
		Currency:   currency,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.carts.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create cart")
	}
	return c, nil
}

// Get returns the cart fully hydrated with its line items.
func (s *Service) Get(ctx context.Context, cartID string) (*Cart, error) {
	return s.carts.GetWithItems(ctx, cartID)
}

// AddOrUpdateItem applies a quantity delta for the given variant. A new line
// snapshots the variant's current price; an existing line has its quantity
// incremented. A delta driving an existing line to zero or below removes the
// line. A zero delta, or a negative delta for an absent variant, is invalid.
// Physical lines reserve the added quantity at the channel's stock location
// before the line is written, so an out-of-stock variant never enters the
// cart; decrements and removals release the matching hold.
func (s *Service) AddOrUpdateItem(ctx context.Context, cartID, variantID string, quantity int, metadata map[string]string) (*Cart, error) {
	if quantity == 0 {
		return nil, ErrInvalidQuantity
	}

	c, err := s.carts.GetWithItems(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if c.Completed() {
		return nil, ErrCompleted
	}

	existing, hasLine := c.ItemByVariant(variantID)
	if !hasLine && quantity < 0 {
		return nil, ErrInvalidQuantity
	}

	v, err := s.variants.GetVariant(ctx, variantID)
	if err != nil {
		return nil, errors.Wrap(err, "resolve variant")
	}
	loc, held, err := s.holdLocation(ctx, c, v)
	if err != nil {
		return nil, err
	}

	if hasLine {
		next := existing.Quantity + quantity
		if next <= 0 {
			if err := s.carts.DeleteItem(ctx, cartID, existing.ID); err != nil {
				return nil, errors.Wrap(err, "remove depleted item")
			}
			if held {
				if err := s.stock.Release(ctx, v.ID, loc, int64(existing.Quantity)); err != nil {
					return nil, errors.Wrap(err, "release hold")
				}
			}
			return s.carts.GetWithItems(ctx, cartID)
		}
		if held && quantity > 0 {
			if err := s.stock.Reserve(ctx, v.ID, loc, int64(quantity)); err != nil {
				return nil, err
			}
		}
		updated := *existing
		updated.Quantity = next
		if err := s.carts.UpsertItem(ctx, &updated); err != nil {
			if held && quantity > 0 {
				_ = s.stock.Release(ctx, v.ID, loc, int64(quantity))
			}
			return nil, errors.Wrap(err, "update item quantity")
		}
		if held && quantity < 0 {
			if err := s.stock.Release(ctx, v.ID, loc, int64(-quantity)); err != nil {
				return nil, errors.Wrap(err, "release hold")
			}
		}
		return s.carts.GetWithItems(ctx, cartID)
	}

	if held {
		if err := s.stock.Reserve(ctx, v.ID, loc, int64(quantity)); err != nil {
			return nil, err
		}
	}
	item := &Item{
		ID:        uuid.New().String(),
		CartID:    cartID,
		VariantID: v.ID,
		ProductID: v.ProductID,
		Quantity:  quantity,
		UnitPrice: v.Price,
		Metadata:  metadata,
	}
	if err := s.carts.UpsertItem(ctx, item); err != nil {
		if held {
			_ = s.stock.Release(ctx, v.ID, loc, int64(quantity))
		}
		return nil, errors.Wrap(err, "add item")
	}
	return s.carts.GetWithItems(ctx, cartID)
}

// RemoveItem deletes a line from the cart and releases its stock hold. It
// fails with ErrItemNotFound when the item does not belong to the given cart.
func (s *Service) RemoveItem(ctx context.Context, cartID, itemID string) (*Cart, error) {
	c, err := s.carts.GetWithItems(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if c.Completed() {
		return nil, ErrCompleted
	}

	item, ok := c.ItemByID(itemID)
	if !ok {
		return nil, ErrItemNotFound
	}
	v, err := s.variants.GetVariant(ctx, item.VariantID)
	if err != nil {
		return nil, errors.Wrap(err, "resolve variant")
	}
	loc, held, err := s.holdLocation(ctx, c, v)
	if err != nil {
		return nil, err
	}

	if err := s.carts.DeleteItem(ctx, cartID, itemID); err != nil {
		return nil, err
	}
	if held {
		if err := s.stock.Release(ctx, v.ID, loc, int64(item.Quantity)); err != nil {
			return nil, errors.Wrap(err, "release hold")
		}
	}
	return s.carts.GetWithItems(ctx, cartID)
}

// holdLocation resolves where a line's stock hold lives. Only physical
// variants carry holds; for the rest ok is false.
func (s *Service) holdLocation(ctx context.Context, c *Cart, v *catalog.Variant) (locationID string, ok bool, err error) {
	if v.Fulfillment != catalog.FulfillmentPhysical {
		return "", false, nil
	}
	ch, err := s.channels.Get(ctx, c.ChannelID)
	if err != nil {
		return "", false, errors.Wrap(err, "resolve channel")
	}
	return ch.StockLocationID, true, nil
}

// ApplyCoupon validates the code against the cart's current contents and
// stores it on success. A rejection propagates unchanged and leaves the
// cart's coupon reference untouched.
func (s *Service) ApplyCoupon(ctx context.Context, cartID, code string) (*Cart, error) {
	if code == "" {
		return nil, coupon.ErrInvalidCoupon
	}

	c, err := s.carts.GetWithItems(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if c.Completed() {
		return nil, ErrCompleted
	}

	_, err = s.coupons.Validate(ctx, code, coupon.CartContext{
		CustomerID: c.CustomerID,
		ChannelID:  c.ChannelID,
		ProductIDs: c.ProductIDs(),
	})
	if err != nil {
		return nil, err
	}

	if err := s.carts.SetCoupon(ctx, cartID, code); err != nil {
		return nil, errors.Wrap(err, "store coupon")
	}
	return s.carts.GetWithItems(ctx, cartID)
}

// SetCustomer attaches a customer to a guest cart.
func (s *Service) SetCustomer(ctx context.Context, cartID, customerID string) (*Cart, error) {
	c, err := s.carts.GetWithItems(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if c.Completed() {
		return nil, ErrCompleted
	}
	if err := s.carts.SetCustomer(ctx, cartID, customerID); err != nil {
		return nil, errors.Wrap(err, "set customer")
	}
	return s.carts.GetWithItems(ctx, cartID)
}

// SetShippingAddress records the shipping address reference on the cart.
func (s *Service) SetShippingAddress(ctx context.Context, cartID, addressID string) (*Cart, error) {
	c, err := s.carts.GetWithItems(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if c.Completed() {
		return nil, ErrCompleted
	}
	if err := s.carts.SetShippingAddress(ctx, cartID, addressID); err != nil {
		return nil, errors.Wrap(err, "set shipping address")
	}
	return s.carts.GetWithItems(ctx, cartID)
}

// SetBillingAddress records the billing address reference on the cart. The
// order snapshots it at completion; carts without one bill to the shipping
// address.
func (s *Service) SetBillingAddress(ctx context.Context, cartID, addressID string) (*Cart, error) {
	c, err := s.carts.GetWithItems(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if c.Completed() {
		return nil, ErrCompleted
	}
	if err := s.carts.SetBillingAddress(ctx, cartID, addressID); err != nil {
		return nil, errors.Wrap(err, "set billing address")
	}
	return s.carts.GetWithItems(ctx, cartID)
}
