package handler

import (
	"time"

	"github.com/go-faster/jx"

	"github.com/northcart/checkout/internal/domain/cart"
	"github.com/northcart/checkout/internal/domain/inventory"
	"github.com/northcart/checkout/internal/domain/order"
	"github.com/northcart/checkout/internal/domain/payment"
)

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeStrMap(e *jx.Encoder, m map[string]string) {
	e.Obj(func(e *jx.Encoder) {
		for k, v := range m {
			e.Field(k, func(e *jx.Encoder) { e.Str(v) })
		}
	})
}

func encodeCart(e *jx.Encoder, c *cart.Cart) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(c.ID) })
		e.Field("customer_id", func(e *jx.Encoder) { e.Str(c.CustomerID) })
		e.Field("channel_id", func(e *jx.Encoder) { e.Str(c.ChannelID) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(c.Currency) })
		if c.CouponCode != "" {
			e.Field("coupon_code", func(e *jx.Encoder) { e.Str(c.CouponCode) })
		}
		if c.ShippingAddressID != "" {
			e.Field("shipping_address_id", func(e *jx.Encoder) { e.Str(c.ShippingAddressID) })
		}
		if c.BillingAddressID != "" {
			e.Field("billing_address_id", func(e *jx.Encoder) { e.Str(c.BillingAddressID) })
		}
		e.Field("subtotal", func(e *jx.Encoder) { e.Str(c.Subtotal().StringFixed(2)) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range c.Items {
					encodeCartItem(e, &c.Items[i])
				}
			})
		})
		if c.CompletedAt != nil {
			e.Field("completed_at", func(e *jx.Encoder) { encodeTime(e, *c.CompletedAt) })
		}
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, c.CreatedAt) })
	})
}

func encodeCartItem(e *jx.Encoder, item *cart.Item) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(item.ID) })
		e.Field("variant_id", func(e *jx.Encoder) { e.Str(item.VariantID) })
		e.Field("product_id", func(e *jx.Encoder) { e.Str(item.ProductID) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
		e.Field("unit_price", func(e *jx.Encoder) { e.Str(item.UnitPrice.StringFixed(2)) })
		if len(item.Metadata) > 0 {
			e.Field("metadata", func(e *jx.Encoder) { encodeStrMap(e, item.Metadata) })
		}
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("display_id", func(e *jx.Encoder) { e.Int64(o.DisplayID) })
		e.Field("customer_id", func(e *jx.Encoder) { e.Str(o.CustomerID) })
		e.Field("cart_id", func(e *jx.Encoder) { e.Str(o.CartID) })
		e.Field("channel_id", func(e *jx.Encoder) { e.Str(o.ChannelID) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(o.Currency) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("payment_status", func(e *jx.Encoder) { e.Str(string(o.PaymentStatus)) })
		e.Field("fulfillment_status", func(e *jx.Encoder) { e.Str(string(o.FulfillmentStatus)) })
		if o.ShippingAddress != nil {
			e.Field("shipping_address", func(e *jx.Encoder) { encodeAddress(e, o.ShippingAddress) })
		}
		if o.BillingAddress != nil {
			e.Field("billing_address", func(e *jx.Encoder) { encodeAddress(e, o.BillingAddress) })
		}
		if o.CouponCode != "" {
			e.Field("coupon_code", func(e *jx.Encoder) { e.Str(o.CouponCode) })
		}
		e.Field("subtotal", func(e *jx.Encoder) { e.Str(o.Subtotal().StringFixed(2)) })
		e.Field("discount_total", func(e *jx.Encoder) { e.Str(o.DiscountTotal.StringFixed(2)) })
		e.Field("shipping_total", func(e *jx.Encoder) { e.Str(o.ShippingTotal.StringFixed(2)) })
		e.Field("tax_total", func(e *jx.Encoder) { e.Str(o.TaxTotal.StringFixed(2)) })
		e.Field("total", func(e *jx.Encoder) { e.Str(o.Total.StringFixed(2)) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range o.Items {
					encodeOrderItem(e, &o.Items[i])
				}
			})
		})
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
	})
}

func encodeOrderItem(e *jx.Encoder, item *order.Item) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(item.ID) })
		e.Field("variant_id", func(e *jx.Encoder) { e.Str(item.VariantID) })
		e.Field("product_id", func(e *jx.Encoder) { e.Str(item.ProductID) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
		e.Field("unit_price", func(e *jx.Encoder) { e.Str(item.UnitPrice.StringFixed(2)) })
		if item.DiscountRuleID != "" {
			e.Field("discount_rule_id", func(e *jx.Encoder) { e.Str(item.DiscountRuleID) })
			e.Field("discount_amount", func(e *jx.Encoder) { e.Str(item.DiscountAmount.StringFixed(2)) })
		}
		if len(item.Metadata) > 0 {
			e.Field("metadata", func(e *jx.Encoder) { encodeStrMap(e, item.Metadata) })
		}
	})
}

func encodeAddress(e *jx.Encoder, a *order.Address) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("line1", func(e *jx.Encoder) { e.Str(a.Line1) })
		if a.Line2 != "" {
			e.Field("line2", func(e *jx.Encoder) { e.Str(a.Line2) })
		}
		e.Field("city", func(e *jx.Encoder) { e.Str(a.City) })
		if a.Province != "" {
			e.Field("province", func(e *jx.Encoder) { e.Str(a.Province) })
		}
		e.Field("postal_code", func(e *jx.Encoder) { e.Str(a.PostalCode) })
		e.Field("country", func(e *jx.Encoder) { e.Str(a.Country) })
		if a.Phone != "" {
			e.Field("phone", func(e *jx.Encoder) { e.Str(a.Phone) })
		}
	})
}

func encodePayment(e *jx.Encoder, p *payment.Payment) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("order_id", func(e *jx.Encoder) { e.Str(p.OrderID) })
		e.Field("amount", func(e *jx.Encoder) { e.Str(p.Amount.StringFixed(2)) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(p.Currency) })
		if p.ProviderID != "" {
			e.Field("provider_id", func(e *jx.Encoder) { e.Str(p.ProviderID) })
		}
		e.Field("status", func(e *jx.Encoder) { e.Str(string(p.Status)) })
		if len(p.Data) > 0 {
			e.Field("data", func(e *jx.Encoder) { encodeStrMap(e, p.Data) })
		}
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, p.CreatedAt) })
		if p.CapturedAt != nil {
			e.Field("captured_at", func(e *jx.Encoder) { encodeTime(e, *p.CapturedAt) })
		}
	})
}

func encodeStock(e *jx.Encoder, r *inventory.Record) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("variant_id", func(e *jx.Encoder) { e.Str(r.VariantID) })
		e.Field("location_id", func(e *jx.Encoder) { e.Str(r.LocationID) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int64(r.Quantity) })
		e.Field("reserved", func(e *jx.Encoder) { e.Int64(r.Reserved) })
		e.Field("available", func(e *jx.Encoder) { e.Int64(r.Available()) })
	})
}
