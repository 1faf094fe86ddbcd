package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// RuleType enumerates the supported discount strategies.
type RuleType string

const (
	// RulePercentage applies a percentage discount to the eligible subtotal.
	RulePercentage RuleType = "percentage"
	// RuleFixed applies a fixed monetary discount capped at the eligible subtotal.
	RuleFixed RuleType = "fixed"
	// RuleFreeShipping zeroes the shipping total of the order.
	RuleFreeShipping RuleType = "free_shipping"
	// RuleTiered applies the percentage of the highest tier the subtotal reaches.
	RuleTiered RuleType = "tiered"
)

// Allocation determines what a rule's discount is applied to.
type Allocation string

const (
	// AllocationTotal discounts the whole cart subtotal.
	AllocationTotal Allocation = "total"
	// AllocationItem discounts only the lines eligible under the rule's
	// product set, attributed per line.
	AllocationItem Allocation = "item"
)

// Typed rejection reasons, in the order the validator checks them.
var (
	// ErrInvalidCoupon covers unknown, disabled, and out-of-window codes.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrUsageLimitReached is returned when a coupon has exhausted its uses.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrAuthenticationRequired is returned for customer-restricted coupons
	// applied to a guest cart.
	ErrAuthenticationRequired = errors.New("coupon requires a signed-in customer")
	// ErrNotApplicableToUser is returned when the cart's customer is outside
	// the coupon's customer or group eligibility sets.
	ErrNotApplicableToUser = errors.New("coupon not applicable to this customer")
	// ErrInvalidSalesChannel is returned when the cart's sales channel is
	// outside the coupon's channel eligibility set.
	ErrInvalidSalesChannel = errors.New("coupon not valid for this sales channel")
	// ErrNotApplicableToProducts is returned when no cart product is in the
	// coupon's product eligibility set.
	ErrNotApplicableToProducts = errors.New("coupon not applicable to cart products")
)

// Tier is one step of a tiered rule: carts whose subtotal reaches
// MinSubtotal get Value percent off. The highest qualifying tier wins.
type Tier struct {
	MinSubtotal decimal.Decimal `json:"min_subtotal"`
	Value       decimal.Decimal `json:"value"`
}

// Rule is the computable discount effect attached to a coupon, plus its
// eligibility restrictions. An empty set on a dimension means unrestricted
// on that dimension; dimensions combine with AND.
type Rule struct {
	ID          string
	Type        RuleType
	Value       decimal.Decimal
	Allocation  Allocation
	Tiers       []Tier
	Description string

	ProductIDs       []string
	ChannelIDs       []string
	CustomerIDs      []string
	CustomerGroupIDs []string
}

// RestrictsCustomers reports whether the rule limits who may redeem it.
func (r *Rule) RestrictsCustomers() bool {
	return len(r.CustomerIDs) > 0 || len(r.CustomerGroupIDs) > 0
}

// Coupon is a redeemable code carrying one discount rule. Codes are
// case-sensitive and globally unique. UsageCount only moves at order
// completion, never on validation.
type Coupon struct {
	ID         string
	Code       string
	Disabled   bool
	UsageLimit *int
	UsageCount int
	StartsAt   time.Time
	EndsAt     *time.Time
	Rule       Rule
}

// Exhausted reports whether the coupon has no uses left.
func (c *Coupon) Exhausted() bool {
	return c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit
}

// ActiveAt reports whether now falls inside the coupon's validity window.
func (c *Coupon) ActiveAt(now time.Time) bool {
	if now.Before(c.StartsAt) {
		return false
	}
	if c.EndsAt != nil && now.After(*c.EndsAt) {
		return false
	}
	return true
}

// Repository provides coupon lookup with the rule and its eligibility sets
// fully loaded. Lookup is exact and case-sensitive.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
}
