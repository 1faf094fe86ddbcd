package coupon

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"

	"github.com/northcart/checkout/internal/domain/customer"
)

// CartContext is the read-only cart snapshot a coupon is validated against.
type CartContext struct {
	// CustomerID is empty for guest carts.
	CustomerID string
	ChannelID  string
	// ProductIDs are the distinct product IDs of the cart's line items.
	ProductIDs []string
}

// Validator checks whether a coupon code applies to a cart and returns the
// coupon with its rule loaded. Validation never mutates usage counters;
// consumption happens once, at order completion.
type Validator interface {
	Validate(ctx context.Context, code string, cart CartContext) (*Coupon, error)
}

// RepoValidator implements Validator against a coupon Repository and the
// customer directory (for group eligibility).
type RepoValidator struct {
	repo      Repository
	customers customer.Directory
	now       func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given stores.
func NewRepoValidator(repo Repository, customers customer.Directory) *RepoValidator {
	return &RepoValidator{repo: repo, customers: customers, now: time.Now}
}

// Validate runs the eligibility checks in a fixed order, short-circuiting on
// the first failure so callers see stable rejection reasons:
// existence/disabled, usage limit, validity window, customer restrictions,
// sales channel, product eligibility.
func (v *RepoValidator) Validate(ctx context.Context, code string, cart CartContext) (*Coupon, error) {
	cpn, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	if cpn.Disabled {
		return nil, ErrInvalidCoupon
	}

	if cpn.Exhausted() {
		return nil, ErrUsageLimitReached
	}

	if !cpn.ActiveAt(v.now()) {
		return nil, ErrInvalidCoupon
	}

	rule := &cpn.Rule

	if rule.RestrictsCustomers() {
		if cart.CustomerID == "" {
			return nil, ErrAuthenticationRequired
		}
		ok, err := v.customerEligible(ctx, rule, cart.CustomerID)
		if err != nil {
			return nil, errors.Wrap(err, "check customer eligibility")
		}
		if !ok {
			return nil, ErrNotApplicableToUser
		}
	}

	if len(rule.ChannelIDs) > 0 && !slices.Contains(rule.ChannelIDs, cart.ChannelID) {
		return nil, ErrInvalidSalesChannel
	}

	if len(rule.ProductIDs) > 0 && !intersects(rule.ProductIDs, cart.ProductIDs) {
		return nil, ErrNotApplicableToProducts
	}

	return cpn, nil
}

// customerEligible reports whether the customer is directly listed or belongs
// to any of the rule's allowed groups.
func (v *RepoValidator) customerEligible(ctx context.Context, rule *Rule, customerID string) (bool, error) {
	if slices.Contains(rule.CustomerIDs, customerID) {
		return true, nil
	}
	for _, groupID := range rule.CustomerGroupIDs {
		ok, err := v.customers.BelongsToGroup(ctx, customerID, groupID)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func intersects(a, b []string) bool {
	for _, s := range b {
		if slices.Contains(a, s) {
			return true
		}
	}
	return false
}
