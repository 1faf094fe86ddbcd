package coupon

import (
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Item is a cart line viewed by the discount calculator.
type Item struct {
	ProductID string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Discount is the computed effect of a rule on a set of cart items.
type Discount struct {
	// Amount is the total monetary discount, rounded to 2 decimal places.
	Amount decimal.Decimal
	// ItemAmounts holds the per-line attribution, parallel to the input
	// items. It is nil for whole-cart allocations and free shipping.
	ItemAmounts []decimal.Decimal
	// FreeShipping marks that the order's shipping total is waived.
	FreeShipping bool
	Description  string
}

// Apply computes the discount for the given rule and cart items. The result
// never exceeds the eligible subtotal and never goes negative.
func Apply(rule *Rule, items []Item) (Discount, error) {
	switch rule.Type {
	case RulePercentage:
		return applyValue(rule, items, percentageOf(rule.Value)), nil
	case RuleFixed:
		return applyValue(rule, items, fixedOf(rule.Value)), nil
	case RuleFreeShipping:
		return Discount{Amount: decimal.Zero, FreeShipping: true, Description: rule.Description}, nil
	case RuleTiered:
		return applyTiered(rule, items), nil
	default:
		return Discount{}, errors.Errorf("unsupported rule type: %q", rule.Type)
	}
}

// applyValue applies calc to the rule's eligible lines, honouring allocation
// scope. For item allocation the discount is attributed proportionally to
// each eligible line's share of the eligible subtotal.
func applyValue(rule *Rule, items []Item, calc func(subtotal decimal.Decimal) decimal.Decimal) Discount {
	eligible := eligibleLines(rule, items)
	subtotal := decimal.Zero
	for i, line := range lineTotals(items) {
		if eligible[i] {
			subtotal = subtotal.Add(line)
		}
	}

	amount := clamp(calc(subtotal), subtotal).Round(2)
	d := Discount{Amount: amount, Description: rule.Description}

	if rule.Allocation == AllocationItem && amount.IsPositive() && subtotal.IsPositive() {
		d.ItemAmounts = make([]decimal.Decimal, len(items))
		remaining := amount
		lines := lineTotals(items)
		last := lastEligible(eligible)
		for i := range items {
			if !eligible[i] {
				d.ItemAmounts[i] = decimal.Zero
				continue
			}
			if i == last {
				// The last eligible line absorbs rounding drift so the
				// attribution sums exactly to Amount.
				d.ItemAmounts[i] = remaining
				continue
			}
			share := amount.Mul(lines[i]).Div(subtotal).Round(2)
			d.ItemAmounts[i] = share
			remaining = remaining.Sub(share)
		}
	}
	return d
}

// applyTiered picks the highest tier whose threshold the whole-cart subtotal
// reaches and applies its percentage. No qualifying tier means no discount.
func applyTiered(rule *Rule, items []Item) Discount {
	subtotal := decimal.Zero
	for _, line := range lineTotals(items) {
		subtotal = subtotal.Add(line)
	}

	best := decimal.Zero
	found := false
	for _, tier := range rule.Tiers {
		if subtotal.GreaterThanOrEqual(tier.MinSubtotal) && (!found || tier.Value.GreaterThan(best)) {
			best = tier.Value
			found = true
		}
	}
	if !found {
		return Discount{Amount: decimal.Zero, Description: rule.Description}
	}

	amount := clamp(subtotal.Mul(best).Div(hundred), subtotal).Round(2)
	return Discount{Amount: amount, Description: rule.Description}
}

func percentageOf(value decimal.Decimal) func(decimal.Decimal) decimal.Decimal {
	return func(subtotal decimal.Decimal) decimal.Decimal {
		return subtotal.Mul(value).Div(hundred)
	}
}

func fixedOf(value decimal.Decimal) func(decimal.Decimal) decimal.Decimal {
	return func(decimal.Decimal) decimal.Decimal {
		return value
	}
}

// eligibleLines marks which items fall under the rule's product set.
// An empty product set means every line is eligible.
func eligibleLines(rule *Rule, items []Item) []bool {
	eligible := make([]bool, len(items))
	for i, item := range items {
		eligible[i] = len(rule.ProductIDs) == 0 || slices.Contains(rule.ProductIDs, item.ProductID)
	}
	return eligible
}

func lineTotals(items []Item) []decimal.Decimal {
	lines := make([]decimal.Decimal, len(items))
	for i, item := range items {
		lines[i] = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
	}
	return lines
}

func lastEligible(eligible []bool) int {
	last := -1
	for i, ok := range eligible {
		if ok {
			last = i
		}
	}
	return last
}

// clamp bounds d to [0, max].
func clamp(d, max decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(max) {
		return max
	}
	return d
}
