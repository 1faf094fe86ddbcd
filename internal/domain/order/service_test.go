package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northcart/checkout/internal/domain/cart"
	"github.com/northcart/checkout/internal/domain/catalog"
	"github.com/northcart/checkout/internal/domain/channel"
	"github.com/northcart/checkout/internal/domain/coupon"
	"github.com/northcart/checkout/internal/domain/customer"
	"github.com/northcart/checkout/internal/domain/inventory"
	"github.com/northcart/checkout/internal/domain/payment"
)

// --- Mock implementations ---

type mockCartRepo struct {
	carts map[string]*cart.Cart
}

func (m *mockCartRepo) Create(_ context.Context, c *cart.Cart) error {
	m.carts[c.ID] = c
	return nil
}

func (m *mockCartRepo) GetWithItems(_ context.Context, id string) (*cart.Cart, error) {
	c, ok := m.carts[id]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return c, nil
}

func (m *mockCartRepo) UpsertItem(context.Context, *cart.Item) error          { return nil }
func (m *mockCartRepo) DeleteItem(context.Context, string, string) error      { return nil }
func (m *mockCartRepo) SetCoupon(context.Context, string, string) error       { return nil }
func (m *mockCartRepo) SetCustomer(context.Context, string, string) error     { return nil }
func (m *mockCartRepo) SetShippingAddress(context.Context, string, string) error {
	return nil
}
func (m *mockCartRepo) SetBillingAddress(context.Context, string, string) error {
	return nil
}

type mockCatalog struct {
	byID map[string]catalog.Variant
}

func (m *mockCatalog) GetVariant(_ context.Context, id string) (*catalog.Variant, error) {
	v, ok := m.byID[id]
	if !ok {
		return nil, catalog.ErrVariantNotFound
	}
	return &v, nil
}

func (m *mockCatalog) GetVariants(_ context.Context, ids []string) ([]catalog.Variant, error) {
	var out []catalog.Variant
	for _, id := range ids {
		if v, ok := m.byID[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

type mockChannels struct{}

func (mockChannels) Get(_ context.Context, id string) (*channel.Channel, error) {
	if id != "web" {
		return nil, channel.ErrNotFound
	}
	return &channel.Channel{ID: "web", Name: "Web", StockLocationID: "loc-main"}, nil
}

func (mockChannels) Exists(_ context.Context, id string) (bool, error) {
	return id == "web", nil
}

type mockCustomers struct {
	existing map[string]bool
}

func (m *mockCustomers) Get(_ context.Context, id string) (*customer.Customer, error) {
	if !m.existing[id] {
		return nil, customer.ErrNotFound
	}
	return &customer.Customer{ID: id, Status: customer.StatusActive}, nil
}

func (m *mockCustomers) Exists(_ context.Context, id string) (bool, error) {
	return m.existing[id], nil
}

func (m *mockCustomers) BelongsToGroup(context.Context, string, string) (bool, error) {
	return false, nil
}

type mockValidator struct {
	coupon *coupon.Coupon
	err    error
}

func (m *mockValidator) Validate(context.Context, string, coupon.CartContext) (*coupon.Coupon, error) {
	return m.coupon, m.err
}

type mockAddresses struct {
	byID map[string]*Address
}

func (m *mockAddresses) Get(_ context.Context, id string) (*Address, error) {
	a, ok := m.byID[id]
	if !ok {
		return nil, ErrAddressNotFound
	}
	return a, nil
}

// stockKey addresses one committed stock deduction.
type stockKey struct {
	variantID  string
	locationID string
}

// mockStore records the completion transaction's effects and simulates its
// atomicity: a step error discards everything recorded before it.
type mockStore struct {
	completedCarts  map[string]time.Time
	createdOrder    *Order
	createdPayment  *payment.Payment
	committedStock  map[stockKey]int64
	consumedCoupons []string

	commitStockErr error
	consumeErr     error
}

func newMockStore() *mockStore {
	return &mockStore{
		completedCarts: make(map[string]time.Time),
		committedStock: make(map[stockKey]int64),
	}
}

func (m *mockStore) RunCompletion(ctx context.Context, fn func(ctx context.Context, tx CompletionTx) error) error {
	tx := &mockTx{store: newMockStore()}
	tx.store.commitStockErr = m.commitStockErr
	tx.store.consumeErr = m.consumeErr
	for k, v := range m.completedCarts {
		tx.store.completedCarts[k] = v
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	// Commit: adopt the transaction's state.
	*m = *tx.store
	return nil
}

type mockTx struct {
	store *mockStore
}

func (t *mockTx) MarkCartCompleted(_ context.Context, cartID string, at time.Time) error {
	if _, done := t.store.completedCarts[cartID]; done {
		return cart.ErrCompleted
	}
	t.store.completedCarts[cartID] = at
	return nil
}

func (t *mockTx) CreateOrder(_ context.Context, o *Order) error {
	o.DisplayID = 1001
	t.store.createdOrder = o
	return nil
}

func (t *mockTx) CommitStock(_ context.Context, variantID, locationID string, qty int64) error {
	if t.store.commitStockErr != nil {
		return t.store.commitStockErr
	}
	t.store.committedStock[stockKey{variantID, locationID}] += qty
	return nil
}

func (t *mockTx) CreatePayment(_ context.Context, p *payment.Payment) error {
	t.store.createdPayment = p
	return nil
}

func (t *mockTx) ConsumeCouponUse(_ context.Context, code string) error {
	if t.store.consumeErr != nil {
		return t.store.consumeErr
	}
	t.store.consumedCoupons = append(t.store.consumedCoupons, code)
	return nil
}

// --- Helpers ---

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

type fixture struct {
	carts     *mockCartRepo
	validator *mockValidator
	store     *mockStore
	svc       *Service
}

func newFixture(totals TotalsConfig) *fixture {
	carts := &mockCartRepo{carts: make(map[string]*cart.Cart)}
	cat := &mockCatalog{byID: map[string]catalog.Variant{
		"var-tee":   {ID: "var-tee", ProductID: "prod-tee", Name: "Tee", Price: dec("100.00"), Fulfillment: catalog.FulfillmentPhysical},
		"var-mug":   {ID: "var-mug", ProductID: "prod-mug", Name: "Mug", Price: dec("12.50"), Fulfillment: catalog.FulfillmentPhysical},
		"var-ebook": {ID: "var-ebook", ProductID: "prod-ebook", Name: "eBook", Price: dec("9.00"), Fulfillment: catalog.FulfillmentDigital},
		"var-bogus": {ID: "var-bogus", ProductID: "prod-bogus", Name: "Bogus", Price: dec("1.00"), Fulfillment: "teleport"},
	}}
	customers := &mockCustomers{existing: map[string]bool{"cust-1": true}}
	validator := &mockValidator{}
	addresses := &mockAddresses{byID: map[string]*Address{
		"addr-1": {Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"},
	}}
	store := newMockStore()

	svc := NewService(carts, cat, mockChannels{}, customers, validator, addresses, store, totals)
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	return &fixture{carts: carts, validator: validator, store: store, svc: svc}
}

func (f *fixture) addCart(c *cart.Cart) {
	f.carts.carts[c.ID] = c
}

func physicalCart(items ...cart.Item) *cart.Cart {
	return &cart.Cart{
		ID:                "cart-1",
		CustomerID:        "cust-1",
		ChannelID:         "web",
		Currency:          "USD",
		ShippingAddressID: "addr-1",
		Items:             items,
	}
}

func teeLine(qty int) cart.Item {
	return cart.Item{
		ID: "item-tee", CartID: "cart-1",
		VariantID: "var-tee", ProductID: "prod-tee",
		Quantity: qty, UnitPrice: dec("100.00"),
	}
}

// --- Tests ---

func TestComplete_PercentageCoupon(t *testing.T) {
	f := newFixture(TotalsConfig{FlatShipping: decimal.Zero, TaxRate: decimal.Zero})
	c := physicalCart(teeLine(2))
	c.CouponCode = "SAVE10"
	f.addCart(c)
	f.validator.coupon = &coupon.Coupon{
		Code: "SAVE10",
		Rule: coupon.Rule{ID: "rule-1", Type: coupon.RulePercentage, Value: dec("10")},
	}

	o, err := f.svc.Complete(context.Background(), "cart-1")
	require.NoError(t, err)

	assertDecimal(t, "200.00", o.Subtotal())
	assertDecimal(t, "20.00", o.DiscountTotal)
	assertDecimal(t, "180.00", o.Total)
	assert.Equal(t, "SAVE10", o.CouponCode)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentAwaiting, o.PaymentStatus)
	assert.Equal(t, FulfillmentNotFulfilled, o.FulfillmentStatus)
	assert.Equal(t, int64(1001), o.DisplayID)

	// All transactional effects landed.
	assert.Contains(t, f.store.completedCarts, "cart-1")
	assert.Equal(t, int64(2), f.store.committedStock[stockKey{"var-tee", "loc-main"}])
	assert.Equal(t, []string{"SAVE10"}, f.store.consumedCoupons)
	require.NotNil(t, f.store.createdPayment)
	assertDecimal(t, "180.00", f.store.createdPayment.Amount)
	assert.Equal(t, payment.StatusAwaiting, f.store.createdPayment.Status)
}

func TestComplete_NoCoupon(t *testing.T) {
	f := newFixture(TotalsConfig{FlatShipping: decimal.Zero, TaxRate: decimal.Zero})
	f.addCart(physicalCart(teeLine(1)))

	o, err := f.svc.Complete(context.Background(), "cart-1")
	require.NoError(t, err)
	assertDecimal(t, "100.00", o.Total)
	assertDecimal(t, "0", o.DiscountTotal)
	assert.Empty(t, f.store.consumedCoupons)
}

func TestComplete_ShippingAndTax(t *testing.T) {
	f := newFixture(TotalsConfig{FlatShipping: dec("7.50"), TaxRate: dec("0.2")})
	f.addCart(physicalCart(teeLine(1)))

	o, err := f.svc.Complete(context.Background(), "cart-1")
	require.NoError(t, err)
	assertDecimal(t, "7.50", o.ShippingTotal)
	assertDecimal(t, "20.00", o.TaxTotal)
	assertDecimal(t, "127.50", o.Total)
}

func TestComplete_FreeShippingCoupon(t *testing.T) {
	f := newFixture(TotalsConfig{FlatShipping: dec("7.50"), TaxRate: decimal.Zero})
	c := physicalCart(teeLine(1))
	c.CouponCode = "SHIPFREE"
	f.addCart(c)
	f.validator.coupon = &coupon.Coupon{
		Code: "SHIPFREE",
		Rule: coupon.Rule{ID: "rule-2", Type: coupon.RuleFreeShipping},
	}

	o, err := f.svc.Complete(context.Background(), "cart-1")
	require.NoError(t, err)
	assertDecimal(t, "0", o.ShippingTotal)
	assertDecimal(t, "0", o.DiscountTotal)
	assertDecimal(t, "100.00", o.Total)
}

func TestComplete_ItemAllocatedDiscountAttribution(t *testing.T) {
	f := newFixture(TotalsConfig{FlatShipping: decimal.Zero, TaxRate: decimal.Zero})
	c := physicalCart(
		teeLine(1),
		cart.Item{ID: "item-mug", CartID: "cart-1", VariantID: "var-mug", ProductID: "prod-mug", Quantity: 2, UnitPrice: dec("12.50")},
	)
	c.CouponCode = "TEESALE"
	f.addCart(c)
	f.validator.coupon = &coupon.Coupon{
		Code: "TEESALE",
		Rule: coupon.Rule{
			ID:         "rule-3",
			Type:       coupon.RulePercentage,
			Value:      dec("20"),
			Allocation: coupon.AllocationItem,
			ProductIDs: []string{"prod-tee"},
		},
	}

	o, err := f.svc.Complete(context.Background(), "cart-1")
	require.NoError(t, err)
	assertDecimal(t, "20.00", o.DiscountTotal)
	require.Len(t, o.Items, 2)
	assert.Equal(t, "rule-3", o.Items[0].DiscountRuleID)
	assertDecimal(t, "20.00", o.Items[0].DiscountAmount)
	assert.Empty(t, o.Items[1].DiscountRuleID)
	assertDecimal(t, "0", o.Items[1].DiscountAmount)
}

func TestComplete_DigitalOnlySkipsShippingAndStock(t *testing.T) {
	f := newFixture(TotalsConfig{FlatShipping: dec("7.50"), TaxRate: decimal.Zero})
	c := physicalCart(cart.Item{
		ID: "item-ebook", CartID: "cart-1",
		VariantID: "var-ebook", ProductID: "prod-ebook",
		Quantity: 1, UnitPrice: dec("9.00"),
		Metadata: map[string]string{"delivery_email": "demo@example.com"},
	})
	c.ShippingAddressID = "" // digital carts need no address
	f.addCart(c)

	o, err := f.svc.Complete(context.Background(), "cart-1")
	require.NoError(t, err)
	assertDecimal(t, "0", o.ShippingTotal)
	assertDecimal(t, "9.00", o.Total)
	assert.Nil(t, o.ShippingAddress)
	assert.Empty(t, f.store.committedStock)
	assert.Equal(t, "demo@example.com", o.Items[0].Metadata["delivery_email"])
}

func TestComplete_PhysicalRequiresShippingAddress(t *testing.T) {
	f := newFixture(TotalsConfig{})
	c := physicalCart(teeLine(1))
	c.ShippingAddressID = ""
	f.addCart(c)

	_, err := f.svc.Complete(context.Background(), "cart-1")
	require.ErrorIs(t, err, ErrShippingAddressRequired)
	assert.Empty(t, f.store.completedCarts)
}

func TestComplete_UnknownFulfillmentKind(t *testing.T) {
	f := newFixture(TotalsConfig{})
	f.addCart(physicalCart(cart.Item{
		ID: "item-b", CartID: "cart-1",
		VariantID: "var-bogus", ProductID: "prod-bogus",
		Quantity: 1, UnitPrice: dec("1.00"),
	}))

	_, err := f.svc.Complete(context.Background(), "cart-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown fulfillment kind")
}

func TestComplete_GuestCart(t *testing.T) {
	f := newFixture(TotalsConfig{})
	c := physicalCart(teeLine(1))
	c.CustomerID = ""
	f.addCart(c)

	_, err := f.svc.Complete(context.Background(), "cart-1")
	require.ErrorIs(t, err, ErrCustomerRequired)
}

func TestComplete_SoftDeletedCustomer(t *testing.T) {
	f := newFixture(TotalsConfig{})
	c := physicalCart(teeLine(1))
	c.CustomerID = "cust-gone"
	f.addCart(c)

	_, err := f.svc.Complete(context.Background(), "cart-1")
	require.ErrorIs(t, err, ErrCustomerRequired)
}

func TestComplete_EmptyCart(t *testing.T) {
	f := newFixture(TotalsConfig{})
	f.addCart(physicalCart())

	_, err := f.svc.Complete(context.Background(), "cart-1")
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestComplete_AlreadyCompleted(t *testing.T) {
	f := newFixture(TotalsConfig{})
	c := physicalCart(teeLine(1))
	done := time.Now().UTC()
	c.CompletedAt = &done
	f.addCart(c)

	_, err := f.svc.Complete(context.Background(), "cart-1")
	require.ErrorIs(t, err, cart.ErrCompleted)
}

func TestComplete_ConcurrentCompletionLosesGate(t *testing.T) {
	f := newFixture(TotalsConfig{})
	f.addCart(physicalCart(teeLine(1)))
	// Another request completed the cart between the read and the transaction.
	f.store.completedCarts["cart-1"] = time.Now().UTC()

	_, err := f.svc.Complete(context.Background(), "cart-1")
	require.ErrorIs(t, err, cart.ErrCompleted)
}

func TestComplete_CouponRevalidationFails(t *testing.T) {
	f := newFixture(TotalsConfig{})
	c := physicalCart(teeLine(1))
	c.CouponCode = "EXPIRED"
	f.addCart(c)
	f.validator.err = coupon.ErrInvalidCoupon

	_, err := f.svc.Complete(context.Background(), "cart-1")
	require.ErrorIs(t, err, coupon.ErrInvalidCoupon)
	assert.Empty(t, f.store.completedCarts)
}

func TestComplete_InsufficientStockRollsBack(t *testing.T) {
	f := newFixture(TotalsConfig{})
	f.addCart(physicalCart(teeLine(5)))
	f.store.commitStockErr = errors.Wrap(inventory.ErrInsufficientReserved, "commit stock var-tee")

	_, err := f.svc.Complete(context.Background(), "cart-1")
	require.ErrorIs(t, err, inventory.ErrInsufficientReserved)

	// Nothing from the transaction is visible.
	assert.Empty(t, f.store.completedCarts)
	assert.Nil(t, f.store.createdOrder)
	assert.Nil(t, f.store.createdPayment)
}

func TestComplete_CouponExhaustedAtCommitRollsBack(t *testing.T) {
	f := newFixture(TotalsConfig{})
	c := physicalCart(teeLine(1))
	c.CouponCode = "LASTONE"
	f.addCart(c)
	f.validator.coupon = &coupon.Coupon{
		Code: "LASTONE",
		Rule: coupon.Rule{ID: "rule-4", Type: coupon.RulePercentage, Value: dec("10")},
	}
	f.store.consumeErr = coupon.ErrUsageLimitReached

	_, err := f.svc.Complete(context.Background(), "cart-1")
	require.ErrorIs(t, err, coupon.ErrUsageLimitReached)
	assert.Empty(t, f.store.completedCarts)
	assert.Empty(t, f.store.committedStock)
}

func TestComplete_VariantVanishedFromCatalog(t *testing.T) {
	f := newFixture(TotalsConfig{})
	f.addCart(physicalCart(cart.Item{
		ID: "item-x", CartID: "cart-1",
		VariantID: "var-gone", ProductID: "prod-gone",
		Quantity: 1, UnitPrice: dec("5.00"),
	}))

	_, err := f.svc.Complete(context.Background(), "cart-1")
	require.ErrorIs(t, err, catalog.ErrVariantNotFound)
}

func TestComplete_OverdiscountFlooredAtZero(t *testing.T) {
	f := newFixture(TotalsConfig{})
	c := physicalCart(teeLine(1))
	c.CouponCode = "FREE"
	f.addCart(c)
	f.validator.coupon = &coupon.Coupon{
		Code: "FREE",
		Rule: coupon.Rule{ID: "rule-5", Type: coupon.RulePercentage, Value: dec("100")},
	}

	o, err := f.svc.Complete(context.Background(), "cart-1")
	require.NoError(t, err)
	assertDecimal(t, "0", o.Total)
	assertDecimal(t, "100.00", o.DiscountTotal)
}

func TestComplete_AddressSnapshotCopied(t *testing.T) {
	f := newFixture(TotalsConfig{})
	f.addCart(physicalCart(teeLine(1)))

	o, err := f.svc.Complete(context.Background(), "cart-1")
	require.NoError(t, err)
	require.NotNil(t, o.ShippingAddress)
	assert.Equal(t, "1 Main St", o.ShippingAddress.Line1)
	assert.Equal(t, "US", o.ShippingAddress.Country)
	// No billing address on the cart, none on the order.
	assert.Nil(t, o.BillingAddress)
}

func TestComplete_BillingAddressSnapshotCopied(t *testing.T) {
	f := newFixture(TotalsConfig{})
	c := physicalCart(teeLine(1))
	c.BillingAddressID = "addr-1"
	f.addCart(c)

	o, err := f.svc.Complete(context.Background(), "cart-1")
	require.NoError(t, err)
	require.NotNil(t, o.BillingAddress)
	assert.Equal(t, "1 Main St", o.BillingAddress.Line1)
}

func TestComplete_UnknownBillingAddress(t *testing.T) {
	f := newFixture(TotalsConfig{})
	c := physicalCart(teeLine(1))
	c.BillingAddressID = "addr-nope"
	f.addCart(c)

	_, err := f.svc.Complete(context.Background(), "cart-1")
	require.ErrorIs(t, err, ErrAddressNotFound)
	assert.Empty(t, f.store.completedCarts)
}
