//go:build integration

package integration

import (
	"net/http"
	"regexp"
	"testing"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// Cart helpers. The seed dataset provides customer cust-demo (VIP group
// member), address addr-demo, channel web backed by loc-main, and the
// WELCOME10 / VIPSHIP / SPENDMORE coupons.

func createCart(t *testing.T, customerID string) cartResponse {
	t.Helper()

	body := map[string]any{"channel_id": "web", "currency": "USD"}
	if customerID != "" {
		body["customer_id"] = customerID
	}
	resp := doPost(t, "/api/carts", body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create cart: expected 201, got %d", resp.StatusCode)
	}
	return decodeJSON[cartResponse](t, resp)
}

func addItem(t *testing.T, cartID, variantID string, quantity int) cartResponse {
	t.Helper()

	resp := doPost(t, "/api/carts/"+cartID+"/items", map[string]any{
		"variant_id": variantID,
		"quantity":   quantity,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add item %s: expected 200, got %d", variantID, resp.StatusCode)
	}
	return decodeJSON[cartResponse](t, resp)
}

func applyCoupon(t *testing.T, cartID, code string) *http.Response {
	t.Helper()
	return doPut(t, "/api/carts/"+cartID+"/coupon", map[string]any{"code": code})
}

func setShippingAddress(t *testing.T, cartID string) {
	t.Helper()

	resp := doPut(t, "/api/carts/"+cartID+"/shipping-address", map[string]any{"address_id": "addr-demo"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set shipping address: expected 200, got %d", resp.StatusCode)
	}
}

func setBillingAddress(t *testing.T, cartID string) {
	t.Helper()

	resp := doPut(t, "/api/carts/"+cartID+"/billing-address", map[string]any{"address_id": "addr-demo"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set billing address: expected 200, got %d", resp.StatusCode)
	}
}

func completeCart(t *testing.T, cartID string) *http.Response {
	t.Helper()
	return doPost(t, "/api/carts/"+cartID+"/complete", nil)
}

func getStock(t *testing.T, variantID, locationID string) stockResponse {
	t.Helper()

	resp := doGet(t, "/api/stock/"+variantID+"/"+locationID)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get stock %s/%s: expected 200, got %d", variantID, locationID, resp.StatusCode)
	}
	return decodeJSON[stockResponse](t, resp)
}

// The flat shipping charge and tax rate are pinned in docker-compose.test.yml
// (5.00 and 0.1), so order totals are exact.

func TestCheckout_PercentageCoupon(t *testing.T) {
	stockBefore := getStock(t, "var-tee-s", "loc-main")

	c := createCart(t, "cust-demo")
	addItem(t, c.ID, "var-tee-s", 2) // 2x $25.00

	// The cart line holds stock at the channel's location.
	held := getStock(t, "var-tee-s", "loc-main")
	if held.Reserved != stockBefore.Reserved+2 {
		t.Errorf("reserved after add: got %d, want %d", held.Reserved, stockBefore.Reserved+2)
	}
	if held.Available != stockBefore.Available-2 {
		t.Errorf("available after add: got %d, want %d", held.Available, stockBefore.Available-2)
	}

	resp := applyCoupon(t, c.ID, "WELCOME10")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("apply coupon: expected 200, got %d", resp.StatusCode)
	}
	withCoupon := decodeJSON[cartResponse](t, resp)
	resp.Body.Close()
	if withCoupon.CouponCode != "WELCOME10" {
		t.Errorf("coupon_code: got %q, want WELCOME10", withCoupon.CouponCode)
	}

	setShippingAddress(t, c.ID)
	setBillingAddress(t, c.ID)

	resp = completeCart(t, c.ID)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("complete: expected 201, got %d", resp.StatusCode)
	}

	order := decodeJSON[orderResponse](t, resp)
	if !uuidPattern.MatchString(order.ID) {
		t.Errorf("order ID %q is not a valid UUID", order.ID)
	}
	if order.DisplayID <= 0 {
		t.Errorf("display_id: got %d, want > 0", order.DisplayID)
	}
	if order.Subtotal != "50.00" {
		t.Errorf("subtotal: got %s, want 50.00", order.Subtotal)
	}
	if order.DiscountTotal != "5.00" {
		t.Errorf("discount_total: got %s, want 5.00", order.DiscountTotal)
	}
	if order.ShippingTotal != "5.00" {
		t.Errorf("shipping_total: got %s, want 5.00", order.ShippingTotal)
	}
	// 10% of (50.00 - 5.00)
	if order.TaxTotal != "4.50" {
		t.Errorf("tax_total: got %s, want 4.50", order.TaxTotal)
	}
	if order.Total != "54.50" {
		t.Errorf("total: got %s, want 54.50", order.Total)
	}
	if order.Status != "pending" || order.PaymentStatus != "awaiting" || order.FulfillmentStatus != "not_fulfilled" {
		t.Errorf("statuses: got %s/%s/%s", order.Status, order.PaymentStatus, order.FulfillmentStatus)
	}
	if order.CouponCode != "WELCOME10" {
		t.Errorf("coupon_code: got %q, want WELCOME10", order.CouponCode)
	}
	if order.ShippingAddress == nil || order.ShippingAddress.Line1 != "1 Harbour St" {
		t.Errorf("shipping_address: got %+v", order.ShippingAddress)
	}
	if order.BillingAddress == nil || order.BillingAddress.Line1 != "1 Harbour St" {
		t.Errorf("billing_address: got %+v", order.BillingAddress)
	}
	if len(order.Items) != 1 || order.Items[0].VariantID != "var-tee-s" || order.Items[0].Quantity != 2 {
		t.Errorf("items: got %+v", order.Items)
	}

	// Completion converts the hold into a deduction: quantity and reserved
	// both drop by the line quantity, leaving reserved at its baseline.
	stockAfter := getStock(t, "var-tee-s", "loc-main")
	if stockAfter.Quantity != stockBefore.Quantity-2 {
		t.Errorf("stock quantity: got %d, want %d", stockAfter.Quantity, stockBefore.Quantity-2)
	}
	if stockAfter.Reserved != stockBefore.Reserved {
		t.Errorf("stock reserved: got %d, want %d", stockAfter.Reserved, stockBefore.Reserved)
	}

	// The cart is closed now.
	cartResp := doGet(t, "/api/carts/"+c.ID)
	closed := decodeJSON[cartResponse](t, cartResp)
	cartResp.Body.Close()
	if closed.CompletedAt == "" {
		t.Error("cart completed_at is empty after completion")
	}

	second := completeCart(t, c.ID)
	defer second.Body.Close()
	if second.StatusCode != http.StatusConflict {
		t.Errorf("second completion: expected 409, got %d", second.StatusCode)
	}

	// The order is readable afterwards.
	orderResp := doGet(t, "/api/orders/"+order.ID)
	defer orderResp.Body.Close()
	if orderResp.StatusCode != http.StatusOK {
		t.Fatalf("get order: expected 200, got %d", orderResp.StatusCode)
	}
	fetched := decodeJSON[orderResponse](t, orderResp)
	if fetched.Total != "54.50" {
		t.Errorf("fetched total: got %s, want 54.50", fetched.Total)
	}
}

func TestCheckout_DigitalOnly(t *testing.T) {
	c := createCart(t, "cust-demo")
	addItem(t, c.ID, "var-ebook", 1) // $9.00, digital

	// No shipping address needed for a digital-only cart.
	resp := completeCart(t, c.ID)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("complete: expected 201, got %d", resp.StatusCode)
	}

	order := decodeJSON[orderResponse](t, resp)
	if order.ShippingTotal != "0.00" {
		t.Errorf("shipping_total: got %s, want 0.00", order.ShippingTotal)
	}
	if order.TaxTotal != "0.90" {
		t.Errorf("tax_total: got %s, want 0.90", order.TaxTotal)
	}
	if order.Total != "9.90" {
		t.Errorf("total: got %s, want 9.90", order.Total)
	}
	if order.ShippingAddress != nil {
		t.Errorf("shipping_address: got %+v, want none", order.ShippingAddress)
	}
}

func TestCheckout_FreeShippingCoupon(t *testing.T) {
	c := createCart(t, "cust-demo") // VIP group member
	addItem(t, c.ID, "var-mug", 1)  // $12.50

	resp := applyCoupon(t, c.ID, "VIPSHIP")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("apply coupon: expected 200, got %d", resp.StatusCode)
	}

	setShippingAddress(t, c.ID)

	resp = completeCart(t, c.ID)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("complete: expected 201, got %d", resp.StatusCode)
	}

	order := decodeJSON[orderResponse](t, resp)
	if order.DiscountTotal != "0.00" {
		t.Errorf("discount_total: got %s, want 0.00", order.DiscountTotal)
	}
	if order.ShippingTotal != "0.00" {
		t.Errorf("shipping_total: got %s, want 0.00", order.ShippingTotal)
	}
	if order.TaxTotal != "1.25" {
		t.Errorf("tax_total: got %s, want 1.25", order.TaxTotal)
	}
	if order.Total != "13.75" {
		t.Errorf("total: got %s, want 13.75", order.Total)
	}
}

func TestCheckout_TieredCoupon(t *testing.T) {
	c := createCart(t, "cust-demo")
	addItem(t, c.ID, "var-tee-l", 4) // $100.00, hits the 10% tier

	resp := applyCoupon(t, c.ID, "SPENDMORE")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("apply coupon: expected 200, got %d", resp.StatusCode)
	}

	setShippingAddress(t, c.ID)

	resp = completeCart(t, c.ID)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("complete: expected 201, got %d", resp.StatusCode)
	}

	order := decodeJSON[orderResponse](t, resp)
	if order.DiscountTotal != "10.00" {
		t.Errorf("discount_total: got %s, want 10.00", order.DiscountTotal)
	}
	if order.Total != "104.00" {
		t.Errorf("total: got %s, want 104.00", order.Total)
	}
}

func TestCheckout_GuestRejected(t *testing.T) {
	c := createCart(t, "")
	addItem(t, c.ID, "var-ebook", 1)

	resp := completeCart(t, c.ID)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestCheckout_PhysicalRequiresAddress(t *testing.T) {
	c := createCart(t, "cust-demo")
	addItem(t, c.ID, "var-mug", 1)

	resp := completeCart(t, c.ID)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestCheckout_EmptyCart(t *testing.T) {
	c := createCart(t, "cust-demo")

	resp := completeCart(t, c.ID)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestApplyCoupon_Unknown(t *testing.T) {
	c := createCart(t, "cust-demo")
	addItem(t, c.ID, "var-ebook", 1)

	resp := applyCoupon(t, c.ID, "NONEXISTENT")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}

	errResp := decodeJSON[errorResponse](t, resp)
	if errResp.Code != 422 {
		t.Errorf("error code: got %d, want 422", errResp.Code)
	}
}

func TestApplyCoupon_RestrictedNeedsCustomer(t *testing.T) {
	c := createCart(t, "")
	addItem(t, c.ID, "var-mug", 1)

	// VIPSHIP is restricted to the VIP group; a guest cart cannot hold it.
	resp := applyCoupon(t, c.ID, "VIPSHIP")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestCart_ItemLifecycle(t *testing.T) {
	stockBefore := getStock(t, "var-tee-s", "loc-main")
	c := createCart(t, "")

	// Quantity deltas accumulate on the same variant.
	addItem(t, c.ID, "var-tee-s", 2)
	updated := addItem(t, c.ID, "var-tee-s", 3)
	if len(updated.Items) != 1 || updated.Items[0].Quantity != 5 {
		t.Fatalf("items after increment: got %+v", updated.Items)
	}
	if updated.Subtotal != "125.00" {
		t.Errorf("subtotal: got %s, want 125.00", updated.Subtotal)
	}
	held := getStock(t, "var-tee-s", "loc-main")
	if held.Reserved != stockBefore.Reserved+5 {
		t.Errorf("reserved after adds: got %d, want %d", held.Reserved, stockBefore.Reserved+5)
	}

	// A negative delta that zeroes the line removes it and frees the hold.
	cleared := addItem(t, c.ID, "var-tee-s", -5)
	if len(cleared.Items) != 0 {
		t.Fatalf("items after decrement: got %+v", cleared.Items)
	}
	released := getStock(t, "var-tee-s", "loc-main")
	if released.Reserved != stockBefore.Reserved {
		t.Errorf("reserved after clear: got %d, want %d", released.Reserved, stockBefore.Reserved)
	}

	// Removal by item ID.
	withMug := addItem(t, c.ID, "var-mug", 1)
	resp := doDelete(t, "/api/carts/"+c.ID+"/items/"+withMug.Items[0].ID)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remove item: expected 200, got %d", resp.StatusCode)
	}
	empty := decodeJSON[cartResponse](t, resp)
	if len(empty.Items) != 0 {
		t.Errorf("items after removal: got %+v", empty.Items)
	}
}

func TestCart_AddBeyondStock(t *testing.T) {
	c := createCart(t, "")

	resp := doPost(t, "/api/carts/"+c.ID+"/items", map[string]any{
		"variant_id": "var-tee-s",
		"quantity":   10000000,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	// The rejected line never entered the cart.
	cartResp := doGet(t, "/api/carts/"+c.ID)
	defer cartResp.Body.Close()
	got := decodeJSON[cartResponse](t, cartResp)
	if len(got.Items) != 0 {
		t.Errorf("items after rejected add: got %+v", got.Items)
	}
}

func TestCart_UnknownVariant(t *testing.T) {
	c := createCart(t, "")

	resp := doPost(t, "/api/carts/"+c.ID+"/items", map[string]any{
		"variant_id": "var-nope",
		"quantity":   1,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestCart_NotFound(t *testing.T) {
	resp := doGet(t, "/api/carts/cart-does-not-exist")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
