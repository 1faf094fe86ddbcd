//go:build integration

package integration

import (
	"net/http"
	"testing"
)

// completeDigitalOrder builds the smallest completable cart and returns the
// resulting order.
func completeDigitalOrder(t *testing.T) orderResponse {
	t.Helper()

	c := createCart(t, "cust-demo")
	addItem(t, c.ID, "var-ebook", 1)

	resp := completeCart(t, c.ID)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("complete: expected 201, got %d", resp.StatusCode)
	}
	return decodeJSON[orderResponse](t, resp)
}

func postPaymentEvent(t *testing.T, orderID, outcome string) *http.Response {
	t.Helper()

	return doPost(t, "/api/payments/events", map[string]any{
		"order_id":    orderID,
		"outcome":     outcome,
		"provider_id": "prov-test",
		"data":        map[string]string{"invoice": "inv-1"},
	})
}

func TestPayment_CaptureFlow(t *testing.T) {
	order := completeDigitalOrder(t)

	// Completion leaves an awaiting payment over the order total.
	resp := doGet(t, "/api/orders/"+order.ID+"/payment")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get payment: expected 200, got %d", resp.StatusCode)
	}
	p := decodeJSON[paymentResponse](t, resp)
	resp.Body.Close()
	if p.Status != "awaiting" {
		t.Errorf("payment status: got %q, want awaiting", p.Status)
	}
	if p.Amount != order.Total {
		t.Errorf("payment amount: got %s, want %s", p.Amount, order.Total)
	}

	resp = postPaymentEvent(t, order.ID, "succeeded")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("payment event: expected 204, got %d", resp.StatusCode)
	}

	resp = doGet(t, "/api/orders/"+order.ID+"/payment")
	captured := decodeJSON[paymentResponse](t, resp)
	resp.Body.Close()
	if captured.Status != "captured" {
		t.Errorf("payment status: got %q, want captured", captured.Status)
	}
	if captured.CapturedAt == "" {
		t.Error("captured_at is empty")
	}
	// The event's provider reference survives the round trip to the store.
	if captured.ProviderID != "prov-test" {
		t.Errorf("provider_id: got %q, want prov-test", captured.ProviderID)
	}

	resp = doGet(t, "/api/orders/"+order.ID)
	fetched := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()
	if fetched.PaymentStatus != "captured" {
		t.Errorf("order payment_status: got %q, want captured", fetched.PaymentStatus)
	}

	// A redelivered webhook is a no-op.
	resp = postPaymentEvent(t, order.ID, "succeeded")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("redelivered event: expected 204, got %d", resp.StatusCode)
	}
}

func TestPayment_Failure(t *testing.T) {
	order := completeDigitalOrder(t)

	resp := postPaymentEvent(t, order.ID, "failed")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("payment event: expected 204, got %d", resp.StatusCode)
	}

	resp = doGet(t, "/api/orders/"+order.ID)
	fetched := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()
	if fetched.PaymentStatus != "not_paid" {
		t.Errorf("order payment_status: got %q, want not_paid", fetched.PaymentStatus)
	}

	// Failed rows are terminal; no active payment remains.
	resp = doGet(t, "/api/orders/"+order.ID+"/payment")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("get payment: expected 409, got %d", resp.StatusCode)
	}
}

func TestPayment_ReconcileWithoutProvider(t *testing.T) {
	order := completeDigitalOrder(t)

	// The test stack runs without a payment provider; reconciliation is an
	// external failure, not a crash.
	resp := doPost(t, "/api/orders/"+order.ID+"/payment/reconcile", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("reconcile: expected 502, got %d", resp.StatusCode)
	}
}

func TestPaymentEvent_Rejections(t *testing.T) {
	resp := postPaymentEvent(t, "order-unknown", "succeeded")
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("unknown order: expected 409, got %d", resp.StatusCode)
	}

	resp = postPaymentEvent(t, "order-unknown", "maybe")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad outcome: expected 400, got %d", resp.StatusCode)
	}

	resp = postPaymentEvent(t, "", "succeeded")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing order_id: expected 400, got %d", resp.StatusCode)
	}
}
