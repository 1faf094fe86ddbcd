// Package handler is the thin HTTP adapter over the checkout core. It
// decodes requests, calls domain services, and maps domain errors onto
// stable status codes. No business rules live here.
package handler

import (
	"net/http"

	"github.com/northcart/checkout/internal/domain/cart"
	"github.com/northcart/checkout/internal/domain/inventory"
	"github.com/northcart/checkout/internal/domain/order"
	"github.com/northcart/checkout/internal/domain/payment"
)

// Handler bundles the domain services behind the HTTP surface.
type Handler struct {
	carts    *cart.Service
	orders   *order.Service
	reader   order.Repository
	payments *payment.Manager
	stock    *inventory.Ledger
}

// New creates the Handler.
func New(
	carts *cart.Service,
	orders *order.Service,
	reader order.Repository,
	payments *payment.Manager,
	stock *inventory.Ledger,
) *Handler {
	return &Handler{
		carts:    carts,
		orders:   orders,
		reader:   reader,
		payments: payments,
		stock:    stock,
	}
}

// Routes returns the API route table.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /carts", h.createCart)
	mux.HandleFunc("GET /carts/{id}", h.getCart)
	mux.HandleFunc("POST /carts/{id}/items", h.addItem)
	mux.HandleFunc("DELETE /carts/{id}/items/{itemID}", h.removeItem)
	mux.HandleFunc("PUT /carts/{id}/coupon", h.applyCoupon)
	mux.HandleFunc("PUT /carts/{id}/customer", h.setCustomer)
	mux.HandleFunc("PUT /carts/{id}/shipping-address", h.setShippingAddress)
	mux.HandleFunc("PUT /carts/{id}/billing-address", h.setBillingAddress)
	mux.HandleFunc("POST /carts/{id}/complete", h.completeCart)

	mux.HandleFunc("GET /orders/{id}", h.getOrder)
	mux.HandleFunc("GET /orders/{id}/payment", h.getPayment)
	mux.HandleFunc("POST /orders/{id}/payment/reconcile", h.reconcilePayment)
	mux.HandleFunc("POST /payments/events", h.paymentEvent)

	mux.HandleFunc("GET /stock/{variantID}/{locationID}", h.getStock)
	mux.HandleFunc("PUT /stock/{variantID}/{locationID}", h.setStock)
	mux.HandleFunc("POST /stock/{variantID}/{locationID}/adjust", h.adjustStock)
	mux.HandleFunc("POST /stock/{variantID}/{locationID}/reserve", h.reserveStock)
	mux.HandleFunc("POST /stock/{variantID}/{locationID}/release", h.releaseStock)
	mux.HandleFunc("POST /stock/transfer", h.transferStock)

	return mux
}
