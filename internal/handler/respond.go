package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/northcart/checkout/internal/domain/cart"
	"github.com/northcart/checkout/internal/domain/catalog"
	"github.com/northcart/checkout/internal/domain/channel"
	"github.com/northcart/checkout/internal/domain/coupon"
	"github.com/northcart/checkout/internal/domain/customer"
	"github.com/northcart/checkout/internal/domain/inventory"
	"github.com/northcart/checkout/internal/domain/order"
	"github.com/northcart/checkout/internal/domain/payment"
)

// maxBodyBytes caps request bodies; every payload this API accepts is small.
const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("malformed request body")

// readBody drains a size-limited request body.
func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(errBadRequest, "read body")
	}
	return body, nil
}

// decodeObj decodes a JSON object body, dispatching each key to fn.
func decodeObj(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		return fn(d, key)
	}); err != nil {
		return errors.Wrap(errBadRequest, err.Error())
	}
	return nil
}

// writeJSON encodes a response body with fn and writes it with the given
// status code.
func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := &jx.Encoder{}
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError maps domain errors onto stable HTTP status codes and a JSON
// error body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		// Do not leak internals.
		err = errors.New("internal server error")
	}

	msg := err.Error()
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, cart.ErrNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, order.ErrAddressNotFound),
		errors.Is(err, catalog.ErrVariantNotFound),
		errors.Is(err, customer.ErrNotFound),
		errors.Is(err, channel.ErrNotFound),
		errors.Is(err, inventory.ErrNotFound),
		errors.Is(err, payment.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, errBadRequest),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrSelfTransfer):
		return http.StatusBadRequest

	case errors.Is(err, coupon.ErrAuthenticationRequired):
		return http.StatusUnauthorized

	case errors.Is(err, cart.ErrCompleted),
		errors.Is(err, coupon.ErrUsageLimitReached),
		errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, inventory.ErrInsufficientReserved),
		errors.Is(err, inventory.ErrOverRelease),
		errors.Is(err, inventory.ErrBelowReserved),
		errors.Is(err, payment.ErrNoActivePayment):
		return http.StatusConflict

	case errors.Is(err, coupon.ErrInvalidCoupon),
		errors.Is(err, coupon.ErrNotApplicableToUser),
		errors.Is(err, coupon.ErrInvalidSalesChannel),
		errors.Is(err, coupon.ErrNotApplicableToProducts),
		errors.Is(err, order.ErrCustomerRequired),
		errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrShippingAddressRequired):
		return http.StatusUnprocessableEntity

	case errors.Is(err, payment.ErrProvider):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}
