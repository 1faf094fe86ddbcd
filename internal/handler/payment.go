package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/northcart/checkout/internal/domain/payment"
)

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.GetByOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodePayment(e, p) })
}

// reconcilePayment asks the provider for the payment's current state instead
// of waiting for a webhook. Without a configured provider it fails with the
// external-failure status.
func (h *Handler) reconcilePayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.Reconcile(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodePayment(e, p) })
}

// paymentEvent ingests a normalized provider webhook. Signature verification
// is expected to happen at the edge before the event reaches this endpoint.
func (h *Handler) paymentEvent(w http.ResponseWriter, r *http.Request) {
	var ev payment.ProviderEvent
	err := decodeObj(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "order_id":
			ev.OrderID, err = d.Str()
		case "outcome":
			var s string
			s, err = d.Str()
			ev.Outcome = payment.Outcome(s)
		case "provider_id":
			ev.ProviderID, err = d.Str()
		case "data":
			ev.ProviderData = make(map[string]string)
			err = d.Obj(func(d *jx.Decoder, k string) error {
				v, err := d.Str()
				if err != nil {
					return err
				}
				ev.ProviderData[k] = v
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	switch ev.Outcome {
	case payment.OutcomeSucceeded, payment.OutcomeFailed:
	default:
		writeError(w, r, errBadRequest)
		return
	}
	if ev.OrderID == "" {
		writeError(w, r, errBadRequest)
		return
	}

	if err := h.payments.HandleProviderEvent(r.Context(), ev); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
