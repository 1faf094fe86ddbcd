package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

func (h *Handler) createCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		customerID string
		channelID  string
		currency   string
	}
	err := decodeObj(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "customer_id":
			req.customerID, err = d.Str()
		case "channel_id":
			req.channelID, err = d.Str()
		case "currency":
			req.currency, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	c, err := h.carts.Create(r.Context(), req.customerID, req.channelID, req.currency)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCart(e, c) })
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c) })
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		variantID string
		quantity  int
		metadata  map[string]string
	}
	err := decodeObj(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "variant_id":
			req.variantID, err = d.Str()
		case "quantity":
			req.quantity, err = d.Int()
		case "metadata":
			req.metadata = make(map[string]string)
			err = d.Obj(func(d *jx.Decoder, k string) error {
				v, err := d.Str()
				if err != nil {
					return err
				}
				req.metadata[k] = v
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

	c, err := h.carts.AddOrUpdateItem(r.Context(), r.PathValue("id"), req.variantID, req.quantity, req.metadata)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c) })
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.RemoveItem(r.Context(), r.PathValue("id"), r.PathValue("itemID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c) })
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	code, err := decodeSingleStr(r, "code")
	if err != nil {
		writeError(w, r, err)
		return
	}

	c, err := h.carts.ApplyCoupon(r.Context(), r.PathValue("id"), code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c) })
}

func (h *Handler) setCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, err := decodeSingleStr(r, "customer_id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	c, err := h.carts.SetCustomer(r.Context(), r.PathValue("id"), customerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c) })
}

func (h *Handler) setShippingAddress(w http.ResponseWriter, r *http.Request) {
	addressID, err := decodeSingleStr(r, "address_id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	c, err := h.carts.SetShippingAddress(r.Context(), r.PathValue("id"), addressID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c) })
}

func (h *Handler) setBillingAddress(w http.ResponseWriter, r *http.Request) {
	addressID, err := decodeSingleStr(r, "address_id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	c, err := h.carts.SetBillingAddress(r.Context(), r.PathValue("id"), addressID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c) })
}

// decodeSingleStr reads a body of the shape {"<field>": "value"}.
func decodeSingleStr(r *http.Request, field string) (string, error) {
	var value string
	err := decodeObj(r, func(d *jx.Decoder, key string) error {
		if key == field {
			var err error
			value, err = d.Str()
			return err
		}
		return d.Skip()
	})
	return value, err
}
