package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

func (h *Handler) getStock(w http.ResponseWriter, r *http.Request) {
	rec, err := h.stock.Get(r.Context(), r.PathValue("variantID"), r.PathValue("locationID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeStock(e, rec) })
}

func (h *Handler) setStock(w http.ResponseWriter, r *http.Request) {
	qty, err := decodeSingleInt64(r, "quantity")
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.stockOp(w, r, func(variantID, locationID string) error {
		return h.stock.SetQuantity(r.Context(), variantID, locationID, qty)
	})
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	delta, err := decodeSingleInt64(r, "delta")
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.stockOp(w, r, func(variantID, locationID string) error {
		return h.stock.AdjustQuantity(r.Context(), variantID, locationID, delta)
	})
}

func (h *Handler) reserveStock(w http.ResponseWriter, r *http.Request) {
	qty, err := decodeSingleInt64(r, "quantity")
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.stockOp(w, r, func(variantID, locationID string) error {
		return h.stock.Reserve(r.Context(), variantID, locationID, qty)
	})
}

func (h *Handler) releaseStock(w http.ResponseWriter, r *http.Request) {
	qty, err := decodeSingleInt64(r, "quantity")
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.stockOp(w, r, func(variantID, locationID string) error {
		return h.stock.Release(r.Context(), variantID, locationID, qty)
	})
}

// stockOp applies a mutation to the addressed stock row and returns its new
// state.
func (h *Handler) stockOp(w http.ResponseWriter, r *http.Request, op func(variantID, locationID string) error) {
	variantID, locationID := r.PathValue("variantID"), r.PathValue("locationID")
	if err := op(variantID, locationID); err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := h.stock.Get(r.Context(), variantID, locationID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeStock(e, rec) })
}

func (h *Handler) transferStock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		variantID string
		from      string
		to        string
		quantity  int64
	}
	err := decodeObj(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "variant_id":
			req.variantID, err = d.Str()
		case "from_location_id":
			req.from, err = d.Str()
		case "to_location_id":
			req.to, err = d.Str()
		case "quantity":
			req.quantity, err = d.Int64()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.stock.Transfer(r.Context(), req.variantID, req.from, req.to, req.quantity); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeSingleInt64 reads a body of the shape {"<field>": n}.
func decodeSingleInt64(r *http.Request, field string) (int64, error) {
	var value int64
	err := decodeObj(r, func(d *jx.Decoder, key string) error {
		if key == field {
			var err error
			value, err = d.Int64()
			return err
		}
		return d.Skip()
	})
	return value, err
}
