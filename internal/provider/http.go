// Package provider holds payment provider adapters behind the
// payment.Provider capability interface.
package provider

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/northcart/checkout/internal/domain/payment"
)

var _ payment.Provider = (*HTTP)(nil)

// HTTP talks to a payment provider over a small JSON API: POST /invoices to
// create an invoice, GET /invoices/{ref} to read its status. Every failure
// wraps payment.ErrProvider so callers can classify it as retryable.
type HTTP struct {
	base   string
	client *http.Client
}

// NewHTTP creates an adapter for the provider at baseURL. A nil client gets
// a default with a 10s timeout.
func NewHTTP(baseURL string, client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTP{base: strings.TrimRight(baseURL, "/"), client: client}
}

// CreateInvoice registers the order with the provider and returns the
// provider's invoice reference.
func (h *HTTP) CreateInvoice(ctx context.Context, orderID string, amount decimal.Decimal, currency string) (string, error) {
	e := &jx.Encoder{}
	e.Obj(func(e *jx.Encoder) {
		e.Field("order_id", func(e *jx.Encoder) { e.Str(orderID) })
		e.Field("amount", func(e *jx.Encoder) { e.Str(amount.StringFixed(2)) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(currency) })
	})

	body, err := h.do(ctx, http.MethodPost, "/invoices", e.Bytes())
	if err != nil {
		return "", errors.Wrap(err, "create invoice")
	}

	ref, err := decodeStrField(body, "provider_ref")
	if err != nil {
		return "", errors.Wrapf(payment.ErrProvider, "create invoice: %v", err)
	}
	if ref == "" {
		return "", errors.Wrap(payment.ErrProvider, "create invoice: empty provider_ref")
	}
	return ref, nil
}

// CheckStatus reads the invoice's settlement state.
func (h *HTTP) CheckStatus(ctx context.Context, providerRef string) (payment.Outcome, error) {
	body, err := h.do(ctx, http.MethodGet, "/invoices/"+url.PathEscape(providerRef), nil)
	if err != nil {
		return "", errors.Wrap(err, "check status")
	}

	status, err := decodeStrField(body, "status")
	if err != nil {
		return "", errors.Wrapf(payment.ErrProvider, "check status: %v", err)
	}
	switch status {
	case "succeeded":
		return payment.OutcomeSucceeded, nil
	case "failed":
		return payment.OutcomeFailed, nil
	case "pending":
		return payment.OutcomePending, nil
	default:
		return "", errors.Wrapf(payment.ErrProvider, "check status: unknown status %q", status)
	}
}

func (h *HTTP) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.base+path, rd)
	if err != nil {
		return nil, errors.Wrapf(payment.ErrProvider, "build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(payment.ErrProvider, "call provider: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Wrapf(payment.ErrProvider, "provider returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrapf(payment.ErrProvider, "read response: %v", err)
	}
	return data, nil
}

func decodeStrField(body []byte, field string) (string, error) {
	var value string
	d := jx.DecodeBytes(body)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key == field {
			var err error
			value, err = d.Str()
			return err
		}
		return d.Skip()
	})
	return value, err
}
