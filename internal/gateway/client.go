// Package gateway is a thin HTTP client for the payment provider's
// order API. It creates remote orders and nothing else; verification of
// the provider's signatures happens in the payment domain.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/payment"
)

// Config carries the provider endpoint and key pair.
type Config struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration
}

var _ payment.Gateway = (*Client)(nil)

// Client talks to the payment provider over HTTP with basic auth.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient returns a Client for the given provider credentials.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type createOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type createOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// CreateRemoteOrder opens an order with the provider and returns its
// handle. The amount is in minor currency units, as the provider expects.
func (c *Client) CreateRemoteOrder(ctx context.Context, amountMinorUnits int64, currency, receipt string, notes map[string]string) (*payment.RemoteOrder, error) {
	body, err := json.Marshal(createOrderRequest{
		Amount:   amountMinorUnits,
		Currency: currency,
		Receipt:  receipt,
		Notes:    notes,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode order request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build order request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call payment provider")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, errors.Errorf("payment provider returned %s", resp.Status)
	}

	var out createOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode order response")
	}
	if out.ID == "" {
		return nil, errors.New("payment provider returned order without id")
	}
	return &payment.RemoteOrder{ID: out.ID, Amount: out.Amount, Currency: out.Currency}, nil
}
