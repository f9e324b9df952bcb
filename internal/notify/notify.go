// Package notify dispatches order confirmation messages over SMS.
// Each channel (customer, operator) is attempted independently: one
// failing never blocks the other, and a channel already marked sent on
// the order is never re-sent.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/order"
	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/payment"
)

// Channel names recorded in notification results.
const (
	ChannelCustomer = "customer"
	ChannelOperator = "operator"
)

// Config carries the SMS provider settings. With an empty APIKey the
// dispatcher runs in log-only mode: messages are logged, not sent, and
// still count as delivered.
type Config struct {
	APIKey        string
	Endpoint      string
	OperatorPhone string
	Timeout       time.Duration
}

var _ payment.Notifier = (*Dispatcher)(nil)

// Dispatcher sends order confirmations to the customer and the operator.
type Dispatcher struct {
	cfg  Config
	http *http.Client
	lg   *zap.Logger
}

// NewDispatcher returns a Dispatcher for the given provider settings.
func NewDispatcher(cfg Config, lg *zap.Logger) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Dispatcher{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		lg:   lg.Named("notify"),
	}
}

// Notify attempts the customer and operator channels for a confirmed
// order. Channels already flagged sent on the order are skipped.
func (d *Dispatcher) Notify(ctx context.Context, o *order.Order) []payment.ChannelResult {
	var results []payment.ChannelResult

	if !o.Notifications.CustomerSent {
		err := d.send(ctx, o.ShippingAddress.Phone, customerMessage(o))
		results = append(results, payment.ChannelResult{
			Channel: ChannelCustomer,
			Sent:    err == nil,
			Err:     err,
		})
	}

	if !o.Notifications.OperatorSent && d.cfg.OperatorPhone != "" {
		err := d.send(ctx, d.cfg.OperatorPhone, operatorMessage(o))
		results = append(results, payment.ChannelResult{
			Channel: ChannelOperator,
			Sent:    err == nil,
			Err:     err,
		})
	}

	return results
}

func (d *Dispatcher) send(ctx context.Context, phone, message string) error {
	if phone == "" {
		return errors.New("no destination phone")
	}

	if d.cfg.APIKey == "" {
		d.lg.Info("sms (log-only mode)",
			zap.String("phone", phone),
			zap.String("message", message))
		return nil
	}

	form := url.Values{
		"numbers": {phone},
		"message": {message},
		"route":   {"q"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "build sms request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", d.cfg.APIKey)

	resp, err := d.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "call sms provider")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("sms provider returned %s", resp.Status)
	}
	return nil
}

func customerMessage(o *order.Order) string {
	return fmt.Sprintf("Your order %s is confirmed. Total: %s. Thank you for shopping with us!",
		o.Number, o.TotalAmount.StringFixed(2))
}

func operatorMessage(o *order.Order) string {
	return fmt.Sprintf("New paid order %s: %d item(s), total %s, %s.",
		o.Number, len(o.Items), o.TotalAmount.StringFixed(2), o.PaymentMethod)
}
