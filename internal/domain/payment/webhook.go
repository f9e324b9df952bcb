package payment

import (
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/order"
)

// EventPaymentCaptured is the only gateway notification this subsystem
// acts on; every other event type is acknowledged and ignored.
const EventPaymentCaptured = "payment.captured"

// WebhookEvent is the decoded form of a gateway notification body. The
// gateway attaches checkout metadata as free-form notes: a user reference
// for cart checkouts, an order reference for buy-now flows, and a
// serialized shipping address when one was captured at checkout.
type WebhookEvent struct {
	Event           string
	PaymentID       string
	GatewayOrderID  string
	UserID          string
	OrderID         string
	ShippingAddress order.Address
}

// ParseWebhookEvent decodes a raw notification body. It is lenient about
// unknown fields and only fails on malformed JSON; semantic validation
// (event type, presence of references) is the coordinator's job.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	d := jx.DecodeBytes(body)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "event":
			s, err := d.Str()
			if err != nil {
				return err
			}
			ev.Event = s
			return nil
		case "payload":
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "payment" {
					return d.Skip()
				}
				return d.Obj(func(d *jx.Decoder, key string) error {
					if key != "entity" {
						return d.Skip()
					}
					return decodePaymentEntity(d, &ev)
				})
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode webhook body")
	}
	return &ev, nil
}

func decodePaymentEntity(d *jx.Decoder, ev *WebhookEvent) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			s, err := d.Str()
			if err != nil {
				return err
			}
			ev.PaymentID = s
			return nil
		case "order_id":
			s, err := d.Str()
			if err != nil {
				return err
			}
			ev.GatewayOrderID = s
			return nil
		case "notes":
			if d.Next() != jx.Object {
				// The gateway serializes empty notes as an array.
				return d.Skip()
			}
			return decodeNotes(d, ev)
		default:
			return d.Skip()
		}
	})
}

func decodeNotes(d *jx.Decoder, ev *WebhookEvent) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "userId":
			s, err := d.Str()
			if err != nil {
				return err
			}
			ev.UserID = s
			return nil
		case "orderId":
			s, err := d.Str()
			if err != nil {
				return err
			}
			ev.OrderID = s
			return nil
		case "shippingAddress":
			s, err := d.Str()
			if err != nil {
				return err
			}
			if s != "" {
				// Best effort: an unparseable address leaves the event
				// without one rather than rejecting the notification.
				_ = json.Unmarshal([]byte(s), &ev.ShippingAddress)
			}
			return nil
		default:
			return d.Skip()
		}
	})
}
