package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/order"
	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/payment"
)

// WebhookSignatureHeader carries the gateway's HMAC over the raw body.
const WebhookSignatureHeader = "X-Gateway-Signature"

// webhookBodyLimit bounds how much of a webhook body is read.
const webhookBodyLimit = 1 << 20

type createPaymentOrderRequest struct {
	Amount          float64        `json:"amount"`
	ShippingAddress *order.Address `json:"shippingAddress"`
}

type remoteOrderResponse struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// CreatePaymentOrder opens a gateway order for the caller's current cart
// checkout.
func (h *Handler) CreatePaymentOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	var req createPaymentOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Amount <= 0 {
		respondError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	ro, err := h.payments.CreateRemoteOrder(r.Context(), id.User.ID,
		decimal.NewFromFloat(req.Amount), req.ShippingAddress)
	if err != nil {
		if errors.Is(err, payment.ErrEmptyCart) {
			respondError(w, http.StatusBadRequest, "cart is empty")
			return
		}
		respondInternal(w, r, "create gateway order", err)
		return
	}

	respondJSON(w, http.StatusOK, remoteOrderResponse{
		OrderID:  ro.ID,
		Amount:   ro.Amount,
		Currency: ro.Currency,
	})
}

type createUPIOrderRequest struct {
	OrderID string  `json:"orderId"`
	Amount  float64 `json:"amount"`
}

// CreateUPIOrder opens a gateway order for an already-placed pending
// order (the buy-now flow).
func (h *Handler) CreateUPIOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	var req createUPIOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OrderID == "" {
		respondError(w, http.StatusBadRequest, "orderId required")
		return
	}
	if req.Amount <= 0 {
		respondError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	ro, err := h.payments.CreateRemoteOrderForOrder(r.Context(), id.User.ID,
		req.OrderID, decimal.NewFromFloat(req.Amount))
	if err != nil {
		switch {
		case errors.Is(err, order.ErrNotFound):
			respondError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, payment.ErrAccessDenied):
			respondError(w, http.StatusForbidden, "access denied")
		default:
			respondInternal(w, r, "create gateway order", err)
		}
		return
	}

	respondJSON(w, http.StatusOK, remoteOrderResponse{
		OrderID:  ro.ID,
		Amount:   ro.Amount,
		Currency: ro.Currency,
	})
}

type verifyPaymentRequest struct {
	GatewayOrderID  string        `json:"gatewayOrderId"`
	PaymentID       string        `json:"paymentId"`
	Signature       string        `json:"signature"`
	ShippingAddress order.Address `json:"shippingAddress"`
}

type confirmationResponse struct {
	OrderID          string `json:"orderId"`
	OrderNumber      string `json:"orderNumber"`
	AlreadyProcessed bool   `json:"alreadyProcessed,omitempty"`
}

// VerifyPayment handles the client-redirect confirmation of a cart
// checkout (cart-first flow).
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	var req verifyPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.payments.ConfirmCheckout(r.Context(), payment.CheckoutConfirmation{
		UserID:          id.User.ID,
		GatewayOrderID:  req.GatewayOrderID,
		PaymentID:       req.PaymentID,
		Signature:       req.Signature,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		h.respondConfirmError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, confirmationResponse{
		OrderID:          res.OrderID,
		OrderNumber:      res.OrderNumber,
		AlreadyProcessed: res.AlreadyProcessed,
	})
}

type verifyUPIPaymentRequest struct {
	OrderID        string `json:"orderId"`
	GatewayOrderID string `json:"gatewayOrderId"`
	PaymentID      string `json:"paymentId"`
	Signature      string `json:"signature"`
}

// VerifyUPIPayment handles the client-redirect confirmation of a payment
// for a pre-existing order (address-first flow).
func (h *Handler) VerifyUPIPayment(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	var req verifyUPIPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.payments.ConfirmExistingOrder(r.Context(), payment.ExistingOrderConfirmation{
		UserID:         id.User.ID,
		OrderID:        req.OrderID,
		GatewayOrderID: req.GatewayOrderID,
		PaymentID:      req.PaymentID,
		Signature:      req.Signature,
	})
	if err != nil {
		h.respondConfirmError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, confirmationResponse{
		OrderID:          res.OrderID,
		OrderNumber:      res.OrderNumber,
		AlreadyProcessed: res.AlreadyProcessed,
	})
}

func (h *Handler) respondConfirmError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, payment.ErrInvalidSignature):
		respondError(w, http.StatusBadRequest, "invalid payment signature")
	case errors.Is(err, payment.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "cart is empty")
	case errors.Is(err, payment.ErrAccessDenied):
		respondError(w, http.StatusForbidden, "access denied")
	case errors.Is(err, order.ErrNotFound):
		respondError(w, http.StatusNotFound, "order not found")
	default:
		respondInternal(w, r, "confirm payment", err)
	}
}

// ReceivingUPI returns the store's receiving UPI identifier.
func (h *Handler) ReceivingUPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"upiId": h.payments.ReceivingUPI()})
}

// Webhook processes a gateway notification. A bad signature is rejected;
// anything after that is acknowledged with 200 even when internal
// processing fails, so the gateway does not retry an event we have
// durably logged. Redelivery of successes is idempotent anyway.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	res, err := h.payments.HandleWebhook(r.Context(), body, r.Header.Get(WebhookSignatureHeader))
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			respondError(w, http.StatusBadRequest, "invalid webhook signature")
			return
		}
		zctx.From(r.Context()).Error("webhook processing failed", zap.Error(err))
		respondJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
		return
	}

	resp := map[string]any{"status": "ok"}
	if res.OrderID != "" {
		resp["orderId"] = res.OrderID
	}
	respondJSON(w, http.StatusOK, resp)
}
