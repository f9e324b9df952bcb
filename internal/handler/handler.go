// Package handler exposes the HTTP API, delegating business logic to the
// payment coordinator and the domain repositories.
package handler

import (
	"net/http"

	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/order"
	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/payment"
	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/product"
	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/user"
	"github.com/PavaniPriya06/CLOUTH-AG/internal/invoice"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product
	// responses. When empty, image paths are returned as stored.
	ImageBaseURL string
}

// Handler implements the HTTP API surface.
type Handler struct {
	cfg      Config
	products product.Repository
	orders   order.Repository
	users    user.Repository
	mat      *order.Materializer
	payments *payment.Service
	receipts *invoice.Generator
	security *Security
}

// New constructs a Handler with the required domain dependencies.
func New(
	cfg Config,
	products product.Repository,
	orders order.Repository,
	users user.Repository,
	mat *order.Materializer,
	payments *payment.Service,
	receipts *invoice.Generator,
	security *Security,
) *Handler {
	return &Handler{
		cfg:      cfg,
		products: products,
		orders:   orders,
		users:    users,
		mat:      mat,
		payments: payments,
		receipts: receipts,
		security: security,
	}
}

// Register attaches all API routes to mux. The webhook route is
// deliberately unauthenticated: the gateway proves itself with the body
// signature, not an API key.
func (h *Handler) Register(mux *http.ServeMux) {
	auth := h.security.Authenticate
	operator := func(next http.HandlerFunc) http.HandlerFunc {
		return auth(h.security.RequireOperator(next))
	}

	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)

	mux.HandleFunc("POST /api/orders", auth(h.PlaceOrder))
	mux.HandleFunc("GET /api/orders/my", auth(h.MyOrders))
	mux.HandleFunc("GET /api/orders", operator(h.ListOrders))
	mux.HandleFunc("GET /api/orders/{id}", auth(h.GetOrder))
	mux.HandleFunc("PUT /api/orders/{id}/status", operator(h.UpdateOrderStatus))
	mux.HandleFunc("PUT /api/orders/{id}/confirm-payment", auth(h.SelfConfirmPayment))
	mux.HandleFunc("GET /api/orders/{id}/receipt", auth(h.OrderReceipt))

	mux.HandleFunc("POST /api/payment/create-order", auth(h.CreatePaymentOrder))
	mux.HandleFunc("POST /api/payment/create-upi-order", auth(h.CreateUPIOrder))
	mux.HandleFunc("POST /api/payment/verify", auth(h.VerifyPayment))
	mux.HandleFunc("POST /api/payment/verify-upi", auth(h.VerifyUPIPayment))
	mux.HandleFunc("GET /api/payment/upi-id", auth(h.ReceivingUPI))
	mux.HandleFunc("POST /api/payment/webhook", h.Webhook)
}
