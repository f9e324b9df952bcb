package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/cart"
	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/order"
	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/payment"
)

type orderItemRequest struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Image     string  `json:"image"`
	Quantity  int     `json:"quantity"`
	Size      string  `json:"size"`
	Color     string  `json:"color"`
}

type placeOrderRequest struct {
	Items           []orderItemRequest `json:"items"`
	ShippingAddress order.Address      `json:"shippingAddress"`
	PaymentMethod   string             `json:"paymentMethod"`
	Notes           string             `json:"notes"`
}

type orderResponse struct {
	ID               string                  `json:"id"`
	OrderNumber      string                  `json:"orderNumber"`
	Items            []order.LineItem        `json:"items"`
	Subtotal         float64                 `json:"subtotal"`
	ShippingCharge   float64                 `json:"shippingCharge"`
	TotalAmount      float64                 `json:"totalAmount"`
	Status           order.Status            `json:"status"`
	PaymentStatus    order.PaymentStatus     `json:"paymentStatus"`
	PaymentMethod    order.PaymentMethod     `json:"paymentMethod"`
	PaymentID        string                  `json:"paymentId,omitempty"`
	UPITransactionID string                  `json:"upiTransactionId,omitempty"`
	ShippingAddress  order.Address           `json:"shippingAddress"`
	InvoiceURL       string                  `json:"invoiceUrl,omitempty"`
	Notes            string                  `json:"notes,omitempty"`
	History          []order.HistoryEntry    `json:"statusHistory"`
	Notifications    order.NotificationState `json:"notifications"`
	CreatedAt        time.Time               `json:"createdAt"`
}

func toOrderResponse(o *order.Order) orderResponse {
	return orderResponse{
		ID:               o.ID,
		OrderNumber:      o.Number,
		Items:            o.Items,
		Subtotal:         o.Subtotal.InexactFloat64(),
		ShippingCharge:   o.ShippingCharge.InexactFloat64(),
		TotalAmount:      o.TotalAmount.InexactFloat64(),
		Status:           o.Status,
		PaymentStatus:    o.PaymentStatus,
		PaymentMethod:    o.PaymentMethod,
		PaymentID:        o.PaymentID,
		UPITransactionID: o.UPITransactionID,
		ShippingAddress:  o.ShippingAddress,
		InvoiceURL:       o.InvoiceURL,
		Notes:            o.Notes,
		History:          o.History,
		Notifications:    o.Notifications,
		CreatedAt:        o.CreatedAt,
	}
}

// PlaceOrder creates a pending order from explicit items before any
// payment happens (the address-first flow). The shipping address is not
// saved to the user's book here; that only happens after payment.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	var req placeOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Items) == 0 {
		respondError(w, http.StatusBadRequest, "items required")
		return
	}
	if !req.ShippingAddress.Complete() {
		respondError(w, http.StatusBadRequest, "complete shipping address required (full name, phone, pincode)")
		return
	}

	// COD and manual-UPI orders declare their method up front; Gateway is
	// assigned only by a verified payment confirmation.
	method := order.PaymentMethod(req.PaymentMethod)
	if method == "" {
		method = order.MethodPending
	}
	if !method.Valid() || method == order.MethodGateway {
		respondError(w, http.StatusBadRequest, "unknown payment method")
		return
	}

	entries := make([]cart.Item, len(req.Items))
	for i, it := range req.Items {
		entries[i] = cart.Item{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     decimal.NewFromFloat(it.Price),
			Image:     it.Image,
			Quantity:  it.Quantity,
			Size:      it.Size,
			Color:     it.Color,
		}
		if it.ProductID != "" {
			entries[i].Kind = cart.KindCatalog
		} else {
			entries[i].Kind = cart.KindAdHoc
		}
	}

	m, err := h.mat.Materialize(r.Context(), entries)
	if err != nil {
		var unresolvable *order.UnresolvableProductError
		if errors.As(err, &unresolvable) {
			respondError(w, http.StatusUnprocessableEntity, unresolvable.Error())
			return
		}
		respondInternal(w, r, "materialize order items", err)
		return
	}

	now := time.Now()
	o := &order.Order{
		ID:              uuid.New().String(),
		UserID:          id.User.ID,
		Items:           m.Items,
		Subtotal:        m.Subtotal,
		ShippingCharge:  m.ShippingCharge,
		TotalAmount:     m.Total,
		Status:          order.StatusPending,
		PaymentStatus:   order.PaymentPending,
		PaymentMethod:   method,
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
		History: []order.HistoryEntry{
			{Status: order.StatusPending, Timestamp: now, Note: "Order placed, awaiting payment"},
		},
		CreatedAt: now,
	}
	if err := h.orders.Create(r.Context(), o); err != nil {
		respondInternal(w, r, "create order", err)
		return
	}

	respondJSON(w, http.StatusCreated, toOrderResponse(o))
}

// MyOrders returns the caller's orders, newest first.
func (h *Handler) MyOrders(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	orders, err := h.orders.ListByUser(r.Context(), id.User.ID)
	if err != nil {
		respondInternal(w, r, "list user orders", err)
		return
	}

	out := make([]orderResponse, len(orders))
	for i := range orders {
		out[i] = toOrderResponse(&orders[i])
	}
	respondJSON(w, http.StatusOK, out)
}

// ListOrders returns a page of all orders for operators, optionally
// filtered by status.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := order.ListFilter{Status: order.Status(q.Get("status"))}
	if f.Status != "" && !f.Status.Valid() {
		respondError(w, http.StatusBadRequest, "unknown status filter")
		return
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))

	orders, total, err := h.orders.List(r.Context(), f)
	if err != nil {
		respondInternal(w, r, "list orders", err)
		return
	}

	out := make([]orderResponse, len(orders))
	for i := range orders {
		out[i] = toOrderResponse(&orders[i])
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"orders": out,
		"total":  total,
	})
}

// GetOrder returns one order to its owner or an operator.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	o, err := h.orders.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			respondError(w, http.StatusNotFound, "order not found")
			return
		}
		respondInternal(w, r, "get order", err)
		return
	}
	if o.UserID != id.User.ID && !id.Operator() {
		respondError(w, http.StatusForbidden, "access denied")
		return
	}

	respondJSON(w, http.StatusOK, toOrderResponse(o))
}

type updateStatusRequest struct {
	Status order.Status `json:"status"`
	Note   string       `json:"note"`
}

// UpdateOrderStatus drives fulfilment transitions (Shipped, Delivered,
// Cancelled) through the state machine. Illegal edges and attempts to
// revert a paid payment are rejected.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Status.Valid() {
		respondError(w, http.StatusBadRequest, "unknown status")
		return
	}

	o, err := h.orders.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			respondError(w, http.StatusNotFound, "order not found")
			return
		}
		respondInternal(w, r, "get order", err)
		return
	}

	if err := o.Transition(req.Status, req.Note, nil, time.Now()); err != nil {
		var invalid *order.InvalidTransitionError
		if errors.As(err, &invalid) {
			respondError(w, http.StatusConflict, invalid.Error())
			return
		}
		respondInternal(w, r, "apply status transition", err)
		return
	}
	if err := h.orders.Update(r.Context(), o); err != nil {
		respondInternal(w, r, "persist status transition", err)
		return
	}

	respondJSON(w, http.StatusOK, toOrderResponse(o))
}

type selfConfirmRequest struct {
	UPITransactionID string `json:"upiTransactionId"`
}

// SelfConfirmPayment records the owner's manual declaration that they
// paid by UPI. No gateway signature backs this path.
func (h *Handler) SelfConfirmPayment(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	var req selfConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := h.payments.SelfConfirm(r.Context(), id.User.ID, r.PathValue("id"), req.UPITransactionID)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrNotFound):
			respondError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, payment.ErrAccessDenied):
			respondError(w, http.StatusForbidden, "access denied")
		case errors.Is(err, payment.ErrAlreadyConfirmed):
			respondError(w, http.StatusConflict, "payment already confirmed")
		default:
			respondInternal(w, r, "self-confirm payment", err)
		}
		return
	}

	respondJSON(w, http.StatusOK, toOrderResponse(o))
}

// OrderReceipt streams an HTML receipt for the order.
func (h *Handler) OrderReceipt(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	o, err := h.orders.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			respondError(w, http.StatusNotFound, "order not found")
			return
		}
		respondInternal(w, r, "get order", err)
		return
	}
	if o.UserID != id.User.ID && !id.Operator() {
		respondError(w, http.StatusForbidden, "access denied")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.receipts.Receipt(w, o); err != nil {
		respondInternal(w, r, "render receipt", err)
	}
}
