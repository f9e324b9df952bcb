package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/auth"
	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/cart"
	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/order"
	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/payment"
	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/product"
	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/user"
	"github.com/PavaniPriya06/CLOUTH-AG/internal/invoice"
)

const (
	testPepper      = "test-pepper"
	customerKey     = "customer-api-key"
	operatorKey     = "operator-api-key"
	gatewaySecret   = "gw-secret"
	testReceivingID = "store@upi"
)

// --- Mock implementations ---

type mockProductRepo struct {
	products []product.Product
	byID     map[string]*product.Product
}

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[string]*product.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	return &mockProductRepo{products: products, byID: byID}
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	return m.products, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

type mockOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*order.Order
	seq    int
}

func newOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[string]*order.Order)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.PaymentID != "" {
		for _, existing := range m.orders {
			if existing.PaymentID == o.PaymentID {
				return order.ErrDuplicatePaymentID
			}
		}
	}
	m.seq++
	o.Number = fmt.Sprintf("TCS%06d", m.seq)
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) Update(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; !ok {
		return order.ErrNotFound
	}
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) FindByPaymentID(_ context.Context, paymentID string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if paymentID != "" && o.PaymentID == paymentID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, order.ErrNotFound
}

func (m *mockOrderRepo) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) List(_ context.Context, f order.ListFilter) ([]order.Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for _, o := range m.orders {
		if f.Status == "" || o.Status == f.Status {
			out = append(out, *o)
		}
	}
	return out, len(out), nil
}

func (m *mockOrderRepo) SetInvoice(_ context.Context, id, path, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		o.InvoicePath, o.InvoiceURL = path, url
	}
	return nil
}

func (m *mockOrderRepo) SetNotificationState(_ context.Context, id string, ns order.NotificationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		o.Notifications = ns
	}
	return nil
}

type mockCartRepo struct {
	mu    sync.Mutex
	items map[string][]cart.Item
}

func newCartRepo() *mockCartRepo {
	return &mockCartRepo{items: make(map[string][]cart.Item)}
}

func (m *mockCartRepo) Get(_ context.Context, userID string) (*cart.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &cart.Cart{UserID: userID, Items: m.items[userID]}, nil
}

func (m *mockCartRepo) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[userID] = nil
	return nil
}

type mockUserRepo struct {
	mu    sync.Mutex
	users map[string]*user.User
}

func newUserRepo(users ...*user.User) *mockUserRepo {
	m := &mockUserRepo{users: make(map[string]*user.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) AppendAddress(_ context.Context, userID string, addr order.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return user.ErrNotFound
	}
	u.Addresses = append(u.Addresses, addr)
	return nil
}

type mockAPIKeyRepo struct {
	byHash map[string]*auth.APIKeyInfo
}

func (m *mockAPIKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := m.byHash[hash]
	if !ok {
		return nil, user.ErrNotFound
	}
	return info, nil
}

type mockGateway struct{}

func (mockGateway) CreateRemoteOrder(_ context.Context, amount int64, currency, _ string, _ map[string]string) (*payment.RemoteOrder, error) {
	return &payment.RemoteOrder{ID: "gw_remote", Amount: amount, Currency: currency}, nil
}

// --- Helpers ---

func keyHash(key string) string {
	mac := hmac.New(sha256.New, []byte(testPepper))
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

func signCheckout(gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(gatewaySecret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(gatewaySecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type testAPI struct {
	mux    *http.ServeMux
	orders *mockOrderRepo
	carts  *mockCartRepo
	users  *mockUserRepo
	svc    *payment.Service
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	products := newProductRepo(
		product.Product{ID: "p1", Name: "Linen Shirt", Price: decimal.NewFromInt(500), Category: "shirts", Stock: 10},
		product.Product{ID: "p2", Name: "Denim Jacket", Price: decimal.NewFromInt(1500), Category: "jackets", Stock: 3},
	)
	api := &testAPI{
		orders: newOrderRepo(),
		carts:  newCartRepo(),
		users: newUserRepo(
			&user.User{ID: "user-1", Name: "Asha", Phone: "9999"},
			&user.User{ID: "admin-1", Name: "Ops", Role: "admin"},
		),
	}
	apikeys := &mockAPIKeyRepo{byHash: map[string]*auth.APIKeyInfo{
		keyHash(customerKey): {ID: "k1", KeyHash: keyHash(customerKey), UserID: "user-1", Name: "customer"},
		keyHash(operatorKey): {ID: "k2", KeyHash: keyHash(operatorKey), UserID: "admin-1", Name: "ops", Scopes: []string{ScopeOperator}},
	}}

	mat := order.NewMaterializer(products, decimal.NewFromInt(999), decimal.NewFromInt(49))
	receipts, err := invoice.NewGenerator(invoice.Config{Dir: t.TempDir(), PublicBaseURL: "/invoices"})
	require.NoError(t, err)

	api.svc = payment.NewService(
		payment.Config{ReceivingUPI: testReceivingID, SideEffectTimeout: 5 * time.Second},
		payment.NewVerifier(gatewaySecret, ""),
		payment.NewGuard(api.orders),
		mat,
		api.orders, api.carts, api.users,
		mockGateway{}, nil, nil,
		zap.NewNop(),
	)

	security := NewSecurity(apikeys, api.users, []byte(testPepper))
	h := New(Config{}, products, api.orders, api.users, mat, api.svc, receipts, security)

	api.mux = http.NewServeMux()
	h.Register(api.mux)
	return api
}

func (a *testAPI) do(t *testing.T, method, path, apiKey string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if apiKey != "" {
		req.Header.Set(APIKeyHeader, apiKey)
	}
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func pendingOrder(id, userID string) *order.Order {
	return &order.Order{
		ID:            id,
		UserID:        userID,
		Items:         []order.LineItem{{Kind: order.ItemAdHoc, Name: "Shirt", Price: decimal.NewFromInt(500), Quantity: 1}},
		Subtotal:      decimal.NewFromInt(500),
		TotalAmount:   decimal.NewFromInt(549),
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
		PaymentMethod: order.MethodPending,
		ShippingAddress: order.Address{
			FullName: "Asha", Phone: "9999", HouseNo: "12", Pincode: "560001",
		},
	}
}

// --- Tests ---

func TestAuthentication(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/orders/my", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "missing key")

	rec = api.do(t, http.MethodGet, "/api/orders/my", "wrong-key", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "unknown key")

	rec = api.do(t, http.MethodGet, "/api/orders/my", customerKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProductsArePublic(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	products := decodeBody[[]productResponse](t, rec)
	require.Len(t, products, 2)
	assert.Equal(t, "Linen Shirt", products[0].Name)

	rec = api.do(t, http.MethodGet, "/api/products/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlaceOrder(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/orders", customerKey, placeOrderRequest{
		Items: []orderItemRequest{{ProductID: "p1", Quantity: 2}},
		ShippingAddress: order.Address{
			FullName: "Asha", Phone: "9999", Pincode: "560001",
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decodeBody[orderResponse](t, rec)
	assert.Equal(t, "TCS000001", resp.OrderNumber)
	assert.Equal(t, order.StatusPending, resp.Status)
	assert.Equal(t, order.PaymentPending, resp.PaymentStatus)
	assert.InDelta(t, 1000.0, resp.Subtotal, 0.001)
	assert.InDelta(t, 0.0, resp.ShippingCharge, 0.001, "free shipping above threshold")
	require.Len(t, resp.History, 1)
	assert.Equal(t, "Order placed, awaiting payment", resp.History[0].Note)
}

func TestPlaceOrderCOD(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/orders", customerKey, placeOrderRequest{
		Items:         []orderItemRequest{{ProductID: "p1", Quantity: 1}},
		PaymentMethod: "COD",
		ShippingAddress: order.Address{
			FullName: "Asha", Phone: "9999", Pincode: "560001",
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decodeBody[orderResponse](t, rec)
	assert.Equal(t, order.MethodCOD, resp.PaymentMethod)
	assert.Equal(t, order.PaymentPending, resp.PaymentStatus, "COD is collected on delivery")
}

func TestPlaceOrderRejectsUnknownPaymentMethod(t *testing.T) {
	api := newTestAPI(t)

	for _, method := range []string{"Cheque", "Gateway"} {
		rec := api.do(t, http.MethodPost, "/api/orders", customerKey, placeOrderRequest{
			Items:         []orderItemRequest{{ProductID: "p1", Quantity: 1}},
			PaymentMethod: method,
			ShippingAddress: order.Address{
				FullName: "Asha", Phone: "9999", Pincode: "560001",
			},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code, method)
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/orders", customerKey, placeOrderRequest{
		ShippingAddress: order.Address{FullName: "Asha", Phone: "9999", Pincode: "560001"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "empty items")

	rec = api.do(t, http.MethodPost, "/api/orders", customerKey, placeOrderRequest{
		Items:           []orderItemRequest{{ProductID: "p1", Quantity: 1}},
		ShippingAddress: order.Address{FullName: "Asha"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "incomplete address")

	rec = api.do(t, http.MethodPost, "/api/orders", customerKey, placeOrderRequest{
		Items:           []orderItemRequest{{ProductID: "ghost", Quantity: 1}},
		ShippingAddress: order.Address{FullName: "Asha", Phone: "9999", Pincode: "560001"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "unknown product")
}

func TestMyOrdersScopedToOwner(t *testing.T) {
	api := newTestAPI(t)
	require.NoError(t, api.orders.Create(context.Background(), pendingOrder("o1", "user-1")))
	require.NoError(t, api.orders.Create(context.Background(), pendingOrder("o2", "someone-else")))

	rec := api.do(t, http.MethodGet, "/api/orders/my", customerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	orders := decodeBody[[]orderResponse](t, rec)
	require.Len(t, orders, 1)
	assert.Equal(t, "o1", orders[0].ID)
}

func TestOperatorListRequiresScope(t *testing.T) {
	api := newTestAPI(t)
	require.NoError(t, api.orders.Create(context.Background(), pendingOrder("o1", "user-1")))

	rec := api.do(t, http.MethodGet, "/api/orders", customerKey, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/orders", operatorKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetOrderAccess(t *testing.T) {
	api := newTestAPI(t)
	require.NoError(t, api.orders.Create(context.Background(), pendingOrder("o1", "someone-else")))

	rec := api.do(t, http.MethodGet, "/api/orders/o1", customerKey, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "non-owner customer")

	rec = api.do(t, http.MethodGet, "/api/orders/o1", operatorKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "operator sees any order")

	rec = api.do(t, http.MethodGet, "/api/orders/missing", operatorKey, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateOrderStatus(t *testing.T) {
	api := newTestAPI(t)
	o := pendingOrder("o1", "user-1")
	o.Status = order.StatusPlaced
	o.PaymentStatus = order.PaymentPaid
	require.NoError(t, api.orders.Create(context.Background(), o))

	rec := api.do(t, http.MethodPut, "/api/orders/o1/status", operatorKey,
		updateStatusRequest{Status: order.StatusShipped, Note: "on its way"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[orderResponse](t, rec)
	assert.Equal(t, order.StatusShipped, resp.Status)

	rec = api.do(t, http.MethodPut, "/api/orders/o1/status", operatorKey,
		updateStatusRequest{Status: order.StatusPlaced})
	assert.Equal(t, http.StatusConflict, rec.Code, "illegal edge")

	rec = api.do(t, http.MethodPut, "/api/orders/o1/status", customerKey,
		updateStatusRequest{Status: order.StatusDelivered})
	assert.Equal(t, http.StatusForbidden, rec.Code, "customers cannot drive fulfilment")
}

func TestSelfConfirmEndpoint(t *testing.T) {
	api := newTestAPI(t)
	require.NoError(t, api.orders.Create(context.Background(), pendingOrder("o1", "user-1")))

	rec := api.do(t, http.MethodPut, "/api/orders/o1/confirm-payment", customerKey,
		selfConfirmRequest{UPITransactionID: "upi_42"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[orderResponse](t, rec)
	assert.Equal(t, order.PaymentPaid, resp.PaymentStatus)
	assert.Equal(t, "upi_42", resp.UPITransactionID)

	rec = api.do(t, http.MethodPut, "/api/orders/o1/confirm-payment", customerKey,
		selfConfirmRequest{UPITransactionID: "upi_43"})
	assert.Equal(t, http.StatusConflict, rec.Code, "already paid")
}

func TestVerifyPaymentEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.carts.items["user-1"] = []cart.Item{
		{Kind: cart.KindCatalog, ProductID: "p1", Quantity: 1},
	}

	rec := api.do(t, http.MethodPost, "/api/payment/verify", customerKey, verifyPaymentRequest{
		GatewayOrderID:  "gw_1",
		PaymentID:       "pay_1",
		Signature:       signCheckout("gw_1", "pay_1"),
		ShippingAddress: order.Address{FullName: "Asha", Phone: "9999", Pincode: "560001"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	api.svc.WaitSideEffects()

	resp := decodeBody[confirmationResponse](t, rec)
	assert.NotEmpty(t, resp.OrderID)
	assert.False(t, resp.AlreadyProcessed)

	rec = api.do(t, http.MethodPost, "/api/payment/verify", customerKey, verifyPaymentRequest{
		GatewayOrderID: "gw_2",
		PaymentID:      "pay_2",
		Signature:      "deadbeef",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "bad signature")
}

func TestWebhookEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.carts.items["user-1"] = []cart.Item{
		{Kind: cart.KindCatalog, ProductID: "p1", Quantity: 1},
	}

	body := []byte(`{
		"event": "payment.captured",
		"payload": {"payment": {"entity": {
			"id": "pay_wh",
			"notes": {"userId": "user-1"}
		}}}
	}`)

	req := httptest.NewRequest(http.MethodPost, "/api/payment/webhook", bytes.NewReader(body))
	req.Header.Set(WebhookSignatureHeader, signBody(body))
	rec := httptest.NewRecorder()
	api.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	api.svc.WaitSideEffects()

	o, err := api.orders.FindByPaymentID(context.Background(), "pay_wh")
	require.NoError(t, err)
	assert.Equal(t, order.PaymentPaid, o.PaymentStatus)
}

func TestWebhookEndpointRejectsBadSignature(t *testing.T) {
	api := newTestAPI(t)
	body := []byte(`{"event":"payment.captured"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/payment/webhook", bytes.NewReader(body))
	req.Header.Set(WebhookSignatureHeader, "deadbeef")
	rec := httptest.NewRecorder()
	api.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookEndpointAcksInternalFailure(t *testing.T) {
	api := newTestAPI(t)
	// Signed capture referencing a user with an empty cart: processing
	// fails internally, but the gateway still gets a 200 ack.
	body := []byte(`{
		"event": "payment.captured",
		"payload": {"payment": {"entity": {
			"id": "pay_wh",
			"notes": {"userId": "user-1"}
		}}}
	}`)

	req := httptest.NewRequest(http.MethodPost, "/api/payment/webhook", bytes.NewReader(body))
	req.Header.Set(WebhookSignatureHeader, signBody(body))
	rec := httptest.NewRecorder()
	api.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReceivingUPIEndpoint(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/payment/upi-id", customerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[map[string]string](t, rec)
	assert.Equal(t, testReceivingID, resp["upiId"])
}

func TestOrderReceiptEndpoint(t *testing.T) {
	api := newTestAPI(t)
	o := pendingOrder("o1", "user-1")
	o.Number = "TCS000042"
	api.orders.orders["o1"] = o

	rec := api.do(t, http.MethodGet, "/api/orders/o1/receipt", customerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "TCS000042")
}

func TestCreateUPIOrderEndpoint(t *testing.T) {
	api := newTestAPI(t)
	require.NoError(t, api.orders.Create(context.Background(), pendingOrder("o1", "user-1")))

	rec := api.do(t, http.MethodPost, "/api/payment/create-upi-order", customerKey,
		createUPIOrderRequest{OrderID: "o1", Amount: 549})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[remoteOrderResponse](t, rec)
	assert.Equal(t, "gw_remote", resp.OrderID)
	assert.Equal(t, int64(54900), resp.Amount)

	o, err := api.orders.GetByID(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, "gw_remote", o.GatewayOrderID)
}
