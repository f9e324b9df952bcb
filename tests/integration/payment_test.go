//go:build integration

package integration

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
)

func signWebhookBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(gatewayWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func signCheckout(gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(gatewayKeySecret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, body []byte, signature string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
		baseURL+"/api/payment/webhook", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gateway-Signature", signature)

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("POST webhook: %v", err)
	}
	return resp
}

func captureEvent(paymentID, orderID string) []byte {
	return []byte(fmt.Sprintf(`{
		"event": "payment.captured",
		"payload": {"payment": {"entity": {
			"id": %q,
			"order_id": "gw_int",
			"notes": {"userId": "u-cust", "orderId": %q}
		}}}
	}`, paymentID, orderID))
}

func TestReceivingUPI(t *testing.T) {
	resp := doGetWithAuth(t, "/api/payment/upi-id", customerAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestWebhook_BadSignature(t *testing.T) {
	resp := postWebhook(t, []byte(`{"event":"payment.captured"}`), "deadbeef")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestWebhook_ConfirmsExistingOrder(t *testing.T) {
	o := placeOrder(t, []orderItemRequest{{ProductID: "c2", Quantity: 1}})

	body := captureEvent("pay_int_existing", o.ID)
	resp := postWebhook(t, body, signWebhookBody(body))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var ack map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack["status"] != "ok" {
		t.Fatalf("ack status: got %v, want ok", ack["status"])
	}
	if ack["orderId"] != o.ID {
		t.Errorf("ack orderId: got %v, want %s", ack["orderId"], o.ID)
	}

	got := fetchOrder(t, o.ID)
	if got.PaymentStatus != "Paid" {
		t.Errorf("payment status: got %q, want Paid", got.PaymentStatus)
	}
	if got.Status != "Placed" {
		t.Errorf("status: got %q, want Placed", got.Status)
	}
	if got.PaymentID != "pay_int_existing" {
		t.Errorf("payment id: got %q", got.PaymentID)
	}
}

func TestWebhook_RedeliveryIsIdempotent(t *testing.T) {
	o := placeOrder(t, []orderItemRequest{{ProductID: "c1", Quantity: 1}})

	body := captureEvent("pay_int_redelivery", o.ID)
	resp := postWebhook(t, body, signWebhookBody(body))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first delivery: expected 200, got %d", resp.StatusCode)
	}

	first := fetchOrder(t, o.ID)
	historyLen := len(first.History)

	resp = postWebhook(t, body, signWebhookBody(body))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("redelivery: expected 200, got %d", resp.StatusCode)
	}

	var ack map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack["orderId"] != o.ID {
		t.Errorf("redelivery orderId: got %v, want %s", ack["orderId"], o.ID)
	}

	second := fetchOrder(t, o.ID)
	if len(second.History) != historyLen {
		t.Errorf("redelivery grew history: %d -> %d", historyLen, len(second.History))
	}
}

func TestWebhook_NonCaptureEventAcknowledged(t *testing.T) {
	body := []byte(`{"event": "payment.failed", "payload": {"payment": {"entity": {"id": "pay_int_failed"}}}}`)
	resp := postWebhook(t, body, signWebhookBody(body))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestVerifyUPIPayment_RedirectConfirmation(t *testing.T) {
	o := placeOrder(t, []orderItemRequest{{ProductID: "c4", Quantity: 1}})

	resp := doPostWithAuth(t, "/api/payment/verify-upi", map[string]string{
		"orderId":        o.ID,
		"gatewayOrderId": "gw_redirect",
		"paymentId":      "pay_int_redirect",
		"signature":      signCheckout("gw_redirect", "pay_int_redirect"),
	}, customerAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	got := fetchOrder(t, o.ID)
	if got.PaymentStatus != "Paid" {
		t.Errorf("payment status: got %q, want Paid", got.PaymentStatus)
	}
	if got.PaymentMethod != "UPI" {
		t.Errorf("payment method: got %q, want UPI", got.PaymentMethod)
	}
}

func TestVerifyUPIPayment_BadSignature(t *testing.T) {
	o := placeOrder(t, []orderItemRequest{{ProductID: "c4", Quantity: 1}})

	resp := doPostWithAuth(t, "/api/payment/verify-upi", map[string]string{
		"orderId":        o.ID,
		"gatewayOrderId": "gw_bad",
		"paymentId":      "pay_int_bad",
		"signature":      "deadbeef",
	}, customerAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	got := fetchOrder(t, o.ID)
	if got.PaymentStatus != "Pending" {
		t.Errorf("payment status: got %q, want Pending", got.PaymentStatus)
	}
}

func fetchOrder(t *testing.T, id string) orderResponse {
	t.Helper()

	resp := doGetWithAuth(t, "/api/orders/"+id, customerAPIKey)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fetch order %s: expected 200, got %d", id, resp.StatusCode)
	}
	return decodeJSON[orderResponse](t, resp)
}
