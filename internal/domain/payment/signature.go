package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Verifier checks the authenticity of inbound confirmation payloads using
// the gateway's HMAC-SHA256 signing schemes. It is a pure function of its
// inputs and the configured secrets.
type Verifier struct {
	keySecret     []byte
	webhookSecret []byte
}

// NewVerifier creates a Verifier. The checkout scheme always signs with
// keySecret; webhook notifications sign with webhookSecret, falling back
// to keySecret when no separate webhook secret is configured.
func NewVerifier(keySecret, webhookSecret string) *Verifier {
	if webhookSecret == "" {
		webhookSecret = keySecret
	}
	return &Verifier{
		keySecret:     []byte(keySecret),
		webhookSecret: []byte(webhookSecret),
	}
}

// VerifyCheckout validates a client-redirect confirmation. The gateway
// signs the concatenation "<gateway order id>|<payment id>".
func (v *Verifier) VerifyCheckout(gatewayOrderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, v.keySecret)
	mac.Write([]byte(gatewayOrderID))
	mac.Write([]byte{'|'})
	mac.Write([]byte(paymentID))
	return equalHex(mac.Sum(nil), signature)
}

// VerifyWebhook validates a server-to-server notification. The gateway
// signs the raw request body as delivered.
func (v *Verifier) VerifyWebhook(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, v.webhookSecret)
	mac.Write(body)
	return equalHex(mac.Sum(nil), signature)
}

// equalHex compares a computed MAC against its hex-encoded expectation in
// constant time.
func equalHex(sum []byte, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(sum, expected)
}
