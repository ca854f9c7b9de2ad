package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureVerifier checks the checkout signature a client presents after paying:
// hex(HMAC-SHA256(secret, orderID + "|" + paymentID)).
type SignatureVerifier struct {
	secret []byte
}

// NewSignatureVerifier requires a non-empty signing secret.
func NewSignatureVerifier(secret string) (*SignatureVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("payments: signing secret is required")
	}
	return &SignatureVerifier{secret: []byte(secret)}, nil
}

// Sign computes the expected signature.
func (v *SignatureVerifier) Sign(orderID, paymentID string) string {
	return hex.EncodeToString(v.mac(orderID, paymentID))
}

// Verify compares signature byte for byte with the expected lower-case hex value, in constant time.
func (v *SignatureVerifier) Verify(orderID, paymentID, signature string) bool {
	if v == nil || orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(v.Sign(orderID, paymentID)))
}

func (v *SignatureVerifier) mac(orderID, paymentID string) []byte {
	h := hmac.New(sha256.New, v.secret)
	h.Write([]byte(orderID + "|" + paymentID))
	return h.Sum(nil)
}
