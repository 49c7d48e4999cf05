package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Headers set on every outbound delivery.
const (
	SignatureHeader = "X-InfluenceGen-Signature"
	EventTypeHeader = "X-InfluenceGen-Event"
)

// VerifyHMAC checks a hex HMAC-SHA256 signature over the raw body. The service
// only signs; receivers of our deliveries (and scripts/ws_client.go, which
// plays one) use this to check SignatureHeader.
func VerifyHMAC(secret string, body []byte, provided string) bool {
	b, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	return hmac.Equal(mac(secret, body), b)
}

// SignHMAC returns lowercase hex of HMAC-SHA256 over body.
func SignHMAC(secret string, body []byte) string {
	return hex.EncodeToString(mac(secret, body))
}

func mac(secret string, body []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return h.Sum(nil)
}
