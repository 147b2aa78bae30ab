package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// ComputeSignature возвращает hex HMAC-SHA256 строки "{orderSessionID}|{paymentID}".
func ComputeSignature(orderSessionID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderSessionID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature сравнивает подпись за постоянное время.
func VerifySignature(orderSessionID, paymentID, signature, secret string) bool {
	expected := ComputeSignature(orderSessionID, paymentID, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ComputeWebhookSignature возвращает hex HMAC-SHA256 тела вебхука.
func ComputeWebhookSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature проверяет заголовок X-Razorpay-Signature.
func VerifyWebhookSignature(body []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := ComputeWebhookSignature(body, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
