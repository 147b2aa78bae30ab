package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
)

// События вебхука Razorpay, на которые реагирует сервис.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventOrderPaid       = "order.paid"
)

// WebhookEvent — нормализованное событие вебхука.
type WebhookEvent struct {
	Type            string
	RazorpayOrderID string
	PaymentID       string
}

type webhookEntity struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
}

type webhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity webhookEntity `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity webhookEntity `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

// ParseWebhookEvent разбирает тело вебхука. Подпись должна быть проверена до вызова.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var raw webhookPayload
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("razorpay: decode webhook: %w", err)
	}
	if raw.Event == "" {
		return nil, errors.New("razorpay: webhook without event type")
	}

	evt := &WebhookEvent{Type: raw.Event}
	if p := raw.Payload.Payment; p != nil {
		evt.PaymentID = p.Entity.ID
		evt.RazorpayOrderID = p.Entity.OrderID
	}
	if o := raw.Payload.Order; o != nil && evt.RazorpayOrderID == "" {
		evt.RazorpayOrderID = o.Entity.ID
	}

	return evt, nil
}
