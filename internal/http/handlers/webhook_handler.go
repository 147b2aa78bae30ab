package handlers

import (
	"context"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/beereshbc/influencaa-backend/internal/gateway"
	"github.com/beereshbc/influencaa-backend/internal/http/response"
	"github.com/beereshbc/influencaa-backend/internal/logger"
	"github.com/beereshbc/influencaa-backend/internal/pkg/apperror"
)

const maxWebhookBody = 1 << 20

// GatewayEventHandler применяет событие платёжного шлюза к заказу.
type GatewayEventHandler interface {
	HandleGatewayEvent(ctx context.Context, evt *gateway.WebhookEvent) error
}

// EventDeduplicator отмечает доставленные события.
type EventDeduplicator interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type WebhookHandler struct {
	events GatewayEventHandler
	dedup  EventDeduplicator
	secret string
}

// NewWebhookHandler создаёт хэндлер вебхуков Razorpay. dedup может быть nil.
func NewWebhookHandler(events GatewayEventHandler, dedup EventDeduplicator, secret string) *WebhookHandler {
	return &WebhookHandler{events: events, dedup: dedup, secret: secret}
}

// Razorpay обрабатывает POST /webhooks/razorpay.
func (h *WebhookHandler) Razorpay(c *gin.Context) {
	if h.secret == "" {
		logger.Alert("webhook: секрет вебхука не настроен", logrus.Fields{"path": c.FullPath()})
		response.Error(c, apperror.ErrGatewayNotConfigured)
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(c, "не удалось прочитать тело запроса")
		return
	}

	if !gateway.VerifyWebhookSignature(body, c.GetHeader("X-Razorpay-Signature"), h.secret) {
		logger.Log.WithField("ip", c.ClientIP()).Warn("webhook: подпись не прошла проверку")
		response.Error(c, apperror.ErrSignatureMismatch)
		return
	}

	evt, err := gateway.ParseWebhookEvent(body)
	if err != nil {
		response.BadRequest(c, "некорректное событие")
		return
	}

	ctx := c.Request.Context()
	eventID := c.GetHeader("X-Razorpay-Event-Id")
	log := logger.Log.WithFields(logrus.Fields{
		"event":    evt.Type,
		"event_id": eventID,
	})

	if h.dedup != nil && eventID != "" {
		seen, err := h.dedup.CheckAndMark(ctx, eventID)
		if err != nil {
			// без хранилища ключей событие всё равно обрабатывается: подтверждение идемпотентно
			log.WithField("error", err.Error()).Warn("webhook: проверка повторной доставки недоступна")
		} else if seen {
			log.Debug("webhook: событие уже обработано")
			response.OK(c, gin.H{"duplicate": true})
			return
		}
	}

	if err := h.events.HandleGatewayEvent(ctx, evt); err != nil {
		if h.dedup != nil && eventID != "" {
			if delErr := h.dedup.Delete(ctx, eventID); delErr != nil {
				log.WithField("error", delErr.Error()).Warn("webhook: не удалось снять отметку события")
			}
		}
		response.Error(c, err)
		return
	}

	response.OK(c, nil)
}
