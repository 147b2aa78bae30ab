package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/beereshbc/influencaa-backend/internal/domain/valueobject"
	"github.com/beereshbc/influencaa-backend/internal/gateway"
	"github.com/beereshbc/influencaa-backend/internal/logger"
	"github.com/beereshbc/influencaa-backend/internal/models"
	"github.com/beereshbc/influencaa-backend/internal/pkg/apperror"
	"github.com/beereshbc/influencaa-backend/internal/repository"
	"github.com/beereshbc/influencaa-backend/internal/validation"
)

// InitiatePayment открывает (или переиспользует) платёжную сессию для принятого заказа.
// Повторные и параллельные вызовы приводят к одному платежу и одной сессии.
func (s *OrderService) InitiatePayment(ctx context.Context, clientID, orderID uuid.UUID) (*models.PaymentSession, error) {
	order, err := s.loadForClient(ctx, clientID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Cancelled {
		return nil, apperror.InvalidState("заказ отменён")
	}
	if order.Status != valueobject.OrderStatusApproved {
		return nil, apperror.InvalidState("оплата доступна только для принятого заказа")
	}

	payment, err := s.ensurePayment(ctx, order)
	if err != nil {
		return nil, err
	}

	switch {
	case payment.PaymentStatus == valueobject.PaymentStatusPaid:
		return nil, apperror.ErrAlreadyPaid
	case payment.PaymentStatus.HasSession() && payment.SessionID() != "":
		s.metrics.IncSession("reused")
		return s.existingSession(order, payment)
	case payment.PaymentStatus != valueobject.PaymentStatusUnpaid:
		return nil, apperror.InvalidState(fmt.Sprintf("платёж в статусе %s", payment.PaymentStatus))
	}

	money, err := valueobject.NewMoney(payment.TotalEscrowAmount, payment.PaymentCurrency)
	if err != nil {
		return nil, err
	}

	started := s.now()
	session, err := s.gateway.CreateSession(ctx, gateway.SessionRequest{
		Amount:   money.MinorUnits(),
		Currency: money.Currency,
		Receipt:  receiptFor(order.ID),
		Notes: map[string]string{
			"orderId":  order.ID.String(),
			"clientId": order.ClientID.String(),
		},
	})
	s.metrics.ObserveGateway(time.Since(started))
	if err != nil {
		s.metrics.IncSession("failed")
		logger.Log.WithFields(logrus.Fields{
			"order_id":   order.ID,
			"payment_id": payment.ID,
			"error":      err.Error(),
		}).Warn("не удалось открыть сессию в платёжном шлюзе")

		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			if appErr.Code == apperror.ErrCodeConfiguration {
				logger.Alert("платёжный шлюз не настроен", logrus.Fields{"operation": "initiate_payment"})
			}
			return nil, appErr
		}
		return nil, apperror.Gateway(err)
	}

	if err := s.payments.AttachSession(ctx, payment.ID, session.ID); err != nil {
		if !errors.Is(err, repository.ErrPaymentStateChanged) {
			return nil, fmt.Errorf("order service: attach session %w", err)
		}
		// Параллельный запрос успел привязать свою сессию: возвращаем её.
		current, err := s.payments.GetByOrderID(ctx, order.ID)
		if err != nil {
			return nil, fmt.Errorf("order service: reload payment %w", err)
		}
		if current.PaymentStatus == valueobject.PaymentStatusPaid {
			return nil, apperror.ErrAlreadyPaid
		}
		if current.SessionID() == "" {
			return nil, apperror.InvalidState(fmt.Sprintf("платёж в статусе %s", current.PaymentStatus))
		}
		s.metrics.IncSession("reused")
		return s.existingSession(order, current)
	}

	s.metrics.IncSession("created")
	logger.Log.WithFields(logrus.Fields{
		"order_id":          order.ID,
		"payment_id":        payment.ID,
		"razorpay_order_id": session.ID,
	}).Info("платёжная сессия открыта")

	return &models.PaymentSession{
		GatewayOrderID: session.ID,
		Amount:         session.Amount,
		Currency:       session.Currency,
		Receipt:        session.Receipt,
		KeyID:          s.settings.KeyID,
		OrderID:        order.ID,
		PaymentID:      payment.ID,
	}, nil
}

// ensurePayment находит платёж заказа по order_id или создаёт его, затем чинит ссылку orders.payment_id.
// Поиск идёт по order_id, а не по ссылке в заказе, поэтому платёж-сирота переиспользуется.
func (s *OrderService) ensurePayment(ctx context.Context, order *models.Order) (*models.Payment, error) {
	payment, err := s.payments.GetByOrderID(ctx, order.ID)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrPaymentNotFound):
		var created bool
		payment, created, err = s.payments.CreateForOrder(ctx, &models.Payment{
			OrderID:           order.ID,
			PaymentStatus:     valueobject.PaymentStatusUnpaid,
			TotalEscrowAmount: order.TotalAmount,
			PaymentCurrency:   s.settings.Currency,
		})
		if err != nil {
			return nil, fmt.Errorf("order service: create payment %w", err)
		}
		if created {
			logger.Log.WithFields(logrus.Fields{
				"order_id":   order.ID,
				"payment_id": payment.ID,
			}).Info("создан платёж для заказа")
		}
	default:
		return nil, fmt.Errorf("order service: get payment %w", err)
	}

	if order.PaymentID != nil && *order.PaymentID == payment.ID {
		return payment, nil
	}

	if err := s.orders.LinkPayment(ctx, order.ID, payment.ID); err != nil {
		if errors.Is(err, repository.ErrPaymentAlreadyLinked) {
			logger.Log.WithFields(logrus.Fields{
				"order_id":   order.ID,
				"payment_id": payment.ID,
			}).Error("несогласованное состояние: заказ связан с другим платежом")
			return nil, apperror.New(apperror.ErrCodeConflict, "заказ связан с другим платежом")
		}
		return nil, fmt.Errorf("order service: link payment %w", err)
	}
	order.PaymentID = &payment.ID

	return payment, nil
}

func (s *OrderService) existingSession(order *models.Order, payment *models.Payment) (*models.PaymentSession, error) {
	money, err := valueobject.NewMoney(payment.TotalEscrowAmount, payment.PaymentCurrency)
	if err != nil {
		return nil, err
	}
	return &models.PaymentSession{
		GatewayOrderID: payment.SessionID(),
		Amount:         money.MinorUnits(),
		Currency:       money.Currency,
		Receipt:        receiptFor(order.ID),
		KeyID:          s.settings.KeyID,
		OrderID:        order.ID,
		PaymentID:      payment.ID,
	}, nil
}

// receiptFor строит идемпотентный ключ чека: не длиннее 40 символов, как требует шлюз.
func receiptFor(orderID uuid.UUID) string {
	return "rcpt_" + strings.ReplaceAll(orderID.String(), "-", "")
}

// VerifyPaymentInput — подтверждение оплаты от клиентского виджета.
type VerifyPaymentInput struct {
	GatewayOrderID   string `json:"gatewayOrderId"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
	Signature        string `json:"signature"`
}

// VerifyPayment проверяет подпись шлюза и подтверждает оплату.
// Повторное подтверждение уже оплаченного платежа возвращает успех без изменения данных.
// Неверная подпись переводит платёж в failed (кроме уже оплаченного) и не трогает заказ.
// Оплата по отменённому заказу не подтверждается: возвращается ErrPaidCancelledOrder.
func (s *OrderService) VerifyPayment(ctx context.Context, in VerifyPaymentInput) (*models.VerificationResult, error) {
	if s.settings.KeySecret == "" {
		s.metrics.IncVerification("misconfigured")
		logger.Alert("секрет платёжного шлюза не задан", logrus.Fields{"operation": "verify_payment"})
		return nil, apperror.ErrGatewayNotConfigured
	}

	var missing []string
	if strings.TrimSpace(in.GatewayOrderID) == "" {
		missing = append(missing, "gatewayOrderId")
	}
	if strings.TrimSpace(in.Signature) == "" {
		missing = append(missing, "signature")
	}
	if len(missing) > 0 {
		return nil, apperror.Validation("отсутствуют обязательные поля", missing...)
	}

	if !gateway.VerifySignature(in.GatewayOrderID, in.GatewayPaymentID, in.Signature, s.settings.KeySecret) {
		s.metrics.IncVerification("mismatch")
		s.markFailed(ctx, in.GatewayOrderID, "verify")
		return nil, apperror.ErrSignatureMismatch
	}

	return s.confirmPayment(ctx, in.GatewayOrderID, in.GatewayPaymentID, "verify")
}

// confirmPayment фиксирует подлинную оплату и переводит заказ approved -> in_progress.
func (s *OrderService) confirmPayment(ctx context.Context, razorpayOrderID, gatewayPaymentID, source string) (*models.VerificationResult, error) {
	log := logger.Log.WithFields(logrus.Fields{
		"razorpay_order_id": razorpayOrderID,
		"gateway_payment":   gatewayPaymentID,
		"source":            source,
	})

	payment, err := s.payments.GetByRazorpayOrderID(ctx, razorpayOrderID)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			s.metrics.IncVerification("not_found")
			log.WithField("inconsistency", true).Error("подпись верна, но платёж с такой сессией не найден")
			return nil, apperror.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("order service: get payment by session %w", err)
	}

	if payment.PaymentStatus == valueobject.PaymentStatusPaid {
		return s.alreadyPaid(ctx, payment, log)
	}

	paid, err := s.payments.MarkPaid(ctx, razorpayOrderID, gatewayPaymentID, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrOrderCancelled) {
			return nil, s.paidCancelledOrder(log, payment.OrderID)
		}
		if !errors.Is(err, repository.ErrPaymentStateChanged) {
			return nil, fmt.Errorf("order service: mark paid %w", err)
		}
		current, err := s.payments.GetByRazorpayOrderID(ctx, razorpayOrderID)
		if err != nil {
			return nil, fmt.Errorf("order service: reload payment %w", err)
		}
		if current.PaymentStatus == valueobject.PaymentStatusPaid {
			return s.alreadyPaid(ctx, current, log)
		}
		return nil, apperror.InvalidState(fmt.Sprintf("платёж в статусе %s", current.PaymentStatus))
	}

	s.metrics.IncVerification("paid")
	log.WithField("payment_id", paid.ID).Info("оплата подтверждена")

	order, err := s.advanceToInProgress(ctx, paid.OrderID)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, order.ClientID, models.NotificationPaymentConfirmed, paid)
	s.notify(ctx, order.InfluencerID, models.NotificationPaymentConfirmed, paid)

	return &models.VerificationResult{
		Success:   true,
		Message:   "оплата подтверждена",
		OrderID:   &paid.OrderID,
		PaymentID: &paid.ID,
	}, nil
}

// alreadyPaid обслуживает повторную доставку: данные платежа не меняются, заказ доводится до in_progress, если ещё не.
func (s *OrderService) alreadyPaid(ctx context.Context, payment *models.Payment, log *logrus.Entry) (*models.VerificationResult, error) {
	s.metrics.IncVerification("duplicate")
	log.WithField("payment_id", payment.ID).Info("повторное подтверждение уже оплаченного платежа")

	if _, err := s.advanceToInProgress(ctx, payment.OrderID); err != nil {
		return nil, err
	}

	return &models.VerificationResult{
		Success:     true,
		Message:     "оплата уже подтверждена",
		OrderID:     &payment.OrderID,
		PaymentID:   &payment.ID,
		AlreadyPaid: true,
	}, nil
}

// advanceToInProgress переводит заказ approved -> in_progress. Заказ в другом статусе не трогается.
func (s *OrderService) advanceToInProgress(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.UpdateStatus(ctx, orderID, valueobject.OrderStatusApproved, valueobject.OrderStatusInProgress)
	if err == nil {
		s.metrics.IncTransition(string(valueobject.OrderStatusInProgress))
		return order, nil
	}
	if !errors.Is(err, repository.ErrOrderStateChanged) {
		return nil, fmt.Errorf("order service: advance order %w", err)
	}

	current, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current.Cancelled {
		return nil, s.paidCancelledOrder(logger.Log.WithField("source", "advance"), current.ID)
	}
	if current.Status == valueobject.OrderStatusApproved || current.Status == valueobject.OrderStatusPending {
		logger.Log.WithFields(logrus.Fields{
			"order_id":  current.ID,
			"status":    current.Status,
			"cancelled": current.Cancelled,
		}).Warn("оплаченный заказ не может перейти в работу")
	}
	return current, nil
}

// paidCancelledOrder фиксирует подлинную оплату по отменённому заказу. Деньги у шлюза, заказ в работу не идёт:
// нужен ручной возврат.
func (s *OrderService) paidCancelledOrder(log *logrus.Entry, orderID uuid.UUID) error {
	s.metrics.IncVerification("cancelled_order")
	log.WithFields(logrus.Fields{
		"order_id":        orderID,
		"inconsistency":   true,
		"refund_required": true,
	}).Error("оплата пришла по отменённому заказу")
	logger.Alert("оплата по отменённому заказу требует возврата", logrus.Fields{"order_id": orderID})
	return apperror.ErrPaidCancelledOrder
}

// markFailed помечает платёж неудачным. Ошибки только логируются: вызывающий в любом случае получает отказ.
func (s *OrderService) markFailed(ctx context.Context, razorpayOrderID, source string) {
	log := logger.Log.WithFields(logrus.Fields{
		"razorpay_order_id": razorpayOrderID,
		"source":            source,
	})

	changed, err := s.payments.MarkFailed(ctx, razorpayOrderID)
	if err != nil {
		log.WithError(err).Warn("не удалось отметить платёж как неуспешный")
		return
	}
	if !changed {
		log.Info("платёж не найден или уже оплачен, статус не изменён")
		return
	}
	log.Warn("платёж отмечен как неуспешный")

	payment, err := s.payments.GetByRazorpayOrderID(ctx, razorpayOrderID)
	if err != nil {
		return
	}
	if order, err := s.load(ctx, payment.OrderID); err == nil {
		s.notify(ctx, order.ClientID, models.NotificationPaymentFailed, payment)
	}
}

// HandleGatewayEvent обрабатывает событие вебхука шлюза.
func (s *OrderService) HandleGatewayEvent(ctx context.Context, evt *gateway.WebhookEvent) error {
	if evt.RazorpayOrderID == "" {
		s.metrics.IncWebhook(evt.Type, "ignored")
		return nil
	}

	switch evt.Type {
	case gateway.EventPaymentCaptured, gateway.EventOrderPaid:
		if _, err := s.confirmPayment(ctx, evt.RazorpayOrderID, evt.PaymentID, "webhook"); err != nil {
			if apperror.IsNotFound(err) {
				s.metrics.IncWebhook(evt.Type, "unknown_order")
				return nil
			}
			if errors.Is(err, apperror.ErrPaidCancelledOrder) {
				s.metrics.IncWebhook(evt.Type, "cancelled_order")
				return nil
			}
			s.metrics.IncWebhook(evt.Type, "error")
			return err
		}
	case gateway.EventPaymentFailed:
		s.markFailed(ctx, evt.RazorpayOrderID, "webhook")
	default:
		s.metrics.IncWebhook(evt.Type, "ignored")
		return nil
	}

	s.metrics.IncWebhook(evt.Type, "processed")
	return nil
}

// GetOrderPaymentDetails возвращает заказ бренда вместе с платежом.
// Отсутствие платежа не ошибка: выставляется PaymentDetailsMissing.
func (s *OrderService) GetOrderPaymentDetails(ctx context.Context, clientID, orderID uuid.UUID) (*models.OrderWithPayment, error) {
	order, err := s.loadForClient(ctx, clientID, orderID)
	if err != nil {
		return nil, err
	}

	payment, err := s.payments.GetByOrderID(ctx, order.ID)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return &models.OrderWithPayment{Order: order, PaymentDetailsMissing: true}, nil
		}
		return nil, fmt.Errorf("order service: get payment details %w", err)
	}

	return &models.OrderWithPayment{Order: order, Payment: payment}, nil
}

// MilestoneInput — этап плана поэтапного освобождения escrow.
type MilestoneInput struct {
	Name      string  `json:"name" validate:"required"`
	AmountDue float64 `json:"amountDue" validate:"gt=0"`
}

// SetMilestonesInput — план этапов для платежа заказа.
type SetMilestonesInput struct {
	Milestones []MilestoneInput `json:"milestones" validate:"required,min=1,dive"`
}

// SetMilestones заменяет план этапов платежа. Сумма этапов не может превышать сумму escrow.
func (s *OrderService) SetMilestones(ctx context.Context, clientID, orderID uuid.UUID, in SetMilestonesInput) (*models.Payment, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	order, err := s.loadForClient(ctx, clientID, orderID)
	if err != nil {
		return nil, err
	}

	payment, err := s.payments.GetByOrderID(ctx, order.ID)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, apperror.InvalidState("платёж по заказу ещё не создан")
		}
		return nil, fmt.Errorf("order service: get payment %w", err)
	}

	total := decimal.Zero
	milestones := make([]models.Milestone, 0, len(in.Milestones))
	for i, m := range in.Milestones {
		total = total.Add(decimal.NewFromFloat(m.AmountDue))
		milestones = append(milestones, models.Milestone{
			PaymentID: payment.ID,
			Position:  i,
			Name:      m.Name,
			AmountDue: m.AmountDue,
			Status:    valueobject.MilestoneStatusPending,
		})
	}
	if total.GreaterThan(decimal.NewFromFloat(payment.TotalEscrowAmount)) {
		return nil, apperror.Validation("сумма этапов превышает сумму escrow", "milestones")
	}

	if err := s.payments.ReplaceMilestones(ctx, payment.ID, milestones); err != nil {
		if errors.Is(err, repository.ErrPaymentStateChanged) {
			return nil, apperror.InvalidState("часть этапов уже освобождена или оспорена")
		}
		return nil, fmt.Errorf("order service: replace milestones %w", err)
	}

	return s.payments.GetByOrderID(ctx, order.ID)
}
