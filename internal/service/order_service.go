package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/beereshbc/influencaa-backend/internal/domain/valueobject"
	"github.com/beereshbc/influencaa-backend/internal/gateway"
	"github.com/beereshbc/influencaa-backend/internal/logger"
	"github.com/beereshbc/influencaa-backend/internal/metrics"
	"github.com/beereshbc/influencaa-backend/internal/models"
	"github.com/beereshbc/influencaa-backend/internal/pkg/apperror"
	"github.com/beereshbc/influencaa-backend/internal/repository"
	"github.com/beereshbc/influencaa-backend/internal/validation"
)

// OrderRepository описывает взаимодействие сервиса с хранилищем заказов.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]models.Order, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to valueobject.OrderStatus) (*models.Order, error)
	Cancel(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LinkPayment(ctx context.Context, orderID, paymentID uuid.UUID) error
}

// PaymentRepository описывает взаимодействие сервиса с хранилищем платежей.
type PaymentRepository interface {
	CreateForOrder(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error)
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	GetByRazorpayOrderID(ctx context.Context, razorpayOrderID string) (*models.Payment, error)
	AttachSession(ctx context.Context, paymentID uuid.UUID, razorpayOrderID string) error
	MarkPaid(ctx context.Context, razorpayOrderID, gatewayPaymentID string, paidAt time.Time) (*models.Payment, error)
	MarkFailed(ctx context.Context, razorpayOrderID string) (bool, error)
	ReplaceMilestones(ctx context.Context, paymentID uuid.UUID, milestones []models.Milestone) error
}

// OrderNotifier доставляет участникам события заказа. Ошибки доставки не влияют на операцию.
type OrderNotifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event string, data interface{})
}

// PaymentSettings — неизменяемые параметры оплаты из конфигурации.
type PaymentSettings struct {
	Currency  string
	KeyID     string
	KeySecret string
}

// OrderService управляет жизненным циклом заказа и связанного escrow-платежа.
// Заказы и платежи изменяются только через этот сервис.
type OrderService struct {
	orders   OrderRepository
	payments PaymentRepository
	gateway  gateway.Gateway
	notifier OrderNotifier
	metrics  *metrics.PaymentMetrics
	settings PaymentSettings
	now      func() time.Time
}

// NewOrderService создаёт сервис. notifier и m могут быть nil.
func NewOrderService(
	orders OrderRepository,
	payments PaymentRepository,
	gw gateway.Gateway,
	notifier OrderNotifier,
	m *metrics.PaymentMetrics,
	settings PaymentSettings,
) *OrderService {
	if settings.Currency == "" {
		settings.Currency = models.DefaultCurrency
	}
	return &OrderService{
		orders:   orders,
		payments: payments,
		gateway:  gw,
		notifier: notifier,
		metrics:  m,
		settings: settings,
		now:      time.Now,
	}
}

// CreateOrderInput — тело запроса на создание заказа.
type CreateOrderInput struct {
	InfluencerID   string                 `json:"influencerId" validate:"required,uuid"`
	InfluencerName string                 `json:"influencerName" validate:"required"`
	Platform       string                 `json:"platform" validate:"required,platform"`
	Service        string                 `json:"service" validate:"required"`
	ServiceDetails *models.ServiceDetails `json:"serviceDetails" validate:"required"`
	OrderDetails   *models.OrderDetails   `json:"orderDetails" validate:"required"`
	TotalAmount    *float64               `json:"totalAmount" validate:"required,gte=0"`
}

// Create создаёт заказ в статусе pending без платежа.
// Существование инфлюенсера не проверяется.
func (s *OrderService) Create(ctx context.Context, clientID uuid.UUID, in CreateOrderInput) (*models.Order, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	influencerID, err := uuid.Parse(in.InfluencerID)
	if err != nil {
		return nil, apperror.Validation("некорректный идентификатор инфлюенсера", "influencerId")
	}

	order := &models.Order{
		InfluencerID:   influencerID,
		ClientID:       clientID,
		InfluencerName: in.InfluencerName,
		Platform:       valueobject.Platform(in.Platform),
		Service:        in.Service,
		ServiceDetails: *in.ServiceDetails,
		OrderDetails:   *in.OrderDetails,
		TotalAmount:    *in.TotalAmount,
		Status:         valueobject.OrderStatusPending,
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("order service: create %w", err)
	}

	s.metrics.IncTransition(string(valueobject.OrderStatusPending))
	s.notify(ctx, order.InfluencerID, models.NotificationOrderCreated, order)

	return order, nil
}

// ListForClient возвращает заказы бренда, новые первыми.
func (s *OrderService) ListForClient(ctx context.Context, clientID uuid.UUID) ([]models.Order, error) {
	orders, err := s.orders.ListByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("order service: list for client %w", err)
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return orders, nil
}

// ListForSeller возвращает заказы, адресованные инфлюенсеру, новые первыми.
func (s *OrderService) ListForSeller(ctx context.Context, sellerID uuid.UUID) ([]models.Order, error) {
	orders, err := s.orders.ListBySeller(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("order service: list for seller %w", err)
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return orders, nil
}

// Accept переводит заказ pending -> approved. Повторное принятие даёт INVALID_STATE.
func (s *OrderService) Accept(ctx context.Context, sellerID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.loadForSeller(ctx, sellerID, orderID)
	if err != nil {
		return nil, err
	}

	updated, err := s.transition(ctx, order, valueobject.OrderStatusApproved)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, updated.ClientID, models.NotificationOrderAccepted, updated)
	return updated, nil
}

// Reject переводит заказ pending -> rejected.
func (s *OrderService) Reject(ctx context.Context, sellerID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.loadForSeller(ctx, sellerID, orderID)
	if err != nil {
		return nil, err
	}

	updated, err := s.transition(ctx, order, valueobject.OrderStatusRejected)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, updated.ClientID, models.NotificationOrderRejected, updated)
	return updated, nil
}

// MarkDelivered переводит заказ in_progress -> delivered.
func (s *OrderService) MarkDelivered(ctx context.Context, sellerID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.loadForSeller(ctx, sellerID, orderID)
	if err != nil {
		return nil, err
	}

	updated, err := s.transition(ctx, order, valueobject.OrderStatusDelivered)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, updated.ClientID, models.NotificationOrderDelivered, updated)
	return updated, nil
}

// Complete переводит заказ delivered -> completed. Вызывается брендом.
func (s *OrderService) Complete(ctx context.Context, clientID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.loadForClient(ctx, clientID, orderID)
	if err != nil {
		return nil, err
	}

	updated, err := s.transition(ctx, order, valueobject.OrderStatusCompleted)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, updated.InfluencerID, models.NotificationOrderCompleted, updated)
	return updated, nil
}

// Cancel выставляет флаг cancelled. Допустимо только в статусах pending/approved, пока платёжная сессия не открыта.
func (s *OrderService) Cancel(ctx context.Context, clientID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.loadForClient(ctx, clientID, orderID)
	if err != nil {
		return nil, err
	}

	if order.Cancelled {
		return nil, apperror.InvalidState("заказ уже отменён")
	}
	if !order.Status.Cancellable() {
		return nil, apperror.InvalidState(fmt.Sprintf("заказ в статусе %s нельзя отменить", order.Status))
	}

	payment, err := s.payments.GetByOrderID(ctx, order.ID)
	switch {
	case err == nil:
		switch payment.PaymentStatus {
		case valueobject.PaymentStatusInitiated:
			return nil, apperror.InvalidState("по заказу открыта платёжная сессия, отмена невозможна")
		case valueobject.PaymentStatusUnpaid, valueobject.PaymentStatusFailed:
		default:
			return nil, apperror.InvalidState("оплаченный заказ нельзя отменить")
		}
	case !errors.Is(err, repository.ErrPaymentNotFound):
		return nil, fmt.Errorf("order service: cancel %w", err)
	}

	updated, err := s.orders.Cancel(ctx, order.ID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderStateChanged) {
			return nil, apperror.InvalidState("заказ изменён параллельным запросом")
		}
		return nil, fmt.Errorf("order service: cancel %w", err)
	}

	s.metrics.IncTransition("cancelled")
	s.notify(ctx, updated.InfluencerID, models.NotificationOrderCancelled, updated)
	return updated, nil
}

// transition проверяет машину состояний и применяет условное обновление.
func (s *OrderService) transition(ctx context.Context, order *models.Order, to valueobject.OrderStatus) (*models.Order, error) {
	if order.Cancelled {
		return nil, apperror.InvalidState("заказ отменён")
	}
	if !order.Status.CanTransitionTo(to) {
		return nil, apperror.InvalidState(fmt.Sprintf("переход заказа из %s в %s недопустим", order.Status, to))
	}

	updated, err := s.orders.UpdateStatus(ctx, order.ID, order.Status, to)
	if err != nil {
		if errors.Is(err, repository.ErrOrderStateChanged) {
			return nil, apperror.InvalidState("заказ изменён параллельным запросом")
		}
		return nil, fmt.Errorf("order service: update status %w", err)
	}

	s.metrics.IncTransition(string(to))
	logger.Log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"from":     order.Status,
		"to":       to,
	}).Info("статус заказа изменён")

	return updated, nil
}

// loadForClient возвращает заказ, если он принадлежит бренду. Чужой заказ неотличим от отсутствующего.
func (s *OrderService) loadForClient(ctx context.Context, clientID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.BelongsToClient(clientID) {
		return nil, apperror.ErrOrderNotFound
	}
	return order, nil
}

// loadForSeller возвращает заказ, если он адресован инфлюенсеру.
func (s *OrderService) loadForSeller(ctx context.Context, sellerID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.BelongsToSeller(sellerID) {
		return nil, apperror.ErrOrderNotFound
	}
	return order, nil
}

func (s *OrderService) load(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, apperror.ErrOrderNotFound
		}
		return nil, fmt.Errorf("order service: load order %w", err)
	}
	return order, nil
}

func (s *OrderService) notify(ctx context.Context, userID uuid.UUID, event string, data interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, userID, event, data)
}
