package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/beereshbc/influencaa-backend/internal/http/handlers/common"
	"github.com/beereshbc/influencaa-backend/internal/http/response"
	"github.com/beereshbc/influencaa-backend/internal/models"
	"github.com/beereshbc/influencaa-backend/internal/service"
)

// OrderService — операции жизненного цикла заказа, доступные через HTTP.
type OrderService interface {
	Create(ctx context.Context, clientID uuid.UUID, in service.CreateOrderInput) (*models.Order, error)
	ListForClient(ctx context.Context, clientID uuid.UUID) ([]models.Order, error)
	ListForSeller(ctx context.Context, sellerID uuid.UUID) ([]models.Order, error)
	Accept(ctx context.Context, sellerID, orderID uuid.UUID) (*models.Order, error)
	Reject(ctx context.Context, sellerID, orderID uuid.UUID) (*models.Order, error)
	MarkDelivered(ctx context.Context, sellerID, orderID uuid.UUID) (*models.Order, error)
	Complete(ctx context.Context, clientID, orderID uuid.UUID) (*models.Order, error)
	Cancel(ctx context.Context, clientID, orderID uuid.UUID) (*models.Order, error)
	GetOrderPaymentDetails(ctx context.Context, clientID, orderID uuid.UUID) (*models.OrderWithPayment, error)
	SetMilestones(ctx context.Context, clientID, orderID uuid.UUID, in service.SetMilestonesInput) (*models.Payment, error)
}

type OrderHandler struct {
	orders OrderService
}

// NewOrderHandler создаёт новый хэндлер.
func NewOrderHandler(orders OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// CreateOrder обрабатывает POST /orders.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req service.CreateOrderInput
	if err := common.BindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	order, err := h.orders.Create(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, gin.H{"order": order})
}

// ListClientOrders обрабатывает GET /orders.
func (h *OrderHandler) ListClientOrders(c *gin.Context) {
	h.list(c, h.orders.ListForClient)
}

// ListSellerOrders обрабатывает GET /seller/orders.
func (h *OrderHandler) ListSellerOrders(c *gin.Context) {
	h.list(c, h.orders.ListForSeller)
}

func (h *OrderHandler) list(c *gin.Context, fn func(context.Context, uuid.UUID) ([]models.Order, error)) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	orders, err := fn(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"orders": orders, "count": len(orders)})
}

// AcceptOrder обрабатывает PUT /orders/:id/accept.
func (h *OrderHandler) AcceptOrder(c *gin.Context) {
	h.transition(c, h.orders.Accept)
}

// RejectOrder обрабатывает PUT /orders/:id/reject.
func (h *OrderHandler) RejectOrder(c *gin.Context) {
	h.transition(c, h.orders.Reject)
}

// DeliverOrder обрабатывает PUT /orders/:id/deliver.
func (h *OrderHandler) DeliverOrder(c *gin.Context) {
	h.transition(c, h.orders.MarkDelivered)
}

// CompleteOrder обрабатывает PUT /orders/:id/complete.
func (h *OrderHandler) CompleteOrder(c *gin.Context) {
	h.transition(c, h.orders.Complete)
}

// CancelOrder обрабатывает PUT /orders/:id/cancel.
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	h.transition(c, h.orders.Cancel)
}

func (h *OrderHandler) transition(c *gin.Context, fn func(context.Context, uuid.UUID, uuid.UUID) (*models.Order, error)) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	order, err := fn(c.Request.Context(), userID, orderID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"order": order})
}

// GetPaymentDetails обрабатывает GET /orders/:id/payment-details.
func (h *OrderHandler) GetPaymentDetails(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	details, err := h.orders.GetOrderPaymentDetails(c.Request.Context(), userID, orderID)
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := gin.H{"order": details.Order, "payment": details.Payment}
	if details.PaymentDetailsMissing {
		payload["paymentDetailsMissing"] = true
	}
	response.OK(c, payload)
}

// SetMilestones обрабатывает PUT /orders/:id/milestones.
func (h *OrderHandler) SetMilestones(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req service.SetMilestonesInput
	if err := common.BindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	payment, err := h.orders.SetMilestones(c.Request.Context(), userID, orderID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"payment": payment})
}
